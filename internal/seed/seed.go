// Package seed 从 YAML 文件导入任务类型、机器和用户。
//
// 文件中使用名称互相引用,导入时解析为 ID。已存在的同名记录会被跳过,
// 因此同一个文件可以重复导入。
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mautops/labtask-gin/internal/service"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Catalog 种子文件内容
type Catalog struct {
	TaskTypes []TaskType `yaml:"taskTypes"`
	Machines  []Machine  `yaml:"machines"`
	Users     []User     `yaml:"users"`
}

// TaskType 任务类型
type TaskType struct {
	Name         string `yaml:"name"`
	MachineCount int    `yaml:"machineCount"`
	Color        string `yaml:"color"`
}

// Machine 机器,taskTypes 为任务类型名称
type Machine struct {
	Name      string   `yaml:"name"`
	TaskTypes []string `yaml:"taskTypes"`
}

// User 用户,taskTypes 为任务类型名称
type User struct {
	Name      string   `yaml:"name"`
	Password  string   `yaml:"password"`
	Role      string   `yaml:"role"`
	TaskTypes []string `yaml:"taskTypes"`
}

// Result 导入结果
type Result struct {
	Created int
	Skipped int
}

// Load 读取种子文件
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode 解析种子内容,未知字段视为错误
func Decode(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &catalog, nil
}

// Seeder 导入器
type Seeder struct {
	taskTypes service.TaskTypeService
	machines  service.MachineService
	users     service.UserService
	logger    logrus.FieldLogger
}

// NewSeeder 创建导入器
func NewSeeder(taskTypes service.TaskTypeService, machines service.MachineService, users service.UserService, logger logrus.FieldLogger) *Seeder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Seeder{taskTypes: taskTypes, machines: machines, users: users, logger: logger}
}

// Apply 按任务类型、机器、用户的顺序导入
func (s *Seeder) Apply(ctx context.Context, catalog *Catalog) (*Result, error) {
	result := &Result{}

	existing, err := s.taskTypes.List(ctx)
	if err != nil {
		return nil, err
	}
	typeIDs := make(map[string]string, len(existing))
	for _, tt := range existing {
		typeIDs[tt.Name] = tt.ID
	}

	for _, item := range catalog.TaskTypes {
		if _, ok := typeIDs[item.Name]; ok {
			result.Skipped++
			continue
		}
		name, count, color := item.Name, item.MachineCount, item.Color
		created, err := s.taskTypes.Create(ctx, &service.TaskTypeRequest{
			TaskName:     &name,
			MachineCount: &count,
			Color:        &color,
		})
		if err != nil {
			return nil, fmt.Errorf("task type %q: %w", item.Name, err)
		}
		typeIDs[created.Name] = created.ID
		result.Created++
	}

	resolve := func(names []string) ([]string, error) {
		ids := make([]string, 0, len(names))
		for _, name := range names {
			id, ok := typeIDs[name]
			if !ok {
				return nil, fmt.Errorf("unknown task type %q", name)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	for _, item := range catalog.Machines {
		ids, err := resolve(item.TaskTypes)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", item.Name, err)
		}
		name := item.Name
		_, err = s.machines.Create(ctx, &service.MachineRequest{MachineName: &name, MachineTaskTypes: &ids})
		if err != nil {
			if errors.Is(err, service.ErrDuplicateName) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("machine %q: %w", item.Name, err)
		}
		result.Created++
	}

	for _, item := range catalog.Users {
		ids, err := resolve(item.TaskTypes)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", item.Name, err)
		}
		_, err = s.users.Create(ctx, &service.CreateUserRequest{
			UserName:      item.Name,
			Password:      item.Password,
			UserRole:      item.Role,
			UserTaskTypes: ids,
		})
		if err != nil {
			if errors.Is(err, service.ErrDuplicateName) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("user %q: %w", item.Name, err)
		}
		result.Created++
	}

	s.logger.WithFields(logrus.Fields{
		"created": result.Created,
		"skipped": result.Skipped,
	}).Info("seed applied")
	return result, nil
}
