package service

import (
	"sort"

	"github.com/mautops/labtask-gin/internal/model"
)

// EligibleWorkers 返回具备指定任务类型技能的作业员,保持输入顺序
func EligibleWorkers(users []*model.UserModel, taskTypeID string) []*model.UserModel {
	eligible := make([]*model.UserModel, 0, len(users))
	for _, user := range users {
		if user.IsWorker() && user.HasSkill(taskTypeID) {
			eligible = append(eligible, user)
		}
	}
	return eligible
}

// EligibleMachines 返回支持指定任务类型且不在 busy 中的机器,保持输入顺序
func EligibleMachines(machines []*model.MachineModel, taskTypeID string, busy map[string]string) []*model.MachineModel {
	eligible := make([]*model.MachineModel, 0, len(machines))
	for _, machine := range machines {
		if _, inUse := busy[machine.ID]; inUse {
			continue
		}
		if machine.Supports(taskTypeID) {
			eligible = append(eligible, machine)
		}
	}
	return eligible
}

// IsSpecialist 只具备一种技能的作业员
func IsSpecialist(user *model.UserModel) bool {
	return len(user.TaskTypes) == 1
}

// RankWorkers 按负载升序排列,负载相同时专才优先,其余保持输入顺序
func RankWorkers(workers []*model.UserModel, load func(workerID string) int) []*model.UserModel {
	ranked := make([]*model.UserModel, len(workers))
	copy(ranked, workers)
	sort.SliceStable(ranked, func(i, j int) bool {
		li, lj := load(ranked[i].ID), load(ranked[j].ID)
		if li != lj {
			return li < lj
		}
		return IsSpecialist(ranked[i]) && !IsSpecialist(ranked[j])
	})
	return ranked
}
