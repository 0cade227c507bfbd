package service_test

import (
	"testing"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func worker(id string, skills ...string) *model.UserModel {
	return &model.UserModel{ID: id, Name: id, Role: model.RoleWorker, TaskTypes: datatypes.JSONSlice[string](skills)}
}

func ids(users []*model.UserModel) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

// TestEligibleWorkers 只保留具备技能的作业员
func TestEligibleWorkers(t *testing.T) {
	leader := &model.UserModel{ID: "l", Role: model.RoleLeader, TaskTypes: datatypes.JSONSlice[string]{"tt"}}
	users := []*model.UserModel{worker("a", "tt"), worker("b", "other"), leader, worker("c", "x", "tt")}

	assert.Equal(t, []string{"a", "c"}, ids(service.EligibleWorkers(users, "tt")))
	assert.Empty(t, service.EligibleWorkers(users, "none"))
}

// TestEligibleMachines 排除占用中与不支持的机器
func TestEligibleMachines(t *testing.T) {
	machines := []*model.MachineModel{
		{ID: "m1", TaskTypes: datatypes.JSONSlice[string]{"tt"}},
		{ID: "m2", TaskTypes: datatypes.JSONSlice[string]{"tt"}},
		{ID: "m3", TaskTypes: datatypes.JSONSlice[string]{"other"}},
		{ID: "m4", TaskTypes: datatypes.JSONSlice[string]{"tt", "other"}},
	}
	free := service.EligibleMachines(machines, "tt", map[string]string{"m2": "task-1"})

	got := make([]string, 0, len(free))
	for _, m := range free {
		got = append(got, m.ID)
	}
	assert.Equal(t, []string{"m1", "m4"}, got)
}

// TestRankWorkers 负载升序,同负载专才优先,其余保持原顺序
func TestRankWorkers(t *testing.T) {
	loads := map[string]int{"generalist": 1, "specialist": 1, "idle": 0, "busy": 3}
	load := func(id string) int { return loads[id] }

	workers := []*model.UserModel{
		worker("busy", "tt"),
		worker("generalist", "tt", "x"),
		worker("specialist", "tt"),
		worker("idle", "tt", "x", "y"),
	}
	assert.Equal(t, []string{"idle", "specialist", "generalist", "busy"}, ids(service.RankWorkers(workers, load)))

	// 输入不被修改
	assert.Equal(t, "busy", workers[0].ID)
}

// TestRankWorkers_StableOnFullTie 完全相同时保持输入顺序
func TestRankWorkers_StableOnFullTie(t *testing.T) {
	workers := []*model.UserModel{worker("w1", "tt", "x"), worker("w2", "tt", "y"), worker("w3", "tt", "z")}
	ranked := service.RankWorkers(workers, func(string) int { return 0 })
	assert.Equal(t, []string{"w1", "w2", "w3"}, ids(ranked))
}

// TestWeekBounds 周一开始,周日归属前一个周一
func TestWeekBounds(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	sundayEnd := time.Date(2024, 3, 10, 23, 59, 59, int(999*time.Millisecond), time.Local)

	cases := map[string]time.Time{
		"monday start":   monday,
		"wednesday noon": time.Date(2024, 3, 6, 12, 0, 0, 0, time.Local),
		"sunday night":   time.Date(2024, 3, 10, 23, 30, 0, 0, time.Local),
	}
	for name, now := range cases {
		t.Run(name, func(t *testing.T) {
			start, end := service.WeekBounds(now)
			assert.True(t, start.Equal(monday), "start %s", start)
			assert.True(t, end.Equal(sundayEnd), "end %s", end)
		})
	}

	// 跨月
	start, end := service.WeekBounds(time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local))
	assert.Equal(t, time.Date(2024, 2, 26, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, 3, end.Day())
}
