package service

import (
	"context"
	"fmt"

	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/model"
)

// authorizeSelf 作业员只能以自己的身份操作,其他角色与无认证上下文不受限制
func authorizeSelf(ctx context.Context, workerID string) error {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.Role != model.RoleWorker {
		return nil
	}
	if identity.UserID != workerID {
		return fmt.Errorf("%w: workers may only act on their own tasks", ErrForbidden)
	}
	return nil
}

// authorizeTask 作业员只能操作分配给自己的任务
func authorizeTask(ctx context.Context, task *model.TaskModel) error {
	assignee := ""
	if task.TaskData.AssigneeID != nil {
		assignee = *task.TaskData.AssigneeID
	}
	return authorizeSelf(ctx, assignee)
}
