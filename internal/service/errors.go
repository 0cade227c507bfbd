package service

import (
	"errors"
	"fmt"

	"github.com/mautops/labtask-gin/internal/utils"
	"gorm.io/gorm"
)

// ErrorKind 业务错误分类,决定对外的 HTTP 状态码
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindInvalidState        ErrorKind = "invalid_state"
	KindResourceUnavailable ErrorKind = "resource_unavailable"
	KindValidation          ErrorKind = "validation"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindForbidden           ErrorKind = "forbidden"
)

// ServiceError 可由调用方处理的业务错误
type ServiceError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message}
}

// 业务错误定义
var (
	ErrTaskNotFound     = newError(KindNotFound, "TASK_NOT_FOUND", "task not found")
	ErrTaskTypeNotFound = newError(KindNotFound, "TASK_TYPE_NOT_FOUND", "task type not found")
	ErrMachineNotFound  = newError(KindNotFound, "MACHINE_NOT_FOUND", "machine not found")
	ErrUserNotFound     = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrWorkerNotFound   = newError(KindNotFound, "WORKER_NOT_FOUND", "worker not found")
	ErrNoAssignedTasks  = newError(KindNotFound, "NO_ASSIGNED_TASKS", "worker has no assigned tasks")

	ErrTaskNotDraft       = newError(KindInvalidState, "TASK_NOT_DRAFT", "task is not in draft state")
	ErrTaskNotInProgress  = newError(KindInvalidState, "TASK_NOT_IN_PROGRESS", "task is not in progress")
	ErrTaskChanged        = newError(KindInvalidState, "TASK_CHANGED", "task state changed concurrently")
	ErrTaskTypeInUse      = newError(KindInvalidState, "TASK_TYPE_IN_USE", "task type is still referenced")
	ErrMachineInUse       = newError(KindInvalidState, "MACHINE_IN_USE", "machine is bound to an in-progress task")
	ErrUserHasActiveTasks = newError(KindInvalidState, "USER_HAS_ACTIVE_TASKS", "user still has assigned or in-progress tasks")

	ErrWorkerBusy           = newError(KindResourceUnavailable, "WORKER_BUSY", "worker already has a task in progress")
	ErrInsufficientMachines = newError(KindResourceUnavailable, "INSUFFICIENT_MACHINES", "no assigned task can be started: not enough free machines")
	ErrMachineConflict      = newError(KindResourceUnavailable, "MACHINE_CONFLICT", "machine was claimed by another task")
	ErrSchedulerBusy        = newError(KindResourceUnavailable, "SCHEDULER_BUSY", "scheduler is busy, retry later")

	ErrNotWorker          = newError(KindValidation, "NOT_A_WORKER", "user is not a worker")
	ErrAssignerNotFound   = newError(KindValidation, "ASSIGNER_NOT_FOUND", "assigner does not exist")
	ErrUnknownTaskType    = newError(KindValidation, "UNKNOWN_TASK_TYPE", "referenced task type does not exist")
	ErrDuplicateName      = newError(KindValidation, "DUPLICATE_NAME", "name already exists")
	ErrInvalidRole        = newError(KindValidation, "INVALID_ROLE", "role must be one of admin, leader, worker")
	ErrInvalidState       = newError(KindValidation, "INVALID_STATE", "unknown task state")
	ErrInvalidPreviewMode = newError(KindValidation, "INVALID_PREVIEW_MODE", "preview mode must be current or weekly")
	ErrInvalidMachineCnt  = newError(KindValidation, "INVALID_MACHINE_COUNT", "machine count must be between 1 and 20")
	ErrEmptyAssignments   = newError(KindValidation, "EMPTY_ASSIGNMENTS", "assignments must not be empty")

	ErrInvalidCredentials = newError(KindUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
	ErrForbidden          = newError(KindForbidden, "FORBIDDEN", "operation not permitted for current user")
)

// AsServiceError 从错误链中提取业务错误
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf 返回错误分类,非业务错误返回空字符串
func KindOf(err error) ErrorKind {
	if se, ok := AsServiceError(err); ok {
		return se.Kind
	}
	return ""
}

// invalidInput 将输入校验错误转换为业务错误,field 标明出错字段
func invalidInput(field string, err error) error {
	if err == nil {
		return nil
	}
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		return &ServiceError{Kind: KindValidation, Code: ve.Code, Message: fmt.Sprintf("%s: %s", field, ve.Message)}
	}
	return &ServiceError{Kind: KindValidation, Code: "INVALID_INPUT", Message: fmt.Sprintf("%s: %s", field, err.Error())}
}

// notFoundOr 将记录不存在转换为给定的业务错误,其余错误按存储错误包装
func notFoundOr(err error, notFound *ServiceError, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return fmt.Errorf("failed to load record %s: %w", id, err)
}
