// Package lock 提供调度决策使用的互斥锁。
//
// 单进程部署使用 LocalLocker,多实例共享数据库时使用 RedisLocker。
// 锁只负责串行化调度决策,机器不被重复占用最终由数据库约束保证。
package lock

import (
	"context"
	"errors"
)

// ErrLockTimeout 在等待期限内未能获得锁
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// Locker 按 key 加锁,返回的 unlock 必须被调用且只调用一次
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
