package lock

import (
	"context"
	"sync"
)

// LocalLocker 进程内按 key 的互斥锁
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// slot 返回 key 对应的信号量,容量为 1
func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock 获取 key 对应的锁,ctx 结束时放弃等待
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	if ctx.Err() != nil {
		return nil, ErrLockTimeout
	}
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
