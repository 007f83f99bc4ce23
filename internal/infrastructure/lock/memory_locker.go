package lock

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLocker 进程内的按 key 互斥，单实例部署或测试时替代 RedisLocker
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (m *MemoryLocker) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[key] = ch
	}
	return ch
}

// Acquire 阻塞直到拿到锁或 ctx 结束
func (m *MemoryLocker) Acquire(ctx context.Context, key, owner string) (func(), error) {
	ch := m.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: key=%s", ErrLockFailed, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
