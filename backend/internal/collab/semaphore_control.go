package collab

import (
	"context"
	"errors"
)

var (
	ErrSemaphoreTimeout     = errors.New("acquire reached time limit")
	ErrSemaphoreNotAcquired = errors.New("release failed, semaphore is not acquired")
)

// 默认并发上限
const DefaultMaxSemaphore = 100

type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(size int) *SemaphoreControl {
	if size <= 0 {
		size = DefaultMaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, size)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrSemaphoreTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotAcquired
	}
}

// InUse 当前已占用的名额
func (s *SemaphoreControl) InUse() int { return len(s.ch) }
