package service

import (
	"context"
	"sync"
)

// ProgressFunc 每次尝试（跳过、成功或失败）之后调用
type ProgressFunc func(completed, total int)

// Sweep 一次后台生成任务的句柄
type Sweep struct {
	ExperimentID uint

	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	completed int
	total     int
	err       error
}

func newSweep(experimentID uint, cancel context.CancelFunc) *Sweep {
	return &Sweep{
		ExperimentID: experimentID,
		done:         make(chan struct{}),
		cancel:       cancel,
	}
}

// Done sweep 结束时关闭
func (s *Sweep) Done() <-chan struct{} {
	return s.done
}

// Wait 等待 sweep 结束，返回其错误；ctx 先结束时返回 ctx 的错误
func (s *Sweep) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweep) Progress() (completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.total
}

// Err 未结束时为 nil
func (s *Sweep) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel 停止剩余组合；已生成的记录保留，之后可以续跑
func (s *Sweep) Cancel() {
	s.cancel()
}

func (s *Sweep) setTotal(total int) {
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

func (s *Sweep) advance() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	return s.completed, s.total
}

func (s *Sweep) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.cancel()
	close(s.done)
}
