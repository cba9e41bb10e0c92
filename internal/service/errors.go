package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyEvaluated 重复提交或 blind_id 已被使用
	ErrAlreadyEvaluated = fmt.Errorf("already evaluated: %w", ErrConflict)
	// ErrSweepRunning 同一实验同时只允许一个 sweep
	ErrSweepRunning = fmt.Errorf("generation sweep already running: %w", ErrConflict)
)

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
