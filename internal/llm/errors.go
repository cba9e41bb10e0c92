package llm

import (
	"errors"
	"fmt"

	"content-eval/internal/model"
)

var (
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrEmptyResponse         = errors.New("empty response from provider")
)

// ProviderError 供应商返回的非 2xx 响应
type ProviderError struct {
	Provider   model.Provider
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}
