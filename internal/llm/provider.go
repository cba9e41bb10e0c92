package llm

import (
	"context"

	"content-eval/internal/model"
)

// Params 单次调用的采样参数
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Map 转成可存入 generation_params 的 JSON 对象
func (p Params) Map() map[string]any {
	return map[string]any{
		"temperature": p.Temperature,
		"max_tokens":  p.MaxTokens,
	}
}

// Completion 供应商返回的文本与 token 用量
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider 每家供应商一个实现，按 provider id 注册到 Registry
type Provider interface {
	Name() model.Provider
	Complete(ctx context.Context, modelName, prompt string, p Params) (*Completion, error)
}

// estimateTokens 粗略估算：1 token 约 4 个字符
func estimateTokens(s string) int {
	return len(s) / 4
}
