package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"content-eval/internal/model"
)

// Result 一次调用的结果；失败时只有 LatencyMs 有值
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        float64
	CostUSD          float64
}

// Client 统一的生成入口：选供应商、限时、计时、算成本
type Client struct {
	registry *Registry
	pricing  *Pricing
	timeout  time.Duration
	logger   *zap.Logger
}

func NewClient(registry *Registry, pricing *Pricing, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		registry: registry,
		pricing:  pricing,
		timeout:  timeout,
		logger:   logger,
	}
}

// Params 供应商的默认采样参数
func (c *Client) Params(provider model.Provider) Params {
	return c.registry.Params(provider)
}

// Generate 调用失败时同时返回带耗时的 Result 和错误，由调用方决定如何落库
func (c *Client) Generate(ctx context.Context, provider model.Provider, modelName, prompt string, params Params) (*Result, error) {
	start := time.Now()
	res := &Result{}

	p, err := c.registry.Pick(provider)
	if err != nil {
		res.LatencyMs = elapsedMs(start)
		return res, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	completion, err := p.Complete(ctx, modelName, prompt, params)
	res.LatencyMs = elapsedMs(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s/%s timed out after %s: %w", provider, modelName, c.timeout, err)
		}
		return res, err
	}

	res.Content = completion.Content
	res.PromptTokens = completion.PromptTokens
	res.CompletionTokens = completion.CompletionTokens
	res.CostUSD = c.pricing.Cost(provider, modelName, completion.PromptTokens, completion.CompletionTokens)
	return res, nil
}

// probeModels check 时每家使用的最便宜模型
var probeModels = map[model.Provider]string{
	model.ProviderOpenAI:    "gpt-3.5-turbo",
	model.ProviderAnthropic: "claude-3-haiku-20240307",
	model.ProviderGoogle:    "gemini-1.5-flash",
}

// Check 对每家供应商发一个 1 token 的请求；未配置的记为 false
func (c *Client) Check(ctx context.Context) map[model.Provider]bool {
	out := make(map[model.Provider]bool, len(probeModels))
	for _, name := range model.AllProviders() {
		_, err := c.Generate(ctx, name, probeModels[name], "Hi", Params{Temperature: 0, MaxTokens: 1})
		out[name] = err == nil
		if err != nil {
			c.logger.Warn("供应商连接失败", zap.String("provider", string(name)), zap.Error(err))
		}
	}
	return out
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
