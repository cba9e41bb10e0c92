package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"content-eval/internal/config"
	"content-eval/internal/model"
)

// Registry provider id -> Provider；没有 API key 的供应商不注册
type Registry struct {
	mu        sync.RWMutex
	providers map[model.Provider]Provider
	params    map[model.Provider]Params
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[model.Provider]Provider),
		params:    make(map[model.Provider]Params),
	}
}

// NewRegistryFromConfig 按配置创建三家供应商
func NewRegistryFromConfig(ctx context.Context, cfg config.LLMConfig, hc *http.Client, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, name := range model.AllProviders() {
		pc, _ := cfg.Provider(string(name))
		if pc.APIKey == "" {
			logger.Warn("未配置 API key，跳过供应商", zap.String("provider", string(name)))
			continue
		}

		var p Provider
		switch name {
		case model.ProviderOpenAI:
			p = NewOpenAIProvider(pc.APIKey, pc.BaseURL, hc)
		case model.ProviderAnthropic:
			p = NewAnthropicProvider(pc.APIKey, pc.BaseURL, hc)
		case model.ProviderGoogle:
			gp, err := NewGoogleProvider(ctx, pc.APIKey, pc.BaseURL)
			if err != nil {
				return nil, err
			}
			p = gp
		}
		r.Register(p, Params{Temperature: pc.Temperature, MaxTokens: pc.MaxTokens})
	}
	return r, nil
}

// Register 注册或替换供应商
func (r *Registry) Register(p Provider, params Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.params[p.Name()] = params
}

// Pick 按 provider id 取实现
func (r *Registry) Pick(name model.Provider) (Provider, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}
	return p, nil
}

// Params 返回供应商的默认采样参数，未配置时为 0.7 / 500
func (r *Registry) Params(name model.Provider) Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.params[name]; ok {
		return p
	}
	return Params{Temperature: 0.7, MaxTokens: 500}
}

// Configured 已注册的供应商，按固定顺序
func (r *Registry) Configured() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Provider, 0, len(r.providers))
	for _, name := range model.AllProviders() {
		if _, ok := r.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
