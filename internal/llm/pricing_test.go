package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"content-eval/internal/config"
	"content-eval/internal/model"
)

func TestPricingCost(t *testing.T) {
	p := NewPricing([]config.PriceConfig{
		{Provider: "openai", Model: "test-model", Input: 0.01, Output: 0.03},
	}, zap.NewNop())

	tests := []struct {
		name       string
		provider   model.Provider
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{name: "configured", provider: model.ProviderOpenAI, model: "test-model", prompt: 1000, completion: 500, want: 0.025},
		{name: "builtin_gpt4", provider: model.ProviderOpenAI, model: "gpt-4", prompt: 200, completion: 100, want: 0.012},
		{name: "rounded_to_6", provider: model.ProviderAnthropic, model: "claude-3-haiku-20240307", prompt: 8, completion: 4, want: 0.000007},
		{name: "zero_tokens", provider: model.ProviderGoogle, model: "gemini-1.5-pro", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Cost(tt.provider, tt.model, tt.prompt, tt.completion)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestPricingCost_UnknownModelWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewPricing(nil, zap.New(core))

	assert.Zero(t, p.Cost(model.ProviderOpenAI, "gpt-99", 1000, 1000))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "gpt-99", logs.All()[0].ContextMap()["model"])
}

func TestPricingOverride(t *testing.T) {
	p := NewPricing([]config.PriceConfig{{Provider: "openai", Model: "gpt-4", Input: 1, Output: 2}}, zap.NewNop())
	price, ok := p.Lookup(model.ProviderOpenAI, "gpt-4")
	assert.True(t, ok)
	assert.Equal(t, Price{Input: 1, Output: 2}, price)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.123457, Round(0.1234567, 6))
	assert.Equal(t, 2.35, Round(2.345001, 2))
	assert.Equal(t, 66.7, Round(66.66666, 1))
}
