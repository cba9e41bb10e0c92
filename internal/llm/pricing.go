package llm

import (
	"math"

	"go.uber.org/zap"

	"content-eval/internal/config"
	"content-eval/internal/model"
)

// Price 每 1000 token 的美元价格
type Price struct {
	Input  float64
	Output float64
}

type priceKey struct {
	provider model.Provider
	model    string
}

// Pricing 静态价格表
type Pricing struct {
	prices map[priceKey]Price
	logger *zap.Logger
}

var defaultPrices = []config.PriceConfig{
	{Provider: "openai", Model: "gpt-4", Input: 0.03, Output: 0.06},
	{Provider: "openai", Model: "gpt-4o", Input: 0.005, Output: 0.015},
	{Provider: "openai", Model: "gpt-3.5-turbo", Input: 0.0005, Output: 0.0015},
	{Provider: "anthropic", Model: "claude-3-opus-20240229", Input: 0.015, Output: 0.075},
	{Provider: "anthropic", Model: "claude-3-sonnet-20240229", Input: 0.003, Output: 0.015},
	{Provider: "anthropic", Model: "claude-3-haiku-20240307", Input: 0.00025, Output: 0.00125},
	{Provider: "google", Model: "gemini-1.5-pro", Input: 0.0035, Output: 0.0105},
	{Provider: "google", Model: "gemini-1.5-flash", Input: 0.00035, Output: 0.00105},
}

// NewPricing 内置价格表加上配置里的条目，配置覆盖同名模型
func NewPricing(entries []config.PriceConfig, logger *zap.Logger) *Pricing {
	p := &Pricing{prices: make(map[priceKey]Price), logger: logger}
	for _, e := range defaultPrices {
		p.Set(model.Provider(e.Provider), e.Model, Price{Input: e.Input, Output: e.Output})
	}
	for _, e := range entries {
		p.Set(model.Provider(e.Provider), e.Model, Price{Input: e.Input, Output: e.Output})
	}
	return p
}

func (p *Pricing) Set(provider model.Provider, modelName string, price Price) {
	p.prices[priceKey{provider, modelName}] = price
}

func (p *Pricing) Lookup(provider model.Provider, modelName string) (Price, bool) {
	price, ok := p.prices[priceKey{provider, modelName}]
	return price, ok
}

// Cost 未知的 provider/model 返回 0 并记录警告
func (p *Pricing) Cost(provider model.Provider, modelName string, promptTokens, completionTokens int) float64 {
	price, ok := p.Lookup(provider, modelName)
	if !ok {
		p.logger.Warn("未找到模型价格，成本记为 0",
			zap.String("provider", string(provider)),
			zap.String("model", modelName),
		)
		return 0
	}
	cost := float64(promptTokens)/1000*price.Input + float64(completionTokens)/1000*price.Output
	return Round(cost, 6)
}

// Round 四舍五入到 places 位小数
func Round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
