package service

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"content-eval/internal/model"
)

// PromptBuilder 按策略构造提示词；example_based 每次随机抽样
type PromptBuilder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewPromptBuilder(rng *rand.Rand) *PromptBuilder {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PromptBuilder{rng: rng}
}

// Build structured 原样返回；example_based 从样例池不放回抽两条填入 {sample1} {sample2}
func (b *PromptBuilder) Build(task *model.Task, strategy model.Strategy, samples []string) (string, error) {
	switch strategy {
	case model.StrategyStructured:
		return task.StructuredPrompt, nil
	case model.StrategyExampleBased:
		s1, s2 := b.pick(samples)
		r := strings.NewReplacer("{sample1}", s1, "{sample2}", s2)
		return r.Replace(task.ExamplePromptTemplate), nil
	default:
		return "", invalid("unknown strategy %q", strategy)
	}
}

func (b *PromptBuilder) pick(samples []string) (string, string) {
	switch len(samples) {
	case 0:
		return "", ""
	case 1:
		return samples[0], samples[0]
	}

	b.mu.Lock()
	i := b.rng.Intn(len(samples))
	j := b.rng.Intn(len(samples) - 1)
	b.mu.Unlock()
	if j >= i {
		j++
	}
	return samples[i], samples[j]
}
