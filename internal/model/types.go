package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidStrategy      = errors.New("invalid strategy")
	ErrInvalidProvider      = errors.New("invalid provider")
	ErrInvalidPublishIntent = errors.New("invalid publish intent")
	ErrInvalidContentType   = errors.New("invalid content type")
)

// Status 实验状态：setup -> generating -> evaluating -> complete，只能前进
type Status string

const (
	StatusSetup      Status = "setup"
	StatusGenerating Status = "generating"
	StatusEvaluating Status = "evaluating"
	StatusComplete   Status = "complete"
)

var statusRank = map[Status]int{
	StatusSetup:      0,
	StatusGenerating: 1,
	StatusEvaluating: 2,
	StatusComplete:   3,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank 返回状态在生命周期中的顺序，未知状态返回 -1
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Before 返回所有排在 s 之前的状态
func (s Status) Before() []Status {
	out := make([]Status, 0, 3)
	for _, st := range AllStatuses() {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

func AllStatuses() []Status {
	return []Status{StatusSetup, StatusGenerating, StatusEvaluating, StatusComplete}
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// Strategy 提示词策略
type Strategy string

const (
	StrategyStructured   Strategy = "structured"
	StrategyExampleBased Strategy = "example_based"
)

func (s Strategy) Valid() bool {
	return s == StrategyStructured || s == StrategyExampleBased
}

func AllStrategies() []Strategy {
	return []Strategy{StrategyStructured, StrategyExampleBased}
}

func ParseStrategy(v string) (Strategy, error) {
	s := Strategy(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, v)
	}
	return s, nil
}

// Provider LLM 供应商
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

func AllProviders() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}
}

func ParseProvider(v string) (Provider, error) {
	p := Provider(v)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidProvider, v)
	}
	return p, nil
}

// PublishIntent 评审者是否愿意发布
type PublishIntent string

const (
	PublishYes       PublishIntent = "yes"
	PublishNo        PublishIntent = "no"
	PublishWithEdits PublishIntent = "with_edits"
)

func (p PublishIntent) Valid() bool {
	return p == PublishYes || p == PublishNo || p == PublishWithEdits
}

// Publishable yes 和 with_edits 都算可发布
func (p PublishIntent) Publishable() bool {
	return p == PublishYes || p == PublishWithEdits
}

func ParsePublishIntent(v string) (PublishIntent, error) {
	p := PublishIntent(v)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPublishIntent, v)
	}
	return p, nil
}

// ContentType 任务内容类型
type ContentType string

const (
	ContentBlogIntro    ContentType = "blog_intro"
	ContentLinkedIn     ContentType = "linkedin"
	ContentAnnouncement ContentType = "announcement"
)

func (c ContentType) Valid() bool {
	return c == ContentBlogIntro || c == ContentLinkedIn || c == ContentAnnouncement
}

func ParseContentType(v string) (ContentType, error) {
	c := ContentType(v)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, v)
	}
	return c, nil
}
