package model

import (
	"time"

	"gorm.io/datatypes"
)

// Generation 一次 LLM 生成结果；调用失败时 GeneratedContent 为空字符串
type Generation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"timestamp"`

	// 去重键 (experiment_id, task_id, provider, strategy)；单次生成允许重复，所以不是唯一索引
	ExperimentID uint     `gorm:"not null;index:idx_generation_combo,priority:1" json:"experiment_id"`
	TaskID       string   `gorm:"type:varchar(20);not null;index:idx_generation_combo,priority:2" json:"task_id"`
	Provider     Provider `gorm:"column:model_provider;type:varchar(20);not null;index:idx_generation_combo,priority:3" json:"model_provider"`
	ModelName    string   `gorm:"type:varchar(100);not null" json:"model_name"`
	Strategy     Strategy `gorm:"column:prompt_strategy;type:varchar(20);not null;index:idx_generation_combo,priority:4" json:"prompt_strategy"`

	PromptUsed       string            `gorm:"type:text" json:"prompt_used"`
	GeneratedContent string            `gorm:"type:text" json:"generated_content"`
	GenerationParams datatypes.JSONMap `json:"generation_params"`

	LatencyMs        float64 `json:"latency_ms"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`

	// 供应商错误信息，只用于排查，不出现在盲评视图里
	Error string `gorm:"type:text" json:"error,omitempty"`
}

func (g *Generation) Failed() bool {
	return g.GeneratedContent == ""
}
