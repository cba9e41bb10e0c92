package model

import (
	"time"

	"gorm.io/datatypes"
)

// ModelSelection 实验选中的 provider+model 组合
type ModelSelection struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
}

// Key 形如 openai/gpt-4
func (m ModelSelection) Key() string {
	return string(m.Provider) + "/" + m.Model
}

// Experiment 一次对比实验的配置与状态
type Experiment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `gorm:"type:varchar(200);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// 基线样例文本，example_based 策略从中抽样
	BaselineSamples    datatypes.JSONSlice[string]         `json:"baseline_samples"`
	SelectedModels     datatypes.JSONSlice[ModelSelection] `json:"selected_models"`
	SelectedStrategies datatypes.JSONSlice[Strategy]       `json:"selected_strategies"`
	SelectedTasks      datatypes.JSONSlice[string]         `json:"selected_tasks"`

	Status Status `gorm:"type:varchar(20);not null;default:'setup';index" json:"status"`
}

// Combination 一次生成的 (model, strategy, task) 组合
type Combination struct {
	Provider Provider
	Model    string
	Strategy Strategy
	TaskID   string
}

// Combinations 按 model -> strategy -> task 的顺序展开全部组合
func (e *Experiment) Combinations() []Combination {
	out := make([]Combination, 0, e.TotalCombinations())
	for _, m := range e.SelectedModels {
		for _, s := range e.SelectedStrategies {
			for _, t := range e.SelectedTasks {
				out = append(out, Combination{
					Provider: m.Provider,
					Model:    m.Model,
					Strategy: s,
					TaskID:   t,
				})
			}
		}
	}
	return out
}

func (e *Experiment) TotalCombinations() int {
	return len(e.SelectedModels) * len(e.SelectedStrategies) * len(e.SelectedTasks)
}
