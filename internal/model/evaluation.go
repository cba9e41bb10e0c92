package model

import "time"

// Evaluation 人工盲评结果，每个 Generation 最多一条
type Evaluation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	GenerationID uint `gorm:"not null;uniqueIndex" json:"generation_id"`
	ExperimentID uint `gorm:"not null;index" json:"experiment_id"`
	// 提交后保留 blind_id，用于事后 reveal
	BlindID string `gorm:"type:varchar(16);not null;index" json:"blind_id"`

	VoiceMatch     int `json:"voice_match"`
	Coherence      int `json:"coherence"`
	Engaging       int `json:"engaging"`
	MeetsBrief     int `json:"meets_brief"`
	OverallQuality int `json:"overall_quality"`

	EditTimeMinutes int           `json:"edit_time_minutes"`
	WouldPublish    PublishIntent `gorm:"type:varchar(20)" json:"would_publish"`
	Notes           string        `gorm:"type:text" json:"notes"`

	EvaluatedAt           time.Time `json:"evaluated_at"`
	EvaluationTimeSeconds *int      `json:"evaluation_time_seconds"`
}

// Scores 按维度名返回五个评分
func (e *Evaluation) Scores() map[string]int {
	return map[string]int{
		"voice_match":     e.VoiceMatch,
		"coherence":       e.Coherence,
		"engaging":        e.Engaging,
		"meets_brief":     e.MeetsBrief,
		"overall_quality": e.OverallQuality,
	}
}

// ScoreKeys 评分维度名，保证输出顺序稳定
var ScoreKeys = []string{"voice_match", "coherence", "engaging", "meets_brief", "overall_quality"}
