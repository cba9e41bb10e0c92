package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"content-eval/internal/model"
)

const (
	blindIDLength   = 8
	blindIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// BlindItem 发给评审者的视图，不含 provider/model/strategy/prompt
type BlindItem struct {
	BlindID         string            `json:"blind_id"`
	Content         string            `json:"content"`
	TaskTitle       string            `json:"task_title"`
	TaskDescription string            `json:"task_description"`
	ContentType     model.ContentType `json:"content_type"`
}

// RevealView 提交评分后揭晓的完整来源
type RevealView struct {
	BlindID         string              `json:"blind_id"`
	Provider        model.Provider      `json:"model_provider"`
	ModelName       string              `json:"model_name"`
	Strategy        model.Strategy      `json:"prompt_strategy"`
	TaskTitle       string              `json:"task_title"`
	ContentType     model.ContentType   `json:"content_type"`
	CostUSD         float64             `json:"cost_usd"`
	LatencyMs       float64             `json:"latency_ms"`
	Scores          map[string]int      `json:"scores"`
	WouldPublish    model.PublishIntent `json:"would_publish"`
	EditTimeMinutes int                 `json:"edit_time_minutes"`
}

type assignment struct {
	generationID uint
	experimentID uint
}

// BlindRegistry 内存中的盲评分配表，进程内唯一；重启后未提交的分配全部失效
type BlindRegistry struct {
	db     *gorm.DB
	logger *zap.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	outstanding map[string]assignment
	assigned    map[uint]string
}

func NewBlindRegistry(db *gorm.DB, rng *rand.Rand, logger *zap.Logger) *BlindRegistry {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &BlindRegistry{
		db:          db,
		logger:      logger,
		rng:         rng,
		outstanding: make(map[string]assignment),
		assigned:    make(map[uint]string),
	}
}

// Issue 从未评且未分配的生成里随机取一条；没有可评内容时返回 nil, nil
func (r *BlindRegistry) Issue(ctx context.Context, experimentID uint) (*BlindItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := loadExperiment(ctx, r.db, experimentID); err != nil {
		return nil, err
	}

	var gens []model.Generation
	err := r.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Where("id NOT IN (?)", r.db.Model(&model.Evaluation{}).Select("generation_id")).
		Order("id").
		Find(&gens).Error
	if err != nil {
		return nil, fmt.Errorf("查询待评生成失败: %w", err)
	}

	eligible := gens[:0]
	for _, g := range gens {
		if _, taken := r.assigned[g.ID]; !taken {
			eligible = append(eligible, g)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	gen := eligible[r.rng.Intn(len(eligible))]

	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", gen.TaskID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	blindID, err := r.mintID(ctx)
	if err != nil {
		return nil, err
	}
	r.outstanding[blindID] = assignment{generationID: gen.ID, experimentID: experimentID}
	r.assigned[gen.ID] = blindID

	return &BlindItem{
		BlindID:         blindID,
		Content:         gen.GeneratedContent,
		TaskTitle:       task.Title,
		TaskDescription: task.Description,
		ContentType:     task.ContentType,
	}, nil
}

// mintID 需要持有 r.mu；与未提交的分配和已落库评分的 blind_id 都不能重复
func (r *BlindRegistry) mintID(ctx context.Context) (string, error) {
	buf := make([]byte, blindIDLength)
	for {
		for i := range buf {
			buf[i] = blindIDAlphabet[r.rng.Intn(len(blindIDAlphabet))]
		}
		id := string(buf)
		if _, dup := r.outstanding[id]; dup {
			continue
		}
		var n int64
		if err := r.db.WithContext(ctx).Model(&model.Evaluation{}).Where("blind_id = ?", id).Count(&n).Error; err != nil {
			return "", fmt.Errorf("检查 blind_id 失败: %w", err)
		}
		if n == 0 {
			return id, nil
		}
	}
}

// Submit 把 blind_id 解析成生成记录并写入评分，成功后释放分配
func (r *BlindRegistry) Submit(ctx context.Context, in *EvaluationInput) (*model.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.outstanding[in.BlindID]
	if !ok {
		var n int64
		if err := r.db.WithContext(ctx).Model(&model.Evaluation{}).Where("blind_id = ?", in.BlindID).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("查询评分失败: %w", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("blind_id %s: %w", in.BlindID, ErrAlreadyEvaluated)
		}
		return nil, notFound("blind_id", in.BlindID)
	}

	var gen model.Generation
	if err := r.db.WithContext(ctx).First(&gen, a.generationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.releaseLocked(in.BlindID)
			return nil, notFound("generation", a.generationID)
		}
		return nil, fmt.Errorf("查询生成记录失败: %w", err)
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Evaluation{}).Where("generation_id = ?", gen.ID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("查询评分失败: %w", err)
	}
	if n > 0 {
		r.releaseLocked(in.BlindID)
		return nil, fmt.Errorf("generation %d: %w", gen.ID, ErrAlreadyEvaluated)
	}

	eval := &model.Evaluation{
		GenerationID:          gen.ID,
		ExperimentID:          gen.ExperimentID,
		BlindID:               in.BlindID,
		VoiceMatch:            in.VoiceMatch,
		Coherence:             in.Coherence,
		Engaging:              in.Engaging,
		MeetsBrief:            in.MeetsBrief,
		OverallQuality:        in.OverallQuality,
		EditTimeMinutes:       in.EditTimeMinutes,
		WouldPublish:          in.WouldPublish,
		Notes:                 in.Notes,
		EvaluatedAt:           time.Now(),
		EvaluationTimeSeconds: in.EvaluationTimeSeconds,
	}
	if err := r.db.WithContext(ctx).Create(eval).Error; err != nil {
		return nil, fmt.Errorf("保存评分失败: %w", err)
	}
	r.releaseLocked(in.BlindID)
	return eval, nil
}

// Skip 放弃当前分配，生成记录回到待评池
func (r *BlindRegistry) Skip(blindID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.outstanding[blindID]; !ok {
		return false
	}
	r.releaseLocked(blindID)
	return true
}

// Release 删除生成记录或评分时清理对应的分配
func (r *BlindRegistry) Release(generationIDs ...uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range generationIDs {
		if blindID, ok := r.assigned[id]; ok {
			r.releaseLocked(blindID)
		}
	}
}

// Outstanding 实验当前已发出未提交的分配数
func (r *BlindRegistry) Outstanding(experimentID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.outstanding {
		if a.experimentID == experimentID {
			n++
		}
	}
	return n
}

func (r *BlindRegistry) releaseLocked(blindID string) {
	if a, ok := r.outstanding[blindID]; ok {
		delete(r.assigned, a.generationID)
		delete(r.outstanding, blindID)
	}
}

// Reveal 按已提交评分上的 blind_id 揭晓来源
func (r *BlindRegistry) Reveal(ctx context.Context, blindID string) (*RevealView, error) {
	var eval model.Evaluation
	if err := r.db.WithContext(ctx).Where("blind_id = ?", blindID).First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("evaluation for blind_id", blindID)
		}
		return nil, fmt.Errorf("查询评分失败: %w", err)
	}

	var gen model.Generation
	if err := r.db.WithContext(ctx).First(&gen, eval.GenerationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("generation", eval.GenerationID)
		}
		return nil, fmt.Errorf("查询生成记录失败: %w", err)
	}

	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", gen.TaskID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	return &RevealView{
		BlindID:         blindID,
		Provider:        gen.Provider,
		ModelName:       gen.ModelName,
		Strategy:        gen.Strategy,
		TaskTitle:       task.Title,
		ContentType:     task.ContentType,
		CostUSD:         gen.CostUSD,
		LatencyMs:       gen.LatencyMs,
		Scores:          eval.Scores(),
		WouldPublish:    eval.WouldPublish,
		EditTimeMinutes: eval.EditTimeMinutes,
	}, nil
}
