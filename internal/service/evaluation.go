package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"content-eval/internal/llm"
	"content-eval/internal/metrics"
	"content-eval/internal/model"
)

// EvaluationInput 评审者提交的评分
type EvaluationInput struct {
	BlindID         string              `json:"blind_id" validate:"required"`
	VoiceMatch      int                 `json:"voice_match" validate:"min=1,max=5"`
	Coherence       int                 `json:"coherence" validate:"min=1,max=5"`
	Engaging        int                 `json:"engaging" validate:"min=1,max=5"`
	MeetsBrief      int                 `json:"meets_brief" validate:"min=1,max=5"`
	OverallQuality  int                 `json:"overall_quality" validate:"min=1,max=5"`
	EditTimeMinutes int                 `json:"edit_time_minutes" validate:"min=0"`
	WouldPublish    model.PublishIntent `json:"would_publish" validate:"required,oneof=yes no with_edits"`
	Notes           string              `json:"notes"`
	// 评审耗时（秒），可选
	EvaluationTimeSeconds *int `json:"evaluation_time_seconds,omitempty" validate:"omitempty,min=0"`
}

// EvaluationProgress 评审进度
type EvaluationProgress struct {
	ExperimentID uint         `json:"experiment_id"`
	Status       model.Status `json:"status"`
	Total        int          `json:"total"`
	Completed    int          `json:"completed"`
	Remaining    int          `json:"remaining"`
	InReview     int          `json:"in_review"`
	Percentage   float64      `json:"percentage"`
}

// EvaluationService 评分校验、落库与完成检测
type EvaluationService struct {
	db       *gorm.DB
	registry *BlindRegistry
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

func NewEvaluationService(db *gorm.DB, registry *BlindRegistry, logger *zap.Logger, rec *metrics.Recorder) *EvaluationService {
	return &EvaluationService{
		db:       db,
		registry: registry,
		validate: validator.New(),
		logger:   logger,
		metrics:  rec,
	}
}

// Next 取下一条盲评内容，没有时返回 nil
func (s *EvaluationService) Next(ctx context.Context, experimentID uint) (*BlindItem, error) {
	return s.registry.Issue(ctx, experimentID)
}

func (s *EvaluationService) Submit(ctx context.Context, in *EvaluationInput) (*model.Evaluation, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	eval, err := s.registry.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	s.metrics.Evaluation(ctx, eval.WouldPublish.Publishable())

	done, err := s.checkCompletion(ctx, eval.ExperimentID)
	if err != nil {
		// 评分已落库，完成检测失败只记录，下一次提交会重新检测
		s.logger.Error("完成检测失败", zap.Uint("experiment_id", eval.ExperimentID), zap.Error(err))
	} else if done {
		s.logger.Info("实验评审完成", zap.Uint("experiment_id", eval.ExperimentID))
	}
	return eval, nil
}

// checkCompletion 以数据库计数为准：生成数与评分数相等且非零时置为 complete
func (s *EvaluationService) checkCompletion(ctx context.Context, experimentID uint) (bool, error) {
	var gens, evals int64
	if err := s.db.WithContext(ctx).Model(&model.Generation{}).Where("experiment_id = ?", experimentID).Count(&gens).Error; err != nil {
		return false, fmt.Errorf("统计生成记录失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.Evaluation{}).Where("experiment_id = ?", experimentID).Count(&evals).Error; err != nil {
		return false, fmt.Errorf("统计评分失败: %w", err)
	}
	if gens == 0 || gens != evals {
		return false, nil
	}
	return advanceStatus(ctx, s.db, experimentID, model.StatusComplete)
}

func (s *EvaluationService) Skip(blindID string) error {
	if !s.registry.Skip(blindID) {
		return notFound("blind item", blindID)
	}
	return nil
}

func (s *EvaluationService) Reveal(ctx context.Context, blindID string) (*RevealView, error) {
	return s.registry.Reveal(ctx, blindID)
}

func (s *EvaluationService) Progress(ctx context.Context, experimentID uint) (*EvaluationProgress, error) {
	exp, err := loadExperiment(ctx, s.db, experimentID)
	if err != nil {
		return nil, err
	}

	var gens, evals int64
	if err := s.db.WithContext(ctx).Model(&model.Generation{}).Where("experiment_id = ?", experimentID).Count(&gens).Error; err != nil {
		return nil, fmt.Errorf("统计生成记录失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.Evaluation{}).Where("experiment_id = ?", experimentID).Count(&evals).Error; err != nil {
		return nil, fmt.Errorf("统计评分失败: %w", err)
	}

	p := &EvaluationProgress{
		ExperimentID: experimentID,
		Status:       exp.Status,
		Total:        int(gens),
		Completed:    int(evals),
		Remaining:    int(gens - evals),
		InReview:     s.registry.Outstanding(experimentID),
	}
	if gens > 0 {
		p.Percentage = llm.Round(float64(evals)/float64(gens)*100, 1)
	}
	return p, nil
}

func (s *EvaluationService) List(ctx context.Context, experimentID uint) ([]model.Evaluation, error) {
	var evals []model.Evaluation
	if err := s.db.WithContext(ctx).Where("experiment_id = ?", experimentID).Order("id").Find(&evals).Error; err != nil {
		return nil, fmt.Errorf("查询评分失败: %w", err)
	}
	return evals, nil
}

// Delete 删除评分后对应的生成记录重新可评；实验状态不回退
func (s *EvaluationService) Delete(ctx context.Context, evaluationID uint) error {
	var eval model.Evaluation
	if err := s.db.WithContext(ctx).First(&eval, evaluationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("evaluation", evaluationID)
		}
		return fmt.Errorf("查询评分失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&eval).Error; err != nil {
		return fmt.Errorf("删除评分失败: %w", err)
	}
	s.registry.Release(eval.GenerationID)
	return nil
}
