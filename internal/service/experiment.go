package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"content-eval/internal/model"
)

type ModelInput struct {
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model" validate:"required"`
}

// CreateExperimentInput 创建实验的请求体
type CreateExperimentInput struct {
	Name               string       `json:"name" validate:"required"`
	Description        string       `json:"description"`
	BaselineSamples    []string     `json:"baseline_samples"`
	SelectedModels     []ModelInput `json:"selected_models" validate:"min=1,dive"`
	SelectedStrategies []string     `json:"selected_strategies" validate:"min=1"`
	SelectedTasks      []string     `json:"selected_tasks" validate:"min=1"`
}

type ExperimentService struct {
	db           *gorm.DB
	orchestrator *Orchestrator
	registry     *BlindRegistry
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewExperimentService(db *gorm.DB, orchestrator *Orchestrator, registry *BlindRegistry, logger *zap.Logger) *ExperimentService {
	return &ExperimentService{
		db:           db,
		orchestrator: orchestrator,
		registry:     registry,
		validate:     validator.New(),
		logger:       logger,
	}
}

func (s *ExperimentService) Create(ctx context.Context, in *CreateExperimentInput) (*model.Experiment, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	// 同一实验里每家供应商只能出现一次，保证 (experiment, task, provider, strategy) 去重键唯一对应一个模型
	models := make([]model.ModelSelection, 0, len(in.SelectedModels))
	seenProvider := make(map[model.Provider]string)
	for _, m := range in.SelectedModels {
		p, err := model.ParseProvider(m.Provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
		if prev, ok := seenProvider[p]; ok {
			return nil, invalid("provider %s selected more than once (%s, %s): each provider may appear once per experiment, compare models of the same provider in separate experiments", p, prev, m.Model)
		}
		seenProvider[p] = m.Model
		models = append(models, model.ModelSelection{Provider: p, Model: m.Model})
	}

	strategies := make([]model.Strategy, 0, len(in.SelectedStrategies))
	seenStrategy := make(map[model.Strategy]bool)
	for _, v := range in.SelectedStrategies {
		st, err := model.ParseStrategy(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
		if !seenStrategy[st] {
			seenStrategy[st] = true
			strategies = append(strategies, st)
		}
	}

	taskIDs := make([]string, 0, len(in.SelectedTasks))
	seenTask := make(map[string]bool)
	for _, id := range in.SelectedTasks {
		if !seenTask[id] {
			seenTask[id] = true
			taskIDs = append(taskIDs, id)
		}
	}
	var found int64
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Where("id IN ?", taskIDs).Count(&found).Error; err != nil {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	if int(found) != len(taskIDs) {
		return nil, invalid("unknown task in %v", taskIDs)
	}

	samples := in.BaselineSamples
	if samples == nil {
		samples = []string{}
	}
	exp := &model.Experiment{
		Name:               in.Name,
		Description:        in.Description,
		BaselineSamples:    samples,
		SelectedModels:     models,
		SelectedStrategies: strategies,
		SelectedTasks:      taskIDs,
		Status:             model.StatusSetup,
	}
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return nil, fmt.Errorf("创建实验失败: %w", err)
	}
	s.logger.Info("创建实验", zap.Uint("experiment_id", exp.ID), zap.Int("combinations", exp.TotalCombinations()))
	return exp, nil
}

// List 按创建时间倒序
func (s *ExperimentService) List(ctx context.Context) ([]model.Experiment, error) {
	var exps []model.Experiment
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&exps).Error; err != nil {
		return nil, fmt.Errorf("查询实验列表失败: %w", err)
	}
	return exps, nil
}

func (s *ExperimentService) Get(ctx context.Context, id uint) (*model.Experiment, error) {
	return loadExperiment(ctx, s.db, id)
}

// UpdateStatus 管理员手动设置状态，只接受四个合法值
func (s *ExperimentService) UpdateStatus(ctx context.Context, id uint, status string) (*model.Experiment, error) {
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	exp, err := loadExperiment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(exp).Update("status", st).Error; err != nil {
		return nil, fmt.Errorf("更新实验状态失败: %w", err)
	}
	exp.Status = st
	return exp, nil
}

// Delete 级联删除评分和生成记录；sweep 进行中时拒绝
func (s *ExperimentService) Delete(ctx context.Context, id uint) error {
	if _, err := loadExperiment(ctx, s.db, id); err != nil {
		return err
	}
	if s.orchestrator.Running(id) != nil {
		return fmt.Errorf("experiment %d: %w", id, ErrSweepRunning)
	}

	var genIDs []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Generation{}).Where("experiment_id = ?", id).Pluck("id", &genIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("experiment_id = ?", id).Delete(&model.Evaluation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("experiment_id = ?", id).Delete(&model.Generation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Experiment{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("删除实验失败: %w", err)
	}
	s.registry.Release(genIDs...)
	s.logger.Info("删除实验", zap.Uint("experiment_id", id), zap.Int("generations", len(genIDs)))
	return nil
}

// Tasks 任务目录
func (s *ExperimentService) Tasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := s.db.WithContext(ctx).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	return tasks, nil
}
