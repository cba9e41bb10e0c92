package service

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"content-eval/internal/config"
	"content-eval/internal/llm"
	"content-eval/internal/metrics"
)

type ServiceContext struct {
	LLM          *llm.Client
	Orchestrator *Orchestrator
	Blind        *BlindRegistry
	Experiments  *ExperimentService
	Evaluations  *EvaluationService
	Analysis     *AnalysisService
}

func NewServiceContext(db *gorm.DB, cfg *config.Config, client *llm.Client, logger *zap.Logger, rec *metrics.Recorder) *ServiceContext {
	orchestrator := NewOrchestrator(db, client, NewPromptBuilder(nil), OrchestratorConfig{
		CallDelay:   cfg.Generation.CallDelay,
		Concurrency: cfg.Generation.Concurrency,
	}, logger.Named("orchestrator"), rec)
	blind := NewBlindRegistry(db, nil, logger.Named("blind"))

	return &ServiceContext{
		LLM:          client,
		Orchestrator: orchestrator,
		Blind:        blind,
		Experiments:  NewExperimentService(db, orchestrator, blind, logger.Named("experiment")),
		Evaluations:  NewEvaluationService(db, blind, logger.Named("evaluation"), rec),
		Analysis:     NewAnalysisService(db),
	}
}

// Close 停止后台 sweep
func (s *ServiceContext) Close() {
	s.Orchestrator.Close()
}
