package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"content-eval/internal/catalog"
	"content-eval/internal/config"
	"content-eval/internal/db"
	"content-eval/internal/llm"
	"content-eval/internal/logging"
	"content-eval/internal/metrics"
)

// app 各命令共用的依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

// bootstrap 读配置、建 logger、连库迁移并同步任务目录
func bootstrap(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	gdb, err := db.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	tasks, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	if err := catalog.Sync(cmd.Context(), gdb, tasks); err != nil {
		return nil, err
	}
	logger.Info("任务目录已同步", zap.Int("tasks", len(tasks)))

	return &app{cfg: cfg, logger: logger, db: gdb}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) llmClient(ctx context.Context) (*llm.Client, error) {
	hc := &http.Client{}
	reg, err := llm.NewRegistryFromConfig(ctx, a.cfg.LLM, hc, a.logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("初始化 LLM 供应商失败: %w", err)
	}
	pricing := llm.NewPricing(a.cfg.LLM.Pricing, a.logger.Named("pricing"))
	return llm.NewClient(reg, pricing, a.cfg.LLM.Timeout, a.logger.Named("llm")), nil
}

// recorder 返回的 shutdown 负责把剩余指标推送出去
func (a *app) recorder(ctx context.Context) (*metrics.Recorder, func(context.Context) error, error) {
	meter, shutdown, err := metrics.Setup(ctx, a.cfg.Metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化指标失败: %w", err)
	}
	rec, err := metrics.NewRecorder(meter)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	return rec, shutdown, nil
}
