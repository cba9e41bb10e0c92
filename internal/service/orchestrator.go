package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"content-eval/internal/llm"
	"content-eval/internal/metrics"
	"content-eval/internal/model"
)

// Generator LLM 生成能力，由 llm.Client 实现
type Generator interface {
	Params(provider model.Provider) llm.Params
	Generate(ctx context.Context, provider model.Provider, modelName, prompt string, params llm.Params) (*llm.Result, error)
}

type OrchestratorConfig struct {
	// 两次供应商调用之间的最小间隔
	CallDelay time.Duration
	// 同时进行的组合数，1 为顺序执行
	Concurrency int
}

// Orchestrator 负责 model x strategy x task 的生成 sweep
type Orchestrator struct {
	db      *gorm.DB
	gen     Generator
	prompts *PromptBuilder
	limiter *rate.Limiter
	workers int
	logger  *zap.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	running map[uint]*Sweep
	wg      sync.WaitGroup
}

func NewOrchestrator(db *gorm.DB, gen Generator, prompts *PromptBuilder, cfg OrchestratorConfig, logger *zap.Logger, rec *metrics.Recorder) *Orchestrator {
	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}
	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		db:      db,
		gen:     gen,
		prompts: prompts,
		limiter: rate.NewLimiter(limit, 1),
		workers: workers,
		logger:  logger,
		metrics: rec,
		running: make(map[uint]*Sweep),
	}
}

// RunSweep 同步执行 sweep，已存在的组合直接跳过，可重复调用续跑
func (o *Orchestrator) RunSweep(ctx context.Context, experimentID uint, progress ProgressFunc) error {
	exp, err := loadExperiment(ctx, o.db, experimentID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	sw, err := o.acquire(experimentID, cancel)
	if err != nil {
		cancel()
		return err
	}
	err = o.sweep(ctx, exp, sw, progress)
	o.release(sw, err)
	return err
}

// StartSweep 在后台执行 sweep 并立即返回句柄；sweep 不随请求 ctx 取消，只在 Close 或 Cancel 时停止
func (o *Orchestrator) StartSweep(ctx context.Context, experimentID uint, progress ProgressFunc) (*Sweep, error) {
	exp, err := loadExperiment(ctx, o.db, experimentID)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sw, err := o.acquire(experimentID, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.sweep(runCtx, exp, sw, progress)
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("后台生成失败", zap.Uint("experiment_id", experimentID), zap.Error(err))
		}
		o.release(sw, err)
	}()
	return sw, nil
}

// Running 返回实验当前的 sweep，没有时为 nil
func (o *Orchestrator) Running(experimentID uint) *Sweep {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[experimentID]
}

// Close 取消所有进行中的 sweep 并等待其退出
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, sw := range o.running {
		sw.Cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) acquire(experimentID uint, cancel context.CancelFunc) (*Sweep, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[experimentID]; ok {
		return nil, fmt.Errorf("experiment %d: %w", experimentID, ErrSweepRunning)
	}
	sw := newSweep(experimentID, cancel)
	o.running[experimentID] = sw
	return sw, nil
}

func (o *Orchestrator) release(sw *Sweep, err error) {
	o.mu.Lock()
	delete(o.running, sw.ExperimentID)
	o.mu.Unlock()
	sw.finish(err)
}

func (o *Orchestrator) sweep(ctx context.Context, exp *model.Experiment, sw *Sweep, progress ProgressFunc) error {
	log := o.logger.With(zap.Uint("experiment_id", exp.ID))

	if _, err := advanceStatus(ctx, o.db, exp.ID, model.StatusGenerating); err != nil {
		return err
	}

	tasks, err := o.loadTasks(ctx, exp.SelectedTasks)
	if err != nil {
		return err
	}

	combos := exp.Combinations()
	sw.setTotal(len(combos))
	log.Info("开始生成", zap.Int("total", len(combos)))

	// progress 回调串行化，调用方不需要自己加锁
	var progressMu sync.Mutex
	report := func() {
		completed, total := sw.advance()
		if progress != nil {
			progressMu.Lock()
			progress(completed, total)
			progressMu.Unlock()
		}
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, c := range combos {
		if ctx.Err() != nil {
			break
		}
		c := c
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if o.attempt(ctx, exp, tasks[c.TaskID], c, log) {
				report()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("生成被取消，可稍后续跑", zap.Error(err))
		o.metrics.Sweep(context.WithoutCancel(ctx), metrics.OutcomeCanceled)
		return err
	}

	if _, err := advanceStatus(ctx, o.db, exp.ID, model.StatusEvaluating); err != nil {
		return err
	}
	completed, total := sw.Progress()
	log.Info("生成完成", zap.Int("completed", completed), zap.Int("total", total))
	o.metrics.Sweep(ctx, metrics.OutcomeSuccess)
	return nil
}

// attempt 处理单个组合；返回 false 表示因取消而未完成，不计入进度
func (o *Orchestrator) attempt(ctx context.Context, exp *model.Experiment, task *model.Task, c model.Combination, log *zap.Logger) bool {
	log = log.With(
		zap.String("provider", string(c.Provider)),
		zap.String("model", c.Model),
		zap.String("strategy", string(c.Strategy)),
		zap.String("task_id", c.TaskID),
	)

	existing, err := o.findExisting(ctx, o.db, exp.ID, c)
	if err != nil {
		log.Error("查询已有生成失败", zap.Error(err))
		return ctx.Err() == nil
	}
	if existing != nil {
		o.metrics.Generation(ctx, string(c.Provider), c.Model, metrics.OutcomeSkipped, 0, 0)
		return true
	}

	if task == nil {
		log.Error("任务不存在，跳过该组合")
		return true
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return false
	}

	gen, err := o.generate(ctx, exp, task, c, true)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Error("保存生成结果失败", zap.Error(err))
		return true
	}
	if gen.Failed() {
		log.Warn("生成失败，已记录空内容", zap.String("error", gen.Error))
	}
	return true
}

// generate 调用供应商并落库；供应商失败时落一条空内容记录，ctx 取消时不落库
func (o *Orchestrator) generate(ctx context.Context, exp *model.Experiment, task *model.Task, c model.Combination, dedup bool) (*model.Generation, error) {
	prompt, err := o.prompts.Build(task, c.Strategy, exp.BaselineSamples)
	if err != nil {
		return nil, err
	}
	params := o.gen.Params(c.Provider)

	res, genErr := o.gen.Generate(ctx, c.Provider, c.Model, prompt, params)
	if genErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	g := &model.Generation{
		ExperimentID:     exp.ID,
		TaskID:           task.ID,
		Provider:         c.Provider,
		ModelName:        c.Model,
		Strategy:         c.Strategy,
		PromptUsed:       prompt,
		GenerationParams: params.Map(),
	}
	outcome := metrics.OutcomeSuccess
	if res != nil {
		g.LatencyMs = res.LatencyMs
	}
	if genErr != nil {
		outcome = metrics.OutcomeFailure
		g.Error = genErr.Error()
	} else {
		g.GeneratedContent = res.Content
		g.PromptTokens = res.PromptTokens
		g.CompletionTokens = res.CompletionTokens
		g.CostUSD = res.CostUSD
		if g.GeneratedContent == "" {
			outcome = metrics.OutcomeFailure
		}
	}
	o.metrics.Generation(ctx, string(c.Provider), c.Model, outcome, g.CostUSD, g.LatencyMs)

	return o.persist(ctx, g, dedup)
}

// persist 去重时在同一事务里再查一次，避免与单次生成并发插入重复记录
func (o *Orchestrator) persist(ctx context.Context, g *model.Generation, dedup bool) (*model.Generation, error) {
	out := g
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dedup {
			existing, err := o.findExisting(ctx, tx, g.ExperimentID, model.Combination{
				Provider: g.Provider,
				Strategy: g.Strategy,
				TaskID:   g.TaskID,
			})
			if err != nil {
				return err
			}
			if existing != nil {
				out = existing
				return nil
			}
		}
		return tx.Create(g).Error
	})
	if err != nil {
		return nil, fmt.Errorf("保存生成结果失败: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) findExisting(ctx context.Context, db *gorm.DB, experimentID uint, c model.Combination) (*model.Generation, error) {
	var gens []model.Generation
	err := db.WithContext(ctx).
		Where("experiment_id = ? AND task_id = ? AND model_provider = ? AND prompt_strategy = ?",
			experimentID, c.TaskID, c.Provider, c.Strategy).
		Order("id").
		Limit(1).
		Find(&gens).Error
	if err != nil {
		return nil, fmt.Errorf("查询生成记录失败: %w", err)
	}
	if len(gens) == 0 {
		return nil, nil
	}
	return &gens[0], nil
}

func (o *Orchestrator) loadTasks(ctx context.Context, ids []string) (map[string]*model.Task, error) {
	var tasks []model.Task
	if len(ids) > 0 {
		if err := o.db.WithContext(ctx).Where("id IN ?", ids).Find(&tasks).Error; err != nil {
			return nil, fmt.Errorf("查询任务失败: %w", err)
		}
	}
	out := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		out[tasks[i].ID] = &tasks[i]
	}
	return out, nil
}

// GenerateRequest 单个组合的生成请求
type GenerateRequest struct {
	ExperimentID uint
	TaskID       string
	Provider     model.Provider
	Model        string
	Strategy     model.Strategy
	// true 时总是新建一条记录；false 时已有同组合记录则直接返回
	AllowDuplicate bool
}

// Generate 单次生成，不经过 sweep 的节流
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*model.Generation, error) {
	if !req.Provider.Valid() {
		return nil, invalid("unknown provider %q", req.Provider)
	}
	if !req.Strategy.Valid() {
		return nil, invalid("unknown strategy %q", req.Strategy)
	}
	if req.Model == "" {
		return nil, invalid("model is required")
	}

	exp, err := loadExperiment(ctx, o.db, req.ExperimentID)
	if err != nil {
		return nil, err
	}
	var task model.Task
	if err := o.db.WithContext(ctx).First(&task, "id = ?", req.TaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("task", req.TaskID)
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	c := model.Combination{Provider: req.Provider, Model: req.Model, Strategy: req.Strategy, TaskID: req.TaskID}
	if !req.AllowDuplicate {
		existing, err := o.findExisting(ctx, o.db, exp.ID, c)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return o.generate(ctx, exp, &task, c, !req.AllowDuplicate)
}

// GenerationProgress 生成进度
type GenerationProgress struct {
	ExperimentID uint         `json:"experiment_id"`
	Status       model.Status `json:"status"`
	Total        int          `json:"total"`
	Completed    int          `json:"completed"`
	Failed       int          `json:"failed"`
	InProgress   int          `json:"in_progress"`
	Percentage   float64      `json:"percentage"`
	Running      bool         `json:"running"`
}

func (o *Orchestrator) Progress(ctx context.Context, experimentID uint) (*GenerationProgress, error) {
	exp, err := loadExperiment(ctx, o.db, experimentID)
	if err != nil {
		return nil, err
	}

	var completed, failed int64
	db := o.db.WithContext(ctx).Model(&model.Generation{})
	if err := db.Where("experiment_id = ?", experimentID).Count(&completed).Error; err != nil {
		return nil, fmt.Errorf("统计生成记录失败: %w", err)
	}
	if err := o.db.WithContext(ctx).Model(&model.Generation{}).
		Where("experiment_id = ? AND generated_content = ?", experimentID, "").
		Count(&failed).Error; err != nil {
		return nil, fmt.Errorf("统计失败记录失败: %w", err)
	}

	total := exp.TotalCombinations()
	p := &GenerationProgress{
		ExperimentID: experimentID,
		Status:       exp.Status,
		Total:        total,
		Completed:    int(completed),
		Failed:       int(failed),
		Running:      o.Running(experimentID) != nil,
	}
	if exp.Status == model.StatusGenerating && total > int(completed) {
		p.InProgress = total - int(completed)
	}
	if total > 0 {
		p.Percentage = llm.Round(float64(completed)/float64(total)*100, 1)
	}
	return p, nil
}

// ListGenerations 实验的全部生成记录
func (o *Orchestrator) ListGenerations(ctx context.Context, experimentID uint) ([]model.Generation, error) {
	if _, err := loadExperiment(ctx, o.db, experimentID); err != nil {
		return nil, err
	}
	var gens []model.Generation
	if err := o.db.WithContext(ctx).Where("experiment_id = ?", experimentID).Order("id").Find(&gens).Error; err != nil {
		return nil, fmt.Errorf("查询生成记录失败: %w", err)
	}
	return gens, nil
}

func (o *Orchestrator) GetGeneration(ctx context.Context, experimentID, generationID uint) (*model.Generation, error) {
	var gen model.Generation
	err := o.db.WithContext(ctx).
		Where("id = ? AND experiment_id = ?", generationID, experimentID).
		First(&gen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("generation", generationID)
		}
		return nil, fmt.Errorf("查询生成记录失败: %w", err)
	}
	return &gen, nil
}
