package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"content-eval/internal/metrics"
	"content-eval/internal/model"
)

// TestRunSweep_AllCombinations 全新实验生成 M 条记录并进入 evaluating
func TestRunSweep_AllCombinations(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gdb, gen)
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4, claudeHaiku}, bothStrategy, []string{"A", "C"})

	var mu sync.Mutex
	var calls [][2]int
	err := o.RunSweep(context.Background(), exp.ID, func(completed, total int) {
		mu.Lock()
		calls = append(calls, [2]int{completed, total})
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 8, gen.Calls())
	require.Len(t, calls, 8)
	assert.Equal(t, [2]int{8, 8}, calls[7])
	for i, c := range calls {
		assert.Equal(t, i+1, c[0])
	}
	assert.EqualValues(t, 8, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
	assert.Equal(t, model.StatusEvaluating, reloadStatus(t, gdb, exp.ID))

	gens, err := o.ListGenerations(context.Background(), exp.ID)
	require.NoError(t, err)
	for _, g := range gens {
		assert.NotEmpty(t, g.GeneratedContent)
		assert.NotEmpty(t, g.PromptUsed)
		// JSONMap 读回时数字为 json.Number
		assert.Equal(t, json.Number("0.7"), g.GenerationParams["temperature"])
		assert.Equal(t, json.Number("500"), g.GenerationParams["max_tokens"])
		assert.InDelta(t, 0.001, g.CostUSD, 1e-9)
	}
}

// TestRunSweep_Resume 已有 N 条时只补齐剩下的 M-N 条
func TestRunSweep_Resume(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gdb, gen)
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4, claudeHaiku}, bothStrategy, []string{"A", "C"})

	combos := exp.Combinations()
	existing := map[uint]bool{}
	for _, c := range combos[:3] {
		existing[seedGeneration(t, gdb, exp.ID, c, "already there").ID] = true
	}

	progressCalls := 0
	require.NoError(t, o.RunSweep(context.Background(), exp.ID, func(int, int) { progressCalls++ }))

	assert.Equal(t, 5, gen.Calls())
	assert.Equal(t, 8, progressCalls)
	assert.EqualValues(t, 8, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
	assert.EqualValues(t, 3, countRows(t, gdb, &model.Generation{}, "experiment_id = ? AND generated_content = ?", exp.ID, "already there"))

	// 再跑一次不会产生新的调用
	require.NoError(t, o.RunSweep(context.Background(), exp.ID, nil))
	assert.Equal(t, 5, gen.Calls())
	assert.EqualValues(t, 8, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
}

// TestRunSweep_ProviderFailure 失败的组合落空内容，sweep 仍然完成
func TestRunSweep_ProviderFailure(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{failFor: map[model.Provider]bool{model.ProviderAnthropic: true}}
	o := newTestOrchestrator(gdb, gen)
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4, claudeHaiku}, bothStrategy, []string{"A", "C"})

	progressCalls := 0
	require.NoError(t, o.RunSweep(context.Background(), exp.ID, func(int, int) { progressCalls++ }))

	assert.Equal(t, 8, progressCalls)
	assert.Equal(t, model.StatusEvaluating, reloadStatus(t, gdb, exp.ID))

	var failed []model.Generation
	require.NoError(t, gdb.Where("experiment_id = ? AND generated_content = ?", exp.ID, "").Find(&failed).Error)
	require.Len(t, failed, 4)
	for _, g := range failed {
		assert.Equal(t, model.ProviderAnthropic, g.Provider)
		assert.True(t, g.Failed())
		assert.Contains(t, g.Error, "provider down")
		assert.Zero(t, g.CostUSD)
	}

	p, err := o.Progress(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Total)
	assert.Equal(t, 8, p.Completed)
	assert.Equal(t, 4, p.Failed)
	assert.Equal(t, 100.0, p.Percentage)
	assert.False(t, p.Running)
}

func TestRunSweep_StatusNeverMovesBack(t *testing.T) {
	gdb := newTestDB(t)
	o := newTestOrchestrator(gdb, &fakeGenerator{})
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, bothStrategy, []string{"A"})
	require.NoError(t, gdb.Model(exp).Update("status", model.StatusComplete).Error)

	require.NoError(t, o.RunSweep(context.Background(), exp.ID, nil))
	assert.Equal(t, model.StatusComplete, reloadStatus(t, gdb, exp.ID))
}

func TestRunSweep_NotFound(t *testing.T) {
	gdb := newTestDB(t)
	o := newTestOrchestrator(gdb, &fakeGenerator{})
	err := o.RunSweep(context.Background(), 999, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunSweep_CallDelay(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{}
	o := NewOrchestrator(gdb, gen, NewPromptBuilder(nil), OrchestratorConfig{CallDelay: 30 * time.Millisecond, Concurrency: 1}, zap.NewNop(), metrics.Nop())
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, bothStrategy, []string{"A", "B"})

	start := time.Now()
	require.NoError(t, o.RunSweep(context.Background(), exp.ID, nil))
	// 4 次调用之间至少 3 个间隔
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 4, gen.Calls())
}

func TestRunSweep_Concurrent(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{}
	o := NewOrchestrator(gdb, gen, NewPromptBuilder(nil), OrchestratorConfig{Concurrency: 4}, zap.NewNop(), metrics.Nop())
	exp := seedExperiment(t, gdb,
		[]model.ModelSelection{openaiGPT4, claudeHaiku, {Provider: model.ProviderGoogle, Model: "gemini-1.5-pro"}},
		bothStrategy, []string{"A", "B", "C", "D"})

	require.NoError(t, o.RunSweep(context.Background(), exp.ID, nil))
	assert.Equal(t, 24, gen.Calls())
	assert.EqualValues(t, 24, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
}

// TestStartSweep_SingleSweepPerExperiment 同一实验的第二个 sweep 与删除都被拒绝
func TestStartSweep_SingleSweepPerExperiment(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	o := newTestOrchestrator(gdb, gen)
	defer o.Close()
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, []model.Strategy{model.StrategyStructured}, []string{"A", "B"})

	sw, err := o.StartSweep(context.Background(), exp.ID, nil)
	require.NoError(t, err)
	<-gen.started

	assert.Same(t, sw, o.Running(exp.ID))
	_, err = o.StartSweep(context.Background(), exp.ID, nil)
	assert.ErrorIs(t, err, ErrSweepRunning)
	assert.ErrorIs(t, o.RunSweep(context.Background(), exp.ID, nil), ErrConflict)

	experiments := NewExperimentService(gdb, o, NewBlindRegistry(gdb, nil, zap.NewNop()), zap.NewNop())
	assert.ErrorIs(t, experiments.Delete(context.Background(), exp.ID), ErrSweepRunning)

	p, err := o.Progress(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.True(t, p.Running)
	assert.Equal(t, model.StatusGenerating, p.Status)
	assert.Equal(t, 2, p.InProgress)

	close(gen.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sw.Wait(ctx))

	completed, total := sw.Progress()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 2, total)
	assert.Nil(t, o.Running(exp.ID))
	assert.Equal(t, model.StatusEvaluating, reloadStatus(t, gdb, exp.ID))
}

// TestStartSweep_RequestContextDoesNotCancel 请求 ctx 结束后后台 sweep 继续
func TestStartSweep_RequestContextDoesNotCancel(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	o := newTestOrchestrator(gdb, gen)
	defer o.Close()
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, []model.Strategy{model.StrategyStructured}, []string{"A"})

	reqCtx, cancelReq := context.WithCancel(context.Background())
	sw, err := o.StartSweep(reqCtx, exp.ID, nil)
	require.NoError(t, err)
	<-gen.started
	cancelReq()
	close(gen.release)

	<-sw.Done()
	require.NoError(t, sw.Err())
	assert.EqualValues(t, 1, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
}

// TestOrchestratorClose_CancelsSweep 取消时不记录失败，状态停留在 generating，之后可续跑
func TestOrchestratorClose_CancelsSweep(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	o := newTestOrchestrator(gdb, gen)
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, bothStrategy, []string{"A", "B"})

	sw, err := o.StartSweep(context.Background(), exp.ID, nil)
	require.NoError(t, err)
	<-gen.started

	o.Close()
	<-sw.Done()
	assert.ErrorIs(t, sw.Err(), context.Canceled)
	assert.Nil(t, o.Running(exp.ID))
	assert.EqualValues(t, 0, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
	assert.Equal(t, model.StatusGenerating, reloadStatus(t, gdb, exp.ID))

	// 续跑
	resume := &fakeGenerator{}
	o2 := newTestOrchestrator(gdb, resume)
	require.NoError(t, o2.RunSweep(context.Background(), exp.ID, nil))
	assert.Equal(t, 4, resume.Calls())
	assert.Equal(t, model.StatusEvaluating, reloadStatus(t, gdb, exp.ID))
}

func TestOrchestratorGenerate(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gdb, gen)
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, []model.Strategy{model.StrategyStructured}, []string{"A"})
	ctx := context.Background()

	req := GenerateRequest{
		ExperimentID: exp.ID,
		TaskID:       "A",
		Provider:     model.ProviderOpenAI,
		Model:        "gpt-4",
		Strategy:     model.StrategyStructured,
	}
	first, err := o.Generate(ctx, req)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	t.Run("dedup_returns_existing", func(t *testing.T) {
		again, err := o.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, 1, gen.Calls())
	})

	t.Run("allow_duplicate_creates_new", func(t *testing.T) {
		dup := req
		dup.AllowDuplicate = true
		g, err := o.Generate(ctx, dup)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, g.ID)
		assert.EqualValues(t, 2, countRows(t, gdb, &model.Generation{}, "experiment_id = ?", exp.ID))
	})

	t.Run("lookup", func(t *testing.T) {
		g, err := o.GetGeneration(ctx, exp.ID, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", g.TaskID)

		_, err = o.GetGeneration(ctx, exp.ID+1, first.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid_requests", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(r *GenerateRequest)
			want   error
		}{
			{"unknown_provider", func(r *GenerateRequest) { r.Provider = "mistral" }, ErrInvalidInput},
			{"unknown_strategy", func(r *GenerateRequest) { r.Strategy = "freestyle" }, ErrInvalidInput},
			{"empty_model", func(r *GenerateRequest) { r.Model = "" }, ErrInvalidInput},
			{"unknown_task", func(r *GenerateRequest) { r.TaskID = "Z" }, ErrNotFound},
			{"unknown_experiment", func(r *GenerateRequest) { r.ExperimentID = 999 }, ErrNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				r := req
				tc.mutate(&r)
				_, err := o.Generate(ctx, r)
				assert.ErrorIs(t, err, tc.want)
			})
		}
	})
}

func TestOrchestratorProgress(t *testing.T) {
	gdb := newTestDB(t)
	o := newTestOrchestrator(gdb, &fakeGenerator{})
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, []model.Strategy{model.StrategyStructured}, []string{"A", "B", "C"})
	seedGeneration(t, gdb, exp.ID, exp.Combinations()[0], "done")
	require.NoError(t, gdb.Model(exp).Update("status", model.StatusGenerating).Error)

	p, err := o.Progress(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 0, p.Failed)
	assert.Equal(t, 2, p.InProgress)
	assert.Equal(t, 33.3, p.Percentage)

	_, err = o.Progress(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
