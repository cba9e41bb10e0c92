package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"content-eval/internal/config"
	"content-eval/internal/llm"
	"content-eval/internal/metrics"
	"content-eval/internal/model"
)

func newTestEvaluations(t *testing.T) (*EvaluationService, *BlindRegistry, *model.Experiment) {
	t.Helper()
	gdb := newTestDB(t)
	r := newTestRegistry(gdb)
	exp := seedExperiment(t, gdb, []model.ModelSelection{openaiGPT4}, bothStrategy, []string{"A"})
	seedGenerations(t, gdb, exp)
	require.NoError(t, gdb.Model(exp).Update("status", model.StatusEvaluating).Error)
	return NewEvaluationService(gdb, r, zap.NewNop(), metrics.Nop()), r, exp
}

func TestEvaluationSubmit_Validation(t *testing.T) {
	s, _, _ := newTestEvaluations(t)
	negative := -1

	cases := []struct {
		name   string
		mutate func(in *EvaluationInput)
	}{
		{"missing_blind_id", func(in *EvaluationInput) { in.BlindID = "" }},
		{"score_zero", func(in *EvaluationInput) { in.VoiceMatch = 0 }},
		{"score_six", func(in *EvaluationInput) { in.OverallQuality = 6 }},
		{"negative_edit_time", func(in *EvaluationInput) { in.EditTimeMinutes = -5 }},
		{"missing_publish", func(in *EvaluationInput) { in.WouldPublish = "" }},
		{"bad_publish", func(in *EvaluationInput) { in.WouldPublish = "maybe" }},
		{"negative_eval_time", func(in *EvaluationInput) { in.EvaluationTimeSeconds = &negative }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput("ABCDEFGH")
			tc.mutate(in)
			_, err := s.Submit(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

// TestEvaluationSubmit_Completion 评完最后一条时实验进入 complete
func TestEvaluationSubmit_Completion(t *testing.T) {
	s, _, exp := newTestEvaluations(t)
	ctx := context.Background()

	first, err := s.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := s.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, second)

	p, err := s.Progress(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 0, p.Completed)
	assert.Equal(t, 2, p.InReview)

	secs := 95
	in := validInput(first.BlindID)
	in.EvaluationTimeSeconds = &secs
	eval, err := s.Submit(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, eval.EvaluationTimeSeconds)
	assert.Equal(t, 95, *eval.EvaluationTimeSeconds)
	assert.Equal(t, model.StatusEvaluating, reloadStatus(t, s.db, exp.ID))

	p, err = s.Progress(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Remaining)
	assert.Equal(t, 1, p.InReview)
	assert.Equal(t, 50.0, p.Percentage)

	_, err = s.Submit(ctx, validInput(second.BlindID))
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, reloadStatus(t, s.db, exp.ID))

	p, err = s.Progress(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Percentage)
	assert.Equal(t, 0, p.Remaining)

	none, err := s.Next(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEvaluationSkip(t *testing.T) {
	s, r, exp := newTestEvaluations(t)
	ctx := context.Background()

	item, err := s.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, item)

	require.NoError(t, s.Skip(item.BlindID))
	assert.ErrorIs(t, s.Skip(item.BlindID), ErrNotFound)
	assert.Equal(t, 0, r.Outstanding(exp.ID))
}

// TestEvaluationDelete 删除评分后生成记录可以重新评，状态不回退
func TestEvaluationDelete(t *testing.T) {
	s, _, exp := newTestEvaluations(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		item, err := s.Next(ctx, exp.ID)
		require.NoError(t, err)
		require.NotNil(t, item)
		_, err = s.Submit(ctx, validInput(item.BlindID))
		require.NoError(t, err)
	}
	assert.Equal(t, model.StatusComplete, reloadStatus(t, s.db, exp.ID))

	evals, err := s.List(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, evals, 2)

	require.NoError(t, s.Delete(ctx, evals[0].ID))
	assert.ErrorIs(t, s.Delete(ctx, evals[0].ID), ErrNotFound)
	assert.Equal(t, model.StatusComplete, reloadStatus(t, s.db, exp.ID))

	item, err := s.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, item)
}

type scriptedProvider struct {
	name model.Provider
}

func (p *scriptedProvider) Name() model.Provider { return p.name }

func (p *scriptedProvider) Complete(_ context.Context, modelName, prompt string, _ llm.Params) (*llm.Completion, error) {
	return &llm.Completion{
		Content:          modelName + " wrote: " + strings.SplitN(prompt, "\n", 2)[0],
		PromptTokens:     1000,
		CompletionTokens: 500,
	}, nil
}

// TestEndToEnd 创建实验、生成、盲评、揭晓、汇总的完整流程
func TestEndToEnd(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	reg := llm.NewRegistry()
	reg.Register(&scriptedProvider{name: model.ProviderOpenAI}, llm.Params{Temperature: 0.5, MaxTokens: 300})
	client := llm.NewClient(reg, llm.NewPricing(nil, zap.NewNop()), 5*time.Second, zap.NewNop())
	cfg := &config.Config{Generation: config.GenerationConfig{Concurrency: 1}}
	svc := NewServiceContext(gdb, cfg, client, zap.NewNop(), metrics.Nop())
	defer svc.Close()

	exp, err := svc.Experiments.Create(ctx, &CreateExperimentInput{
		Name:               "voice check",
		BaselineSamples:    []string{"We ship small.", "We ship often."},
		SelectedModels:     []ModelInput{{Provider: "openai", Model: "gpt-4"}, {Provider: "anthropic", Model: "claude-3-haiku-20240307"}},
		SelectedStrategies: []string{"structured"},
		SelectedTasks:      []string{"A"},
	})
	require.NoError(t, err)

	sw, err := svc.Orchestrator.StartSweep(ctx, exp.ID, nil)
	require.NoError(t, err)
	require.NoError(t, sw.Wait(ctx))

	gens, err := svc.Orchestrator.ListGenerations(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, gens, 2)
	byProvider := map[model.Provider]model.Generation{}
	for _, g := range gens {
		byProvider[g.Provider] = g
	}
	ok := byProvider[model.ProviderOpenAI]
	assert.True(t, strings.HasPrefix(ok.GeneratedContent, "gpt-4 wrote: "))
	assert.Equal(t, 0.06, ok.CostUSD)
	assert.Equal(t, json.Number("0.5"), ok.GenerationParams["temperature"])
	// anthropic 没有配置 key，记为失败
	failed := byProvider[model.ProviderAnthropic]
	assert.True(t, failed.Failed())
	assert.Contains(t, failed.Error, "not configured")

	got, err := svc.Experiments.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEvaluating, got.Status)

	var blindIDs []string
	for {
		item, err := svc.Evaluations.Next(ctx, exp.ID)
		require.NoError(t, err)
		if item == nil {
			break
		}
		in := validInput(item.BlindID)
		if item.Content == "" {
			in.OverallQuality = 1
			in.WouldPublish = model.PublishNo
		} else {
			in.OverallQuality = 5
			in.WouldPublish = model.PublishYes
		}
		_, err = svc.Evaluations.Submit(ctx, in)
		require.NoError(t, err)
		blindIDs = append(blindIDs, item.BlindID)
	}
	require.Len(t, blindIDs, 2)

	got, err = svc.Experiments.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, got.Status)

	for _, id := range blindIDs {
		v, err := svc.Evaluations.Reveal(ctx, id)
		require.NoError(t, err)
		if v.Provider == model.ProviderOpenAI {
			assert.Equal(t, 5, v.Scores["overall_quality"])
		} else {
			assert.Equal(t, 1, v.Scores["overall_quality"])
		}
	}

	summary, err := svc.Analysis.Summary(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalEvaluations)
	assert.Equal(t, 0.5, summary.WouldPublishRate)
	assert.Equal(t, 0.06, summary.TotalCost)
	require.NotNil(t, summary.BestCombination)
	assert.Equal(t, model.ProviderOpenAI, summary.BestCombination.Provider)
	assert.Equal(t, model.ProviderAnthropic, summary.WorstCombination.Provider)
}
