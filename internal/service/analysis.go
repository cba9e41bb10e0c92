package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"content-eval/internal/llm"
	"content-eval/internal/model"
)

// CSVHeader 导出文件的固定列
var CSVHeader = []string{
	"Evaluation ID",
	"Task ID",
	"Task Title",
	"Content Type",
	"Model Provider",
	"Model Name",
	"Prompt Strategy",
	"Voice Match",
	"Coherence",
	"Engaging",
	"Meets Brief",
	"Overall Quality",
	"Would Publish",
	"Edit Time (min)",
	"Notes",
	"Cost (USD)",
	"Latency (ms)",
	"Evaluated At",
}

// CombinationScore 单条评分对应的组合
type CombinationScore struct {
	Provider       model.Provider `json:"model_provider"`
	ModelName      string         `json:"model_name"`
	Strategy       model.Strategy `json:"prompt_strategy"`
	TaskID         string         `json:"task_id"`
	OverallQuality int            `json:"overall_quality"`
}

// ProportionTest structured 与 example_based 可发布率的双比例检验
type ProportionTest struct {
	PValue float64 `json:"p_value"`
	Z      float64 `json:"z"`
}

type Summary struct {
	ExperimentID     uint              `json:"experiment_id"`
	TotalGenerations int               `json:"total_generations"`
	TotalEvaluations int               `json:"total_evaluations"`
	AvgScores        ScoreMeans        `json:"avg_scores"`
	WouldPublishRate float64           `json:"would_publish_rate"`
	BestCombination  *CombinationScore `json:"best_combination"`
	WorstCombination *CombinationScore `json:"worst_combination"`
	TotalCost        float64           `json:"total_cost"`
	AvgLatencyMs     float64           `json:"avg_latency_ms"`
	StrategyTest     *ProportionTest   `json:"strategy_publish_test,omitempty"`
}

type ModelAnalysis struct {
	Provider        model.Provider `json:"model_provider"`
	ModelName       string         `json:"model_name"`
	AvgScores       ScoreMeans     `json:"avg_scores"`
	EvaluationCount int            `json:"evaluation_count"`
	AvgCost         float64        `json:"avg_cost"`
	AvgLatencyMs    float64        `json:"avg_latency_ms"`
	PublishStats
}

type StrategyAnalysis struct {
	Strategy        model.Strategy `json:"strategy"`
	AvgScores       ScoreMeans     `json:"avg_scores"`
	EvaluationCount int            `json:"evaluation_count"`
	PublishStats
}

type TaskAnalysis struct {
	TaskID          string            `json:"task_id"`
	TaskTitle       string            `json:"task_title"`
	ContentType     model.ContentType `json:"content_type"`
	AvgScores       ScoreMeans        `json:"avg_scores"`
	BestModel       string            `json:"best_model"`
	BestStrategy    model.Strategy    `json:"best_strategy"`
	EvaluationCount int               `json:"evaluation_count"`
}

// Heatmap "provider/model" -> strategy -> 平均 overall_quality
type Heatmap map[string]map[string]float64

// AnalysisService 只读聚合
type AnalysisService struct {
	db *gorm.DB
}

func NewAnalysisService(db *gorm.DB) *AnalysisService {
	return &AnalysisService{db: db}
}

type dataset struct {
	exp     *model.Experiment
	gens    []model.Generation
	genByID map[uint]*model.Generation
	// 按评审时间升序，并列时先评的在前
	evals []*model.Evaluation
	tasks map[string]*model.Task
}

func (s *AnalysisService) load(ctx context.Context, experimentID uint) (*dataset, error) {
	exp, err := loadExperiment(ctx, s.db, experimentID)
	if err != nil {
		return nil, err
	}
	ds := &dataset{exp: exp, genByID: map[uint]*model.Generation{}, tasks: map[string]*model.Task{}}

	if err := s.db.WithContext(ctx).Where("experiment_id = ?", experimentID).Order("id").Find(&ds.gens).Error; err != nil {
		return nil, fmt.Errorf("查询生成记录失败: %w", err)
	}
	for i := range ds.gens {
		ds.genByID[ds.gens[i].ID] = &ds.gens[i]
	}

	var evals []model.Evaluation
	if err := s.db.WithContext(ctx).Where("experiment_id = ?", experimentID).Order("evaluated_at, id").Find(&evals).Error; err != nil {
		return nil, fmt.Errorf("查询评分失败: %w", err)
	}
	for i := range evals {
		if _, ok := ds.genByID[evals[i].GenerationID]; ok {
			ds.evals = append(ds.evals, &evals[i])
		}
	}

	var tasks []model.Task
	if err := s.db.WithContext(ctx).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	for i := range tasks {
		ds.tasks[tasks[i].ID] = &tasks[i]
	}
	return ds, nil
}

func (ds *dataset) gen(e *model.Evaluation) *model.Generation {
	return ds.genByID[e.GenerationID]
}

func (ds *dataset) evalsWhere(keep func(g *model.Generation) bool) []*model.Evaluation {
	var out []*model.Evaluation
	for _, e := range ds.evals {
		if keep(ds.gen(e)) {
			out = append(out, e)
		}
	}
	return out
}

// extremes 按 overall_quality 取最高和最低；并列时取最早的评分
func extremes(evals []*model.Evaluation) (best, worst *model.Evaluation) {
	for _, e := range evals {
		if best == nil || e.OverallQuality > best.OverallQuality {
			best = e
		}
		if worst == nil || e.OverallQuality < worst.OverallQuality {
			worst = e
		}
	}
	return best, worst
}

func (ds *dataset) combination(e *model.Evaluation) *CombinationScore {
	if e == nil {
		return nil
	}
	g := ds.gen(e)
	return &CombinationScore{
		Provider:       g.Provider,
		ModelName:      g.ModelName,
		Strategy:       g.Strategy,
		TaskID:         g.TaskID,
		OverallQuality: e.OverallQuality,
	}
}

func (s *AnalysisService) Summary(ctx context.Context, experimentID uint) (*Summary, error) {
	ds, err := s.load(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	var cost float64
	latencies := make([]float64, 0, len(ds.gens))
	for _, g := range ds.gens {
		cost += g.CostUSD
		latencies = append(latencies, g.LatencyMs)
	}

	best, worst := extremes(ds.evals)
	out := &Summary{
		ExperimentID:     experimentID,
		TotalGenerations: len(ds.gens),
		TotalEvaluations: len(ds.evals),
		AvgScores:        meanScores(ds.evals),
		WouldPublishRate: publishStats(ds.evals).Rate,
		BestCombination:  ds.combination(best),
		WorstCombination: ds.combination(worst),
		TotalCost:        llm.Round(cost, 4),
		AvgLatencyMs:     llm.Round(mean(latencies), 2),
	}

	structured := ds.evalsWhere(func(g *model.Generation) bool { return g.Strategy == model.StrategyStructured })
	example := ds.evalsWhere(func(g *model.Generation) bool { return g.Strategy == model.StrategyExampleBased })
	if len(structured) > 0 && len(example) > 0 {
		p, z := twoPropZTest(countPublishable(structured), len(structured), countPublishable(example), len(example))
		out.StrategyTest = &ProportionTest{PValue: llm.Round(p, 4), Z: llm.Round(z, 4)}
	}
	return out, nil
}

// ByModel 按 overall_quality 降序；没有评分的模型不出现
func (s *AnalysisService) ByModel(ctx context.Context, experimentID uint) ([]ModelAnalysis, error) {
	ds, err := s.load(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	type group struct {
		provider  model.Provider
		modelName string
		gens      []*model.Generation
	}
	var order []string
	groups := map[string]*group{}
	for i := range ds.gens {
		g := &ds.gens[i]
		key := model.ModelSelection{Provider: g.Provider, Model: g.ModelName}.Key()
		if _, ok := groups[key]; !ok {
			groups[key] = &group{provider: g.Provider, modelName: g.ModelName}
			order = append(order, key)
		}
		groups[key].gens = append(groups[key].gens, g)
	}

	out := make([]ModelAnalysis, 0, len(order))
	for _, key := range order {
		grp := groups[key]
		evals := ds.evalsWhere(func(g *model.Generation) bool {
			return g.Provider == grp.provider && g.ModelName == grp.modelName
		})
		if len(evals) == 0 {
			continue
		}
		costs := make([]float64, 0, len(grp.gens))
		latencies := make([]float64, 0, len(grp.gens))
		for _, g := range grp.gens {
			costs = append(costs, g.CostUSD)
			latencies = append(latencies, g.LatencyMs)
		}
		out = append(out, ModelAnalysis{
			Provider:        grp.provider,
			ModelName:       grp.modelName,
			AvgScores:       meanScores(evals),
			EvaluationCount: len(evals),
			AvgCost:         llm.Round(mean(costs), 4),
			AvgLatencyMs:    llm.Round(mean(latencies), 2),
			PublishStats:    publishStats(evals),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvgScores.OverallQuality > out[j].AvgScores.OverallQuality
	})
	return out, nil
}

// ByStrategy structured 在前，example_based 在后
func (s *AnalysisService) ByStrategy(ctx context.Context, experimentID uint) ([]StrategyAnalysis, error) {
	ds, err := s.load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	out := make([]StrategyAnalysis, 0, 2)
	for _, st := range model.AllStrategies() {
		evals := ds.evalsWhere(func(g *model.Generation) bool { return g.Strategy == st })
		if len(evals) == 0 {
			continue
		}
		out = append(out, StrategyAnalysis{
			Strategy:        st,
			AvgScores:       meanScores(evals),
			EvaluationCount: len(evals),
			PublishStats:    publishStats(evals),
		})
	}
	return out, nil
}

func (s *AnalysisService) ByTask(ctx context.Context, experimentID uint) ([]TaskAnalysis, error) {
	ds, err := s.load(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(ds.tasks))
	for id := range ds.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]TaskAnalysis, 0, len(ids))
	for _, id := range ids {
		task := ds.tasks[id]
		evals := ds.evalsWhere(func(g *model.Generation) bool { return g.TaskID == id })
		if len(evals) == 0 {
			continue
		}
		best, _ := extremes(evals)
		bg := ds.gen(best)
		out = append(out, TaskAnalysis{
			TaskID:          task.ID,
			TaskTitle:       task.Title,
			ContentType:     task.ContentType,
			AvgScores:       meanScores(evals),
			BestModel:       model.ModelSelection{Provider: bg.Provider, Model: bg.ModelName}.Key(),
			BestStrategy:    bg.Strategy,
			EvaluationCount: len(evals),
		})
	}
	return out, nil
}

// Heatmap 覆盖所有已生成的组合，未评分的记为 0
func (s *AnalysisService) Heatmap(ctx context.Context, experimentID uint) (Heatmap, error) {
	ds, err := s.load(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	scores := map[string]map[string][]float64{}
	out := Heatmap{}
	for _, g := range ds.gens {
		key := model.ModelSelection{Provider: g.Provider, Model: g.ModelName}.Key()
		if out[key] == nil {
			out[key] = map[string]float64{}
			scores[key] = map[string][]float64{}
		}
		out[key][string(g.Strategy)] = 0
	}
	for _, e := range ds.evals {
		g := ds.gen(e)
		key := model.ModelSelection{Provider: g.Provider, Model: g.ModelName}.Key()
		scores[key][string(g.Strategy)] = append(scores[key][string(g.Strategy)], float64(e.OverallQuality))
	}
	for key, byStrategy := range scores {
		for st, vs := range byStrategy {
			out[key][st] = llm.Round(mean(vs), 2)
		}
	}
	return out, nil
}

// ExportCSV 每条评分一行
func (s *AnalysisService) ExportCSV(ctx context.Context, experimentID uint, w io.Writer) error {
	ds, err := s.load(ctx, experimentID)
	if err != nil {
		return err
	}

	evals := append([]*model.Evaluation(nil), ds.evals...)
	sort.Slice(evals, func(i, j int) bool { return evals[i].ID < evals[j].ID })

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("写入 CSV 失败: %w", err)
	}
	for _, e := range evals {
		g := ds.gen(e)
		task := ds.tasks[g.TaskID]
		if task == nil {
			task = &model.Task{ID: g.TaskID}
		}
		row := []string{
			strconv.FormatUint(uint64(e.ID), 10),
			task.ID,
			task.Title,
			string(task.ContentType),
			string(g.Provider),
			g.ModelName,
			string(g.Strategy),
			strconv.Itoa(e.VoiceMatch),
			strconv.Itoa(e.Coherence),
			strconv.Itoa(e.Engaging),
			strconv.Itoa(e.MeetsBrief),
			strconv.Itoa(e.OverallQuality),
			string(e.WouldPublish),
			strconv.Itoa(e.EditTimeMinutes),
			e.Notes,
			strconv.FormatFloat(g.CostUSD, 'f', -1, 64),
			strconv.FormatFloat(g.LatencyMs, 'f', -1, 64),
			e.EvaluatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("写入 CSV 失败: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
