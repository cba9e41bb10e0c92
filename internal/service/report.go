package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"content-eval/internal/model"
)

// Report 汇总、按模型、按策略、按任务四部分组成的 Markdown 报告
func (s *AnalysisService) Report(ctx context.Context, experimentID uint) (string, error) {
	exp, err := loadExperiment(ctx, s.db, experimentID)
	if err != nil {
		return "", err
	}
	summary, err := s.Summary(ctx, experimentID)
	if err != nil {
		return "", err
	}
	models, err := s.ByModel(ctx, experimentID)
	if err != nil {
		return "", err
	}
	strategies, err := s.ByStrategy(ctx, experimentID)
	if err != nil {
		return "", err
	}
	tasks, err := s.ByTask(ctx, experimentID)
	if err != nil {
		return "", err
	}
	return RenderReportMarkdown(exp, summary, models, strategies, tasks), nil
}

func RenderReportMarkdown(exp *model.Experiment, summary *Summary, models []ModelAnalysis, strategies []StrategyAnalysis, tasks []TaskAnalysis) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# 实验报告：%s\n\n", exp.Name))
	b.WriteString(fmt.Sprintf("- experiment_id: %d\n", exp.ID))
	b.WriteString(fmt.Sprintf("- status: %s\n", exp.Status))
	b.WriteString(fmt.Sprintf("- created_at: %s\n", exp.CreatedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- generations: %d\n", summary.TotalGenerations))
	b.WriteString(fmt.Sprintf("- evaluations: %d\n", summary.TotalEvaluations))
	b.WriteString(fmt.Sprintf("- total_cost_usd: %.4f\n", summary.TotalCost))
	b.WriteString(fmt.Sprintf("- avg_latency_ms: %.2f\n\n", summary.AvgLatencyMs))

	b.WriteString("## 总体评分\n\n")
	writeScoreTable(&b, []string{"全部"}, []ScoreMeans{summary.AvgScores})
	b.WriteString(fmt.Sprintf("\n- would_publish_rate: %.2f\n", summary.WouldPublishRate))
	if summary.BestCombination != nil {
		b.WriteString(fmt.Sprintf("- best: %s\n", formatCombination(summary.BestCombination)))
	}
	if summary.WorstCombination != nil {
		b.WriteString(fmt.Sprintf("- worst: %s\n", formatCombination(summary.WorstCombination)))
	}
	b.WriteString("\n")

	b.WriteString("## 按模型\n\n")
	if len(models) == 0 {
		b.WriteString("- 暂无评分\n\n")
	} else {
		b.WriteString("| 模型 | N | Overall | Publish | CI95 | Avg Cost | Avg Latency |\n")
		b.WriteString("| --- | ---: | ---: | ---: | --- | ---: | ---: |\n")
		for _, m := range models {
			b.WriteString(fmt.Sprintf("| %s/%s | %d | %.2f | %.2f | [%.3f, %.3f] | %.4f | %.2f |\n",
				m.Provider, m.ModelName, m.EvaluationCount, m.AvgScores.OverallQuality,
				m.Rate, m.CI95Low, m.CI95High, m.AvgCost, m.AvgLatencyMs))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 按策略\n\n")
	if len(strategies) == 0 {
		b.WriteString("- 暂无评分\n\n")
	} else {
		b.WriteString("| 策略 | N | Overall | Publish | CI95 |\n")
		b.WriteString("| --- | ---: | ---: | ---: | --- |\n")
		for _, st := range strategies {
			b.WriteString(fmt.Sprintf("| %s | %d | %.2f | %.2f | [%.3f, %.3f] |\n",
				st.Strategy, st.EvaluationCount, st.AvgScores.OverallQuality, st.Rate, st.CI95Low, st.CI95High))
		}
		if t := summary.StrategyTest; t != nil {
			b.WriteString(fmt.Sprintf("\n- 可发布率差异检验: z=%.3f, p=%.4f\n", t.Z, t.PValue))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 按任务\n\n")
	if len(tasks) == 0 {
		b.WriteString("- 暂无评分\n\n")
	} else {
		b.WriteString("| 任务 | 类型 | N | Overall | 最佳模型 | 最佳策略 |\n")
		b.WriteString("| --- | --- | ---: | ---: | --- | --- |\n")
		for _, t := range tasks {
			b.WriteString(fmt.Sprintf("| %s %s | %s | %d | %.2f | %s | %s |\n",
				t.TaskID, t.TaskTitle, t.ContentType, t.EvaluationCount, t.AvgScores.OverallQuality, t.BestModel, t.BestStrategy))
		}
		b.WriteString("\n")
	}

	c := GenerateConclusion(summary, models, strategies)
	b.WriteString("## 自动结论\n\n")
	b.WriteString(fmt.Sprintf("- verdict: %s\n", c.Verdict))
	if len(c.Claims) > 0 {
		b.WriteString("\n### 主要论断\n\n")
		for _, claim := range c.Claims {
			b.WriteString(fmt.Sprintf("- %s\n", claim))
		}
	}
	if len(c.Caveats) > 0 {
		b.WriteString("\n### 注意事项/局限\n\n")
		for _, caveat := range c.Caveats {
			b.WriteString(fmt.Sprintf("- %s\n", caveat))
		}
	}
	return b.String()
}

func writeScoreTable(b *strings.Builder, labels []string, rows []ScoreMeans) {
	b.WriteString("| | Voice | Coherence | Engaging | Brief | Overall |\n")
	b.WriteString("| --- | ---: | ---: | ---: | ---: | ---: |\n")
	for i, r := range rows {
		b.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
			labels[i], r.VoiceMatch, r.Coherence, r.Engaging, r.MeetsBrief, r.OverallQuality))
	}
}

func formatCombination(c *CombinationScore) string {
	return fmt.Sprintf("%s/%s %s task=%s overall=%d", c.Provider, c.ModelName, c.Strategy, c.TaskID, c.OverallQuality)
}
