package service

import "fmt"

const (
	VerdictInsufficientData   = "insufficient_data"
	VerdictStrategyDifference = "strategy_difference"
	VerdictNoDifference       = "no_significant_difference"

	// 每个策略至少这么多条评分才做差异判断
	minEvaluationsPerStrategy = 10
	significanceLevel         = 0.05
)

// Conclusion 根据聚合结果给出的自动结论
type Conclusion struct {
	Verdict string   `json:"verdict"`
	Claims  []string `json:"claims"`
	Caveats []string `json:"caveats"`
}

// GenerateConclusion 工程简化版：只看可发布率的策略差异和模型排名
func GenerateConclusion(summary *Summary, models []ModelAnalysis, strategies []StrategyAnalysis) *Conclusion {
	out := &Conclusion{Verdict: VerdictInsufficientData, Claims: []string{}, Caveats: []string{}}

	if summary.TotalEvaluations == 0 {
		out.Caveats = append(out.Caveats, "尚无评分，无法得出结论。")
		return out
	}
	if summary.TotalEvaluations < summary.TotalGenerations {
		out.Caveats = append(out.Caveats, fmt.Sprintf("仍有 %d 条生成未评审，结论可能变化。", summary.TotalGenerations-summary.TotalEvaluations))
	}

	if len(models) > 0 {
		top := models[0]
		out.Claims = append(out.Claims, fmt.Sprintf("%s/%s 的平均 overall_quality 最高（%.2f，N=%d）。",
			top.Provider, top.ModelName, top.AvgScores.OverallQuality, top.EvaluationCount))
	}

	enough := len(strategies) == 2
	for _, st := range strategies {
		if st.EvaluationCount < minEvaluationsPerStrategy {
			enough = false
			out.Caveats = append(out.Caveats, fmt.Sprintf("%s 策略样本量不足（N=%d，建议 >= %d）。",
				st.Strategy, st.EvaluationCount, minEvaluationsPerStrategy))
		}
	}
	if !enough || summary.StrategyTest == nil {
		return out
	}

	if summary.StrategyTest.PValue < significanceLevel {
		better := strategies[0]
		if strategies[1].Rate > better.Rate {
			better = strategies[1]
		}
		out.Verdict = VerdictStrategyDifference
		out.Claims = append(out.Claims, fmt.Sprintf("%s 策略的可发布率显著更高（%.2f，p=%.4f）。",
			better.Strategy, better.Rate, summary.StrategyTest.PValue))
	} else {
		out.Verdict = VerdictNoDifference
		out.Claims = append(out.Claims, fmt.Sprintf("两种策略的可发布率没有显著差异（p=%.4f）。", summary.StrategyTest.PValue))
	}
	return out
}
