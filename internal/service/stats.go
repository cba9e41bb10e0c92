package service

import (
	"math"

	"content-eval/internal/llm"
	"content-eval/internal/model"
)

// ScoreMeans 五个维度的平均分，保留两位小数
type ScoreMeans struct {
	VoiceMatch     float64 `json:"voice_match"`
	Coherence      float64 `json:"coherence"`
	Engaging       float64 `json:"engaging"`
	MeetsBrief     float64 `json:"meets_brief"`
	OverallQuality float64 `json:"overall_quality"`
}

// PublishStats 可发布比例及其 Wilson 95% 置信区间
type PublishStats struct {
	Rate     float64 `json:"would_publish_rate"`
	CI95Low  float64 `json:"ci95_low"`
	CI95High float64 `json:"ci95_high"`
}

func meanScores(evals []*model.Evaluation) ScoreMeans {
	if len(evals) == 0 {
		return ScoreMeans{}
	}
	var sum [5]int
	for _, e := range evals {
		sum[0] += e.VoiceMatch
		sum[1] += e.Coherence
		sum[2] += e.Engaging
		sum[3] += e.MeetsBrief
		sum[4] += e.OverallQuality
	}
	n := float64(len(evals))
	return ScoreMeans{
		VoiceMatch:     llm.Round(float64(sum[0])/n, 2),
		Coherence:      llm.Round(float64(sum[1])/n, 2),
		Engaging:       llm.Round(float64(sum[2])/n, 2),
		MeetsBrief:     llm.Round(float64(sum[3])/n, 2),
		OverallQuality: llm.Round(float64(sum[4])/n, 2),
	}
}

func countPublishable(evals []*model.Evaluation) int {
	k := 0
	for _, e := range evals {
		if e.WouldPublish.Publishable() {
			k++
		}
	}
	return k
}

func publishStats(evals []*model.Evaluation) PublishStats {
	n := len(evals)
	if n == 0 {
		return PublishStats{}
	}
	k := countPublishable(evals)
	low, high := wilsonCI(k, n, 1.96)
	return PublishStats{
		Rate:     llm.Round(float64(k)/float64(n), 2),
		CI95Low:  llm.Round(low, 4),
		CI95High: llm.Round(high, 4),
	}
}

// Wilson score interval for proportion
func wilsonCI(k int, n int, z float64) (float64, float64) {
	if n == 0 {
		return 0, 0
	}
	p := float64(k) / float64(n)
	zz := z * z
	den := 1 + zz/float64(n)
	center := (p + zz/(2*float64(n))) / den
	half := (z / den) * math.Sqrt((p*(1-p)+zz/(4*float64(n)))/float64(n))
	low := math.Max(0, center-half)
	high := math.Min(1, center+half)
	return low, high
}

// two-proportion z-test (two-sided)
func twoPropZTest(x1, n1, x2, n2 int) (pValue float64, z float64) {
	if n1 == 0 || n2 == 0 {
		return 1, 0
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	p := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(p * (1 - p) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1, 0
	}
	z = (p2 - p1) / se
	pValue = 2 * (1 - normCDF(math.Abs(z)))
	return pValue, z
}

// standard normal CDF approximation via erf
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range vs {
		s += v
	}
	return s / float64(len(vs))
}
