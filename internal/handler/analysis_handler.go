package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"content-eval/internal/service"
)

type AnalysisHandler struct {
	analysis *service.AnalysisService
}

func NewAnalysisHandler(analysis *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

func (h *AnalysisHandler) Summary(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	summary, err := h.analysis.Summary(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
	})
}

func (h *AnalysisHandler) ByModel(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	models, err := h.analysis.ByModel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"models": models,
	})
}

func (h *AnalysisHandler) ByStrategy(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	strategies, err := h.analysis.ByStrategy(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"strategies": strategies,
	})
}

func (h *AnalysisHandler) ByTask(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	tasks, err := h.analysis.ByTask(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
	})
}

// Heatmap 模型 x 策略的平均 overall_quality
func (h *AnalysisHandler) Heatmap(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	heatmap, err := h.analysis.Heatmap(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"heatmap": heatmap,
	})
}

// Conclusion 基于汇总结果的自动结论
func (h *AnalysisHandler) Conclusion(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	summary, err := h.analysis.Summary(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	models, err := h.analysis.ByModel(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	strategies, err := h.analysis.ByStrategy(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conclusion": service.GenerateConclusion(summary, models, strategies),
	})
}

// Report Markdown 格式的完整报告
func (h *AnalysisHandler) Report(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	md, err := h.analysis.Report(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

// Export 全部评分导出为 CSV 附件；先写入内存，出错时还能返回 JSON
func (h *AnalysisHandler) Export(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.analysis.ExportCSV(c.Request.Context(), id, &buf); err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=experiment_%d_results.csv", id))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}
