package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"content-eval/internal/service"
)

type EvaluationHandler struct {
	evaluations *service.EvaluationService
}

func NewEvaluationHandler(evaluations *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations}
}

// NextItem 下一条盲评内容；全部评完或都在评审中时 item 为 null
func (h *EvaluationHandler) NextItem(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	item, err := h.evaluations.Next(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item": item,
	})
}

// SubmitEvaluation 提交评分；evaluation_time_seconds 也可以放在 query 里
func (h *EvaluationHandler) SubmitEvaluation(c *gin.Context) {
	var req service.EvaluationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q := c.Query("evaluation_time_seconds"); q != "" && req.EvaluationTimeSeconds == nil {
		secs, err := strconv.Atoi(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 evaluation_time_seconds: " + q})
			return
		}
		req.EvaluationTimeSeconds = &secs
	}

	eval, err := h.evaluations.Submit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluation": eval,
	})
}

func (h *EvaluationHandler) GetProgress(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	progress, err := h.evaluations.Progress(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progress": progress,
	})
}

// SkipItem 放弃当前分配，内容回到待评池
func (h *EvaluationHandler) SkipItem(c *gin.Context) {
	if err := h.evaluations.Skip(c.Param("blind_id")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "已跳过",
	})
}

func (h *EvaluationHandler) ListEvaluations(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	evals, err := h.evaluations.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluations": evals,
		"total":       len(evals),
	})
}

// Reveal 评分提交后揭晓模型和策略
func (h *EvaluationHandler) Reveal(c *gin.Context) {
	view, err := h.evaluations.Reveal(c.Request.Context(), c.Param("blind_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reveal": view,
	})
}

func (h *EvaluationHandler) DeleteEvaluation(c *gin.Context) {
	id, ok := uintParam(c, "evaluation_id")
	if !ok {
		return
	}

	if err := h.evaluations.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "删除成功",
	})
}
