package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"content-eval/internal/service"
)

type ExperimentHandler struct {
	experiments *service.ExperimentService
}

func NewExperimentHandler(experiments *service.ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

// CreateExperiment 创建实验
func (h *ExperimentHandler) CreateExperiment(c *gin.Context) {
	var req service.CreateExperimentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exp, err := h.experiments.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiment": exp,
	})
}

// ListExperiments 按创建时间倒序列出实验
func (h *ExperimentHandler) ListExperiments(c *gin.Context) {
	exps, err := h.experiments.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiments": exps,
		"total":       len(exps),
	})
}

func (h *ExperimentHandler) GetExperiment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	exp, err := h.experiments.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiment": exp,
	})
}

// UpdateStatus 手动修改实验状态，?status=setup|generating|evaluating|complete
func (h *ExperimentHandler) UpdateStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	exp, err := h.experiments.UpdateStatus(c.Request.Context(), id, c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "状态已更新为 " + string(exp.Status),
		"experiment": exp,
	})
}

// DeleteExperiment 删除实验及其生成和评分
func (h *ExperimentHandler) DeleteExperiment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.experiments.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "删除成功",
	})
}
