package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"content-eval/internal/llm"
	"content-eval/internal/model"
	"content-eval/internal/service"
)

type GenerationHandler struct {
	orchestrator *service.Orchestrator
	client       *llm.Client
	logger       *zap.Logger
}

func NewGenerationHandler(orchestrator *service.Orchestrator, client *llm.Client, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		orchestrator: orchestrator,
		client:       client,
		logger:       logger,
	}
}

// combinationRequest 单个组合；allow_duplicate 缺省为 true，总是新建一条记录
type combinationRequest struct {
	TaskID         string `json:"task_id" form:"task_id" binding:"required"`
	Provider       string `json:"provider" form:"provider" binding:"required"`
	Model          string `json:"model" form:"model" binding:"required"`
	Strategy       string `json:"strategy" form:"strategy" binding:"required"`
	AllowDuplicate *bool  `json:"allow_duplicate" form:"allow_duplicate"`
}

func (r *combinationRequest) toRequest(experimentID uint) service.GenerateRequest {
	allow := true
	if r.AllowDuplicate != nil {
		allow = *r.AllowDuplicate
	}
	return service.GenerateRequest{
		ExperimentID:   experimentID,
		TaskID:         r.TaskID,
		Provider:       model.Provider(r.Provider),
		Model:          r.Model,
		Strategy:       model.Strategy(r.Strategy),
		AllowDuplicate: allow,
	}
}

// StartGeneration run_all 时后台跑完整 sweep；否则同步生成 specific_combination
func (h *GenerationHandler) StartGeneration(c *gin.Context) {
	var req struct {
		ExperimentID        uint                `json:"experiment_id" binding:"required"`
		RunAll              bool                `json:"run_all"`
		SpecificCombination *combinationRequest `json:"specific_combination"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.RunAll {
		log := h.logger.With(zap.Uint("experiment_id", req.ExperimentID))
		sweep, err := h.orchestrator.StartSweep(c.Request.Context(), req.ExperimentID, func(completed, total int) {
			log.Debug("生成进度", zap.Int("completed", completed), zap.Int("total", total))
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":       "已在后台开始生成",
			"experiment_id": sweep.ExperimentID,
		})
		return
	}

	combo := req.SpecificCombination
	if combo == nil || combo.TaskID == "" || combo.Provider == "" || combo.Model == "" || combo.Strategy == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_all 为 false 时必须提供完整的 specific_combination"})
		return
	}

	gen, err := h.orchestrator.Generate(c.Request.Context(), combo.toRequest(req.ExperimentID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "生成完成",
		"generation_id": gen.ID,
	})
}

// GenerateSingle 参数走 query string
func (h *GenerationHandler) GenerateSingle(c *gin.Context) {
	var req struct {
		ExperimentID uint `form:"experiment_id" binding:"required"`
		combinationRequest
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gen, err := h.orchestrator.Generate(c.Request.Context(), req.toRequest(req.ExperimentID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generation": gen,
	})
}

func (h *GenerationHandler) GetProgress(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	progress, err := h.orchestrator.Progress(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progress": progress,
	})
}

func (h *GenerationHandler) ListGenerations(c *gin.Context) {
	id, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}

	gens, err := h.orchestrator.ListGenerations(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generations": gens,
		"total":       len(gens),
	})
}

func (h *GenerationHandler) GetGeneration(c *gin.Context) {
	expID, ok := uintParam(c, "experiment_id")
	if !ok {
		return
	}
	genID, ok := uintParam(c, "generation_id")
	if !ok {
		return
	}

	gen, err := h.orchestrator.GetGeneration(c.Request.Context(), expID, genID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generation": gen,
	})
}

// TestLLM 向每个已配置的供应商发一个最小请求
func (h *GenerationHandler) TestLLM(c *gin.Context) {
	results := h.client.Check(c.Request.Context())

	connected := 0
	for _, ok := range results {
		if ok {
			connected++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": results,
		"summary":     fmt.Sprintf("%d/%d providers connected", connected, len(results)),
	})
}
