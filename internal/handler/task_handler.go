package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"content-eval/internal/service"
)

type TaskHandler struct {
	experiments *service.ExperimentService
}

func NewTaskHandler(experiments *service.ExperimentService) *TaskHandler {
	return &TaskHandler{experiments: experiments}
}

// ListTasks 任务目录
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.experiments.Tasks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
	})
}
