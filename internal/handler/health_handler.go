package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	AppName = "content-eval"
	// Version 构建时通过 -ldflags "-X content-eval/internal/handler.Version=..." 注入
	Version = "dev"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"app":     AppName,
		"version": Version,
	})
}
