package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"content-eval/internal/handler"
	"content-eval/internal/service"
)

func SetupRouter(svc *service.ServiceContext, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger), CORS())

	// 初始化handlers
	experimentHandler := handler.NewExperimentHandler(svc.Experiments)
	taskHandler := handler.NewTaskHandler(svc.Experiments)
	generationHandler := handler.NewGenerationHandler(svc.Orchestrator, svc.LLM, logger.Named("generation"))
	evaluationHandler := handler.NewEvaluationHandler(svc.Evaluations)
	analysisHandler := handler.NewAnalysisHandler(svc.Analysis)

	r.GET("/health", handler.Health)

	// API路由
	api := r.Group("/api")
	{
		// 实验相关
		experiments := api.Group("/experiments")
		{
			experiments.POST("", experimentHandler.CreateExperiment)
			experiments.GET("", experimentHandler.ListExperiments)
			experiments.GET("/tasks/all", taskHandler.ListTasks)
			experiments.GET("/:id", experimentHandler.GetExperiment)
			experiments.PUT("/:id/status", experimentHandler.UpdateStatus)
			experiments.DELETE("/:id", experimentHandler.DeleteExperiment)
		}

		// 生成相关
		generations := api.Group("/generations")
		{
			generations.POST("/start", generationHandler.StartGeneration)
			generations.POST("/single", generationHandler.GenerateSingle)
			generations.POST("/test-llm", generationHandler.TestLLM)
			generations.GET("/progress/:experiment_id", generationHandler.GetProgress)
			generations.GET("/:experiment_id", generationHandler.ListGenerations)
			generations.GET("/:experiment_id/:generation_id", generationHandler.GetGeneration)
		}

		// 盲评相关
		evaluations := api.Group("/evaluations")
		{
			evaluations.GET("/next/:experiment_id", evaluationHandler.NextItem)
			evaluations.POST("", evaluationHandler.SubmitEvaluation)
			evaluations.GET("/progress/:experiment_id", evaluationHandler.GetProgress)
			evaluations.POST("/skip/:blind_id", evaluationHandler.SkipItem)
			evaluations.GET("/reveal/:blind_id", evaluationHandler.Reveal)
			evaluations.GET("/:experiment_id", evaluationHandler.ListEvaluations)
			evaluations.DELETE("/:evaluation_id", evaluationHandler.DeleteEvaluation)
		}

		// 分析相关
		analysis := api.Group("/analysis/:experiment_id")
		{
			analysis.GET("/summary", analysisHandler.Summary)
			analysis.GET("/by-model", analysisHandler.ByModel)
			analysis.GET("/by-strategy", analysisHandler.ByStrategy)
			analysis.GET("/by-task", analysisHandler.ByTask)
			analysis.GET("/heatmap", analysisHandler.Heatmap)
			analysis.GET("/conclusion", analysisHandler.Conclusion)
			analysis.GET("/report", analysisHandler.Report)
			analysis.GET("/export", analysisHandler.Export)
		}
	}

	return r
}
