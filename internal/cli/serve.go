package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"content-eval/internal/router"
	"content-eval/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP API 服务",
	Long: `启动 HTTP API 服务。收到 SIGINT/SIGTERM 时停止接收请求，
取消进行中的后台生成（已生成的记录保留，之后可以续跑）后退出。

Examples:
  content-eval serve
  content-eval serve --port 9000 --config config/config.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8000, "监听端口，覆盖配置文件")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := a.llmClient(ctx)
	if err != nil {
		return err
	}
	rec, shutdownMetrics, err := a.recorder(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			a.logger.Warn("指标导出关闭失败", zap.Error(err))
		}
	}()

	svc := service.NewServiceContext(a.db, a.cfg, client, a.logger, rec)
	defer svc.Close()

	gin.SetMode(a.cfg.Server.Mode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router.SetupRouter(svc, a.logger.Named("http")),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("服务启动", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭服务失败: %w", err)
	}
	return nil
}
