package cli

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"content-eval/internal/service"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <experiment-id>",
	Short: "在前台为实验跑完所有缺失的组合",
	Long: `在前台为实验跑完所有缺失的 模型 x 策略 x 任务 组合。
已有记录的组合会被跳过，中断后重跑即可续上。`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("无效的实验 ID: %s", args[0])
	}

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
	defer func() { _ = shutdownMetrics(cmd.Context()) }()

	svc := service.NewServiceContext(a.db, a.cfg, client, a.logger, rec)
	defer svc.Close()

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	out := cmd.OutOrStdout()
	err = svc.Orchestrator.RunSweep(ctx, uint(id), func(completed, total int) {
		fmt.Fprintf(out, "\r%s %d/%d", dim("生成中"), completed, total)
	})
	fmt.Fprintln(out)
	if err != nil {
		fmt.Fprintln(out, red("生成中断: "+err.Error()))
		return err
	}

	p, err := svc.Orchestrator.Progress(cmd.Context(), uint(id))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s 共 %d 个组合，已生成 %d，失败 %d (%.1f%%)\n",
		green("完成"), p.Total, p.Completed, p.Failed, p.Percentage)
	if p.Failed > 0 {
		fmt.Fprintln(out, red(fmt.Sprintf("%d 个组合调用失败，已记录为空内容", p.Failed)))
	}
	return nil
}
