package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"content-eval/internal/service"
)

var reportCmd = &cobra.Command{
	Use:   "report <experiment-id>",
	Short: "输出实验的 Markdown 报告或 CSV 结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("无效的实验 ID: %s", args[0])
		}
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		analysis := service.NewAnalysisService(a.db)
		out := cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("csv"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("创建文件失败: %w", err)
			}
			defer f.Close()
			if err := analysis.ExportCSV(cmd.Context(), uint(id), f); err != nil {
				return err
			}
			fmt.Fprintf(out, "已导出到 %s\n", path)
			return nil
		}

		md, err := analysis.Report(cmd.Context(), uint(id))
		if err != nil {
			return err
		}
		fmt.Fprint(out, md)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("csv", "", "导出 CSV 到指定文件，而不是输出报告")
}
