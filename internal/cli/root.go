package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"content-eval/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "content-eval",
	Short: "LLM 内容生成对比实验与盲评服务",
	Long: `content-eval 按 模型 x 提示词策略 x 任务 批量生成内容，
由评审者盲评打分，再按模型、策略、任务汇总结果。`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigPath, "配置文件路径，不存在时只用默认值和环境变量")
	rootCmd.PersistentFlags().String("log-level", "info", "日志级别: debug/info/warn/error")
	rootCmd.PersistentFlags().Bool("log-json", false, "以 JSON 格式输出日志")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(checkLLMCmd)
	rootCmd.AddCommand(reportCmd)
}

// loadConfig 配置文件 < 环境变量 < 命令行 flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New()
	if err != nil {
		return nil, err
	}
	bindings := map[string]string{
		"log-level": "log.level",
		"log-json":  "log.json",
		"port":      "server.port",
	}
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("绑定参数 %s 失败: %w", flag, err)
		}
	}
	return config.Load(v, cfgFile)
}
