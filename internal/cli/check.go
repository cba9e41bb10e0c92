package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"content-eval/internal/model"
)

var checkLLMCmd = &cobra.Command{
	Use:   "check-llm",
	Short: "检查各 LLM 供应商是否可用",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		client, err := a.llmClient(cmd.Context())
		if err != nil {
			return err
		}

		results := client.Check(cmd.Context())
		names := make([]string, 0, len(results))
		for p := range results {
			names = append(names, string(p))
		}
		sort.Strings(names)

		ok := color.New(color.FgGreen).SprintFunc()
		fail := color.New(color.FgRed).SprintFunc()
		out := cmd.OutOrStdout()
		connected := 0
		for _, name := range names {
			if results[model.Provider(name)] {
				connected++
				fmt.Fprintf(out, "  %-10s %s\n", name, ok("已连接"))
				continue
			}
			fmt.Fprintf(out, "  %-10s %s\n", name, fail("不可用"))
		}
		fmt.Fprintf(out, "%d/%d providers connected\n", connected, len(results))
		return nil
	},
}
