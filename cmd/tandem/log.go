package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/types"
	"github.com/steveyegge/tandem/internal/ui"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "setup",
	Short:   "Show entries from the local change log",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		since, _ := cmd.Flags().GetInt64("since")
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		entries, hasMore, err := env.local.FetchSince(ctx, since, limit)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"entries":  entries,
				"has_more": hasMore,
			})
			return
		}
		if len(entries) == 0 {
			fmt.Println("No log entries.")
			return
		}
		for _, e := range entries {
			op := string(e.Op)
			switch e.Op {
			case types.OpDelete:
				op = ui.RenderFail(op)
			case types.OpInsert:
				op = ui.RenderPass(op)
			default:
				op = ui.RenderWarn(op)
			}
			fmt.Printf("  v%-8d %-7s %s %s %s\n",
				e.Version, op, e.Table, string(e.PK), ui.RenderMuted(e.Timestamp))
		}
		if hasMore {
			last := entries[len(entries)-1].Version
			fmt.Printf("  %s\n", ui.RenderMuted(fmt.Sprintf("more entries; continue with --since %d", last)))
		}
	},
}

func init() {
	logCmd.Flags().Int64("since", 0, "Show entries with version greater than this")
	logCmd.Flags().Int("limit", 50, "Maximum entries to show")
	rootCmd.AddCommand(logCmd)
}
