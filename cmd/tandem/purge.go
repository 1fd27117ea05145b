package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/repl"
	"github.com/steveyegge/tandem/internal/ui"
)

var purgeCmd = &cobra.Command{
	Use:     "purge",
	GroupID: "sync",
	Short:   "Delete log entries every registered peer has consumed",
	Long: `Delete change log entries at or below the lowest peer watermark. With
no registered peers nothing is purged, since there is no safe point.
Purging never outruns a live peer; stale peers hold back purging until
removed with 'tandem clients remove'.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		n, err := repl.PurgeSafe(ctx, env.local)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]int64{"purged": n})
			return
		}
		if n == 0 {
			fmt.Println("Nothing to purge.")
			return
		}
		fmt.Printf("%s Purged %d log entr%s\n", ui.RenderPassIcon(), n, plural(n, "y", "ies"))
	},
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
