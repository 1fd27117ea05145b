package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/config"
	"github.com/steveyegge/tandem/internal/lockfile"
	"github.com/steveyegge/tandem/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "setup",
	Short:   "Show replication state for this project",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		origin, err := env.local.OriginID(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		pullWM, err := env.local.LastServerVersion(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		pushWM, err := env.local.LastPushVersion(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		maxV, err := env.local.MaxVersion(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		oldest, err := env.local.OldestVersion(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		pending, err := env.local.CountSince(ctx, pushWM)
		if err != nil {
			FatalError("%v", err)
		}
		clients, err := env.local.Clients(ctx)
		if err != nil {
			FatalError("%v", err)
		}

		held, pid := lockfile.Holder(env.projectDir)
		remote := config.GetString("remote.dsn")

		if jsonOutput {
			out := map[string]interface{}{
				"origin":         origin,
				"database":       env.meta.DatabasePath(env.projectDir),
				"engine":         env.meta.Engine,
				"remote":         remote,
				"pull_watermark": pullWM,
				"push_watermark": pushWM,
				"max_version":    maxV,
				"oldest_version": oldest,
				"pending_pushes": pending,
				"tables":         env.local.Tables(),
				"clients":        len(clients),
				"sync_running":   held,
			}
			if held && pid > 0 {
				out["sync_pid"] = pid
			}
			outputJSON(out)
			return
		}

		fmt.Println(ui.RenderCategory("replication"))
		fmt.Printf("  Origin:   %s\n", ui.RenderAccent(origin))
		fmt.Printf("  Database: %s (%s)\n", env.meta.DatabasePath(env.projectDir), env.meta.Engine)
		if remote != "" {
			fmt.Printf("  Remote:   %s\n", remote)
		} else {
			fmt.Printf("  Remote:   %s\n", ui.RenderMuted("not configured"))
		}
		if tables := env.local.Tables(); len(tables) > 0 {
			fmt.Printf("  Tracking: %s\n", strings.Join(tables, ", "))
		} else {
			fmt.Printf("  Tracking: %s\n", ui.RenderMuted("no tables"))
		}

		fmt.Println(ui.RenderCategory("watermarks"))
		fmt.Printf("  Pull: %d  Push: %d  Log: %d..%d\n", pullWM, pushWM, oldest, maxV)
		if pending > 0 {
			fmt.Printf("  %s %d change(s) waiting to push\n", ui.RenderWarnIcon(), pending)
		} else {
			fmt.Printf("  %s Nothing to push\n", ui.RenderPassIcon())
		}

		fmt.Println(ui.RenderCategory("peers"))
		if len(clients) == 0 {
			fmt.Printf("  %s\n", ui.RenderMuted("none registered"))
		}
		for _, c := range clients {
			fmt.Printf("  %s at version %d\n", c.OriginID, c.LastSyncVersion)
		}

		if held {
			if pid > 0 {
				fmt.Printf("\n%s Sync in progress (pid %d)\n", ui.RenderWarnIcon(), pid)
			} else {
				fmt.Printf("\n%s Sync in progress\n", ui.RenderWarnIcon())
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
