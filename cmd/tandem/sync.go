package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/lockfile"
	"github.com/steveyegge/tandem/internal/types"
	"github.com/steveyegge/tandem/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Pull remote changes, then push local changes",
	Long: `Run a full sync pass against the configured remote peer:
1. Pull changes past the local watermark and apply them
2. Push local changes past the push watermark to the remote

A failed pull skips the push. Concurrent sync passes against the same
project are serialized through .tandem/sync.lock; use --wait to block
on a held lock instead of failing.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runSyncPass(cmd, "sync")
	},
}

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Pull and apply remote changes",
	Run: func(cmd *cobra.Command, _ []string) {
		runSyncPass(cmd, "pull")
	},
}

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Push local changes to the remote",
	Run: func(cmd *cobra.Command, _ []string) {
		runSyncPass(cmd, "push")
	},
}

// runSyncPass opens the stores, takes the sync lock, and runs the
// requested direction(s).
func runSyncPass(cmd *cobra.Command, direction string) {
	ctx := rootCtx
	wait, _ := cmd.Flags().GetBool("wait")

	env, err := openEnv(ctx)
	if err != nil {
		FatalError("%v", err)
	}
	defer env.Close()

	c, err := env.newCoordinator(ctx)
	if err != nil {
		FatalError("%v", err)
	}
	origin, err := env.local.OriginID(ctx)
	if err != nil {
		FatalError("%v", err)
	}

	lock, err := lockfile.Acquire(env.projectDir, lockfile.LockInfo{
		Origin:   origin,
		Database: env.meta.DatabasePath(env.projectDir),
	}, wait)
	if errors.Is(err, lockfile.ErrLockBusy) {
		_, pid := lockfile.Holder(env.projectDir)
		if pid > 0 {
			FatalErrorWithHint(fmt.Sprintf("another sync is running (pid %d)", pid),
				"Wait for it to finish, or re-run with --wait")
		}
		FatalErrorWithHint("another sync is running",
			"Wait for it to finish, or re-run with --wait")
	}
	if err != nil {
		FatalError("failed to acquire sync lock: %v", err)
	}
	defer func() { _ = lock.Release() }()

	switch direction {
	case "pull":
		res, err := c.Pull(ctx)
		reportPull(res, err)
	case "push":
		res, err := c.Push(ctx)
		reportPush(res, err)
	default:
		res, err := c.Sync(ctx)
		reportSync(res, err)
	}
}

func reportPull(res *types.PullResult, err error) {
	if jsonOutput {
		out := map[string]interface{}{"pull": res}
		if err != nil {
			out["error"] = err.Error()
		}
		outputJSON(out)
		if err != nil {
			exitSyncError(err)
		}
		return
	}
	if res != nil {
		fmt.Printf("%s Pulled %d change(s) (version %d -> %d)\n",
			ui.RenderPassIcon(), res.ChangesApplied, res.FromVersion, res.ToVersion)
	}
	if err != nil {
		exitSyncError(err)
	}
}

func reportPush(res *types.PushResult, err error) {
	if jsonOutput {
		out := map[string]interface{}{"push": res}
		if err != nil {
			out["error"] = err.Error()
		}
		outputJSON(out)
		if err != nil {
			exitSyncError(err)
		}
		return
	}
	if res != nil {
		fmt.Printf("%s Pushed %d change(s) (version %d -> %d)\n",
			ui.RenderPassIcon(), res.ChangesSent, res.FromVersion, res.ToVersion)
	}
	if err != nil {
		exitSyncError(err)
	}
}

func reportSync(res *types.SyncResult, err error) {
	if jsonOutput {
		out := map[string]interface{}{"sync": res}
		if err != nil {
			out["error"] = err.Error()
		}
		outputJSON(out)
		if err != nil {
			exitSyncError(err)
		}
		return
	}
	if res != nil {
		fmt.Printf("%s Pulled %d, pushed %d change(s)\n",
			ui.RenderPassIcon(), res.Pull.ChangesApplied, res.Push.ChangesSent)
	}
	if err != nil {
		exitSyncError(err)
	}
}

// exitSyncError gives resync-required errors an actionable hint; other
// errors report plainly.
func exitSyncError(err error) {
	var resync *types.FullResyncRequiredError
	if errors.As(err, &resync) {
		FatalErrorWithHint(err.Error(),
			"The remote purged history past this peer's watermark. Re-initialize from a fresh copy of the remote database.")
	}
	if errors.Is(err, context.Canceled) {
		FatalError("sync interrupted")
	}
	FatalError("%v", err)
}

func init() {
	for _, c := range []*cobra.Command{syncCmd, pullCmd, pushCmd} {
		c.Flags().Bool("wait", false, "Block until the sync lock is free instead of failing")
		rootCmd.AddCommand(c)
	}
}
