package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/config"
	"github.com/steveyegge/tandem/internal/timeparsing"
	"github.com/steveyegge/tandem/internal/tracker"
	"github.com/steveyegge/tandem/internal/types"
	"github.com/steveyegge/tandem/internal/ui"
)

var clientsCmd = &cobra.Command{
	Use:     "clients",
	GroupID: "sync",
	Short:   "Inspect and manage registered sync peers",
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered peers and their watermarks",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		clients, err := env.local.Clients(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		printClients(clients)
	},
}

var clientsStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List peers that have not synced within the stale window",
	Long: `List peers whose last sync is older than the stale window. The window
comes from --window, then clients.stale-window in config, defaulting to
30d. Accepts compact durations (30d, 12h, 2w) and natural language
("2 weeks ago").`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		windowFlag, _ := cmd.Flags().GetString("window")

		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		spec := windowFlag
		if spec == "" {
			spec = config.GetString("clients.stale-window")
		}
		if spec == "" {
			spec = "30d"
		}
		now := time.Now()
		start, err := timeparsing.ParseWindowStart(spec, now)
		if err != nil {
			FatalError("invalid window %q: %v", spec, err)
		}

		clients, err := env.local.Clients(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		stale := tracker.StaleClients(clients, now, now.Sub(start))
		printClients(stale)
	},
}

var clientsRemoveCmd = &cobra.Command{
	Use:   "remove <origin-id>",
	Short: "Forget a peer's registration and watermark",
	Long: `Forget a peer. Its watermark no longer holds back log purging; if the
peer syncs again later it may be forced into a full resync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		if err := env.local.DeleteClient(ctx, args[0]); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"removed": args[0]})
			return
		}
		fmt.Printf("%s Removed peer %s\n", ui.RenderPassIcon(), args[0])
	},
}

func printClients(clients []types.Client) {
	if jsonOutput {
		if clients == nil {
			clients = []types.Client{}
		}
		outputJSON(clients)
		return
	}
	if len(clients) == 0 {
		fmt.Println("No peers registered.")
		return
	}
	for _, c := range clients {
		last := "never"
		if !c.LastSyncTimestamp.IsZero() {
			last = c.LastSyncTimestamp.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  %s  version %-8d last sync %s\n",
			ui.RenderAccent(c.OriginID), c.LastSyncVersion, last)
	}
}

func init() {
	clientsStaleCmd.Flags().String("window", "", "Stale window (e.g. 30d, 12h, \"2 weeks ago\")")
	clientsCmd.AddCommand(clientsListCmd, clientsStaleCmd, clientsRemoveCmd)
	rootCmd.AddCommand(clientsCmd)
}
