package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/config"
	"github.com/steveyegge/tandem/internal/telemetry"
)

var (
	dbFlag       string
	engineFlag   string
	remoteFlag   string
	remoteEngine string
	mappingFlag  string
	jsonOutput   bool
	verboseFlag  bool
	yesFlag      bool

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Local database path or DSN (default: from .tandem/metadata.json)")
	rootCmd.PersistentFlags().StringVar(&engineFlag, "engine", "", "Local database engine: sqlite, mysql, dolt (default: from config)")
	rootCmd.PersistentFlags().StringVar(&remoteFlag, "remote", "", "Remote peer DSN (default: config remote.dsn)")
	rootCmd.PersistentFlags().StringVar(&remoteEngine, "remote-engine", "", "Remote peer engine (default: config remote.engine)")
	rootCmd.PersistentFlags().StringVar(&mappingFlag, "mapping", "", "Table mapping config file (default: config mapping.path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Assume yes for confirmation prompts")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync & Data:"},
		&cobra.Group{ID: "schema", Title: "Schema:"},
		&cobra.Group{ID: "setup", Title: "Setup & Inspection:"},
	)
}

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "tandem - embedded bi-directional SQL replication",
	Long: `Replicate changes between SQL databases through a per-peer change
log, with declarative schema migration, conflict resolution, and table
mapping between differing schemas.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)

		applyFlagOverrides(cmd)

		if err := telemetry.Init(rootCtx, "tandem", Version); err != nil && verboseFlag {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(context.Background())
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// applyFlagOverrides copies explicitly-set persistent flags over the
// file/env configuration so flags always win.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("db") {
		config.Set("db", dbFlag)
	}
	if cmd.Flags().Changed("engine") {
		config.Set("engine", engineFlag)
	}
	if cmd.Flags().Changed("remote") {
		config.Set("remote.dsn", remoteFlag)
	}
	if cmd.Flags().Changed("remote-engine") {
		config.Set("remote.engine", remoteEngine)
	}
	if cmd.Flags().Changed("mapping") {
		config.Set("mapping.path", mappingFlag)
	}
	if cmd.Flags().Changed("json") {
		config.Set("json", jsonOutput)
	}
	jsonOutput = jsonOutput || config.GetBool("json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
