package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/mapping"
	"github.com/steveyegge/tandem/internal/ui"
)

var mappingCmd = &cobra.Command{
	Use:     "mapping",
	GroupID: "schema",
	Short:   "Work with table mapping configs",
}

var mappingValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a mapping config and compile its expressions",
	Long: `Load a mapping config, validate its structure, and compile every
mapping expression. With no argument the configured mapping path is
used (--mapping flag, mapping.path config, or metadata.json).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx

		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			env, err := openEnv(ctx)
			if err != nil {
				FatalError("%v", err)
			}
			defer env.Close()
			path = env.mappingPath()
		}
		if path == "" {
			FatalErrorWithHint("no mapping config found",
				"Pass a file argument, or set mapping.path in config")
		}

		cfg, err := mapping.Load(path)
		if err != nil {
			FatalError("%v", err)
		}
		// Compiling catches expression errors validation alone cannot.
		if _, err := mapping.NewEngine(cfg); err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"path":     path,
				"valid":    true,
				"mappings": len(cfg.Mappings),
			})
			return
		}
		fmt.Printf("%s %s: %d mapping(s) valid\n", ui.RenderPassIcon(), path, len(cfg.Mappings))
		if verboseFlag {
			for _, m := range cfg.Mappings {
				targets := len(m.Targets)
				if targets == 0 {
					targets = 1
				}
				fmt.Printf("  %s -> %d target(s)\n", ui.RenderAccent(m.SourceTable), targets)
			}
		}
	},
}

func init() {
	mappingCmd.AddCommand(mappingValidateCmd)
	rootCmd.AddCommand(mappingCmd)
}
