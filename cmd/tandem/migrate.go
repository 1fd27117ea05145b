package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/migrate"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "schema",
	Short:   "Apply the declarative schema to the local database",
	Long: `Diff .tandem/schema.json against the live database schema and apply
the missing operations. Destructive operations (drops) are planned only
with --destructive, and prompt for confirmation unless --yes is given.

Use --dry-run to print the plan without touching the database.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		destructive, _ := cmd.Flags().GetBool("destructive")

		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		schemaPath := env.localSchemaPath()
		desired, err := schema.LoadFile(schemaPath)
		if err != nil {
			FatalErrorWithHint(fmt.Sprintf("cannot load %s: %v", schemaPath, err),
				"Create .tandem/schema.json describing your tables, then re-run 'tandem migrate'")
		}

		db, d := env.local.DB(), env.local.Dialect()
		current, err := d.Inspect(ctx, db)
		if err != nil {
			FatalError("failed to inspect database: %v", err)
		}
		ops, err := schema.Diff(current, desired, destructive)
		if err != nil {
			FatalError("%v", err)
		}

		if len(ops) == 0 {
			if jsonOutput {
				outputJSON(map[string]interface{}{"operations": []string{}, "applied": 0})
			} else {
				fmt.Println("Schema is up to date.")
			}
			return
		}

		hasDrops := false
		for _, op := range ops {
			if op.Kind.Destructive() {
				hasDrops = true
			}
		}

		if !jsonOutput || dryRun {
			fmt.Printf("Planned operations (%d):\n", len(ops))
			for _, op := range ops {
				icon := ui.RenderPassIcon()
				if op.Kind.Destructive() {
					icon = ui.RenderWarnIcon()
				}
				fmt.Printf("  %s %s\n", icon, op.String())
			}
		}
		if dryRun {
			return
		}

		if hasDrops && !yesFlag {
			if !confirmDestructive(len(ops)) {
				fmt.Fprintln(os.Stderr, "Migration cancelled.")
				os.Exit(1)
			}
		}

		var failed int
		progress := func(op schema.Operation, err error) {
			if err != nil {
				failed++
				fmt.Printf("  %s %s: %v\n", ui.RenderFailIcon(), op.String(), err)
			} else if verboseFlag {
				fmt.Printf("  %s %s\n", ui.RenderPassIcon(), op.String())
			}
		}
		res, err := migrate.NewRunner(db, d).Apply(ctx, ops,
			migrate.Options{AllowDestructive: destructive}, progress)
		if err != nil {
			FatalError("%v", err)
		}

		// Table set may have changed; refresh triggers and registrations.
		if err := env.local.Install(ctx, desired.Tables); err != nil {
			FatalError("failed to refresh replication triggers: %v", err)
		}

		if jsonOutput {
			plan := make([]string, len(ops))
			for i, op := range ops {
				plan[i] = op.String()
			}
			outputJSON(map[string]interface{}{
				"operations": plan,
				"applied":    res.Applied,
				"failed":     len(res.Failed),
			})
			return
		}
		if len(res.Failed) > 0 {
			FatalError("applied %d operation(s), %d failed", res.Applied, len(res.Failed))
		}
		fmt.Printf("%s Applied %d operation(s)\n", ui.RenderPassIcon(), res.Applied)
	},
}

func confirmDestructive(n int) bool {
	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Apply %d operation(s) including drops? Data may be lost.", n)).
			Affirmative("Apply").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Print the plan without applying it")
	migrateCmd.Flags().Bool("destructive", false, "Allow drop operations in the plan")
	rootCmd.AddCommand(migrateCmd)
}
