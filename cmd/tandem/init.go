package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/config"
	"github.com/steveyegge/tandem/internal/configfile"
	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/migrate"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/synclog"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Initialize tandem in the current directory",
	Long: `Initialize tandem in the current directory by creating a .tandem/
directory with metadata.json, a starter config.yaml, and the local
database. If .tandem/schema.json exists (or --schema points at one),
its tables are created and replication triggers are installed.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := rootCtx
		schemaFlag, _ := cmd.Flags().GetString("schema")
		quiet, _ := cmd.Flags().GetBool("quiet")

		cwd, err := os.Getwd()
		if err != nil {
			FatalError("failed to get current directory: %v", err)
		}
		projectDir := filepath.Join(cwd, config.ProjectDirName)
		if err := os.MkdirAll(projectDir, 0o750); err != nil {
			FatalError("failed to create %s: %v", config.ProjectDirName, err)
		}

		meta, err := configfile.Load(projectDir)
		if err != nil {
			FatalError("%v", err)
		}
		if meta == nil {
			meta = configfile.DefaultConfig()
			// The global config was loaded before .tandem existed, so read
			// any pre-seeded config.yaml directly.
			local := config.LoadLocalConfigWithEnv(projectDir)
			if local.Engine != "" {
				meta.Engine = local.Engine
			}
			if local.DB != "" {
				meta.Database = local.DB
			}
			if engineFlag != "" {
				meta.Engine = engineFlag
			}
			if dbFlag != "" {
				meta.Database = dbFlag
			}
			if err := meta.Save(projectDir); err != nil {
				FatalError("failed to write %s: %v", configfile.ConfigFileName, err)
			}
		}

		if err := createConfigYaml(projectDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create config.yaml: %v\n", err)
		}

		// Copy a schema file into the project when one was supplied.
		schemaPath := filepath.Join(projectDir, schemaFileName)
		if schemaFlag != "" && schemaFlag != schemaPath {
			data, err := os.ReadFile(schemaFlag) // #nosec G304 -- user-supplied flag
			if err != nil {
				FatalError("failed to read schema: %v", err)
			}
			if _, err := schema.ParseDefinition(data); err != nil {
				FatalError("invalid schema %s: %v", schemaFlag, err)
			}
			if err := os.WriteFile(schemaPath, data, 0o600); err != nil {
				FatalError("failed to write schema: %v", err)
			}
		}

		db, d, err := config.Open(ctx, meta.Engine, meta.DatabasePath(projectDir))
		if err != nil {
			FatalError("failed to open database: %v", err)
		}
		defer func() { _ = db.Close() }()

		store := synclog.NewStore(db, d)
		var tables []schema.Table
		if _, err := os.Stat(schemaPath); err == nil {
			def, err := schema.LoadFile(schemaPath)
			if err != nil {
				FatalError("%v", err)
			}
			tables = def.Tables
			if err := createTables(ctx, db, d, def); err != nil {
				FatalError("failed to create tables: %v", err)
			}
		}
		if err := store.Install(ctx, tables); err != nil {
			FatalError("failed to install replication: %v", err)
		}
		origin, err := store.OriginID(ctx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"project_dir": projectDir,
				"database":    meta.DatabasePath(projectDir),
				"engine":      meta.Engine,
				"origin":      origin,
				"tables":      len(tables),
			})
			return
		}
		if !quiet {
			fmt.Printf("Initialized tandem project in %s\n", projectDir)
			fmt.Printf("  Database: %s (%s)\n", meta.DatabasePath(projectDir), meta.Engine)
			fmt.Printf("  Origin:   %s\n", origin)
			if len(tables) > 0 {
				fmt.Printf("  Tracking %d table(s)\n", len(tables))
			} else {
				fmt.Printf("  No schema.json found; add one and run 'tandem migrate'\n")
			}
		}
	},
}

const configYamlTemplate = `# tandem configuration
# Keys may also be set via TANDEM_* environment variables or flags.

# db: tandem.db
# engine: sqlite

# remote:
#   dsn: /path/to/peer.db
#   engine: sqlite

# sync:
#   batch-size: 500
#   with-hash: false

# conflict:
#   strategy: last-write-wins

# mapping:
#   path: mapping.json

# clients:
#   stale-window: 30d
`

func createTables(ctx context.Context, db *sql.DB, d dialect.Dialect, def *schema.Definition) error {
	res, err := migrate.Migrate(ctx, db, d, def, migrate.Options{}, nil)
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return res.Failed[0]
	}
	return nil
}

// createConfigYaml writes the commented starter config, leaving any
// existing file alone.
func createConfigYaml(projectDir string) error {
	path := filepath.Join(projectDir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(configYamlTemplate), 0o600)
}

func init() {
	initCmd.Flags().String("schema", "", "Schema definition file to install (copied into .tandem/)")
	initCmd.Flags().Bool("quiet", false, "Suppress output")
	rootCmd.AddCommand(initCmd)
}
