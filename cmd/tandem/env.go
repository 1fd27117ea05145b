package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/tandem/internal/config"
	"github.com/steveyegge/tandem/internal/configfile"
	"github.com/steveyegge/tandem/internal/conflict"
	"github.com/steveyegge/tandem/internal/mapping"
	"github.com/steveyegge/tandem/internal/repl"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/synclog"
	"github.com/steveyegge/tandem/internal/telemetry"
	"github.com/steveyegge/tandem/internal/types"
)

const (
	schemaFileName = "schema.json"

	// remoteSchemaFileName describes the remote's tables when they differ
	// from the local schema; absent, the local schema.json is reused.
	remoteSchemaFileName = "remote_schema.json"
)

// cmdEnv bundles the open handles a command needs: the project
// directory, its metadata, and the local (and optionally remote) store.
type cmdEnv struct {
	projectDir string
	meta       *configfile.Config

	local  *synclog.Store
	remote *synclog.Store

	closers []func() error
}

// openEnv locates the project and opens the local store. Callers must
// Close the returned env.
func openEnv(ctx context.Context) (*cmdEnv, error) {
	projectDir, err := config.FindProjectDir()
	if err != nil {
		return nil, fmt.Errorf("no %s project found (run 'tandem init' first)", config.ProjectDirName)
	}
	meta, err := configfile.Load(projectDir)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("no %s found in %s (run 'tandem init' first)",
			configfile.ConfigFileName, projectDir)
	}

	env := &cmdEnv{projectDir: projectDir, meta: meta}

	engine := config.GetString("engine")
	if engine == "" {
		engine = meta.Engine
	}
	dsn := config.GetString("db")
	if dsn == "" {
		dsn = meta.DatabasePath(projectDir)
	}

	env.local, err = env.openStore(ctx, engine, dsn, env.localSchemaPath())
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// openRemote opens the configured remote peer store, reusing the local
// schema when no remote schema file is present.
func (e *cmdEnv) openRemote(ctx context.Context) (*synclog.Store, error) {
	if e.remote != nil {
		return e.remote, nil
	}
	dsn := config.GetString("remote.dsn")
	if dsn == "" {
		return nil, types.InvalidArgumentf("no remote configured (set remote.dsn or pass --remote)")
	}
	engine := config.GetString("remote.engine")
	if engine == "" {
		engine = "sqlite"
	}

	schemaPath := filepath.Join(e.projectDir, remoteSchemaFileName)
	if _, err := os.Stat(schemaPath); err != nil {
		schemaPath = e.localSchemaPath()
	}

	remote, err := e.openStore(ctx, engine, dsn, schemaPath)
	if err != nil {
		return nil, err
	}
	e.remote = remote
	return remote, nil
}

func (e *cmdEnv) openStore(ctx context.Context, engine, dsn, schemaPath string) (*synclog.Store, error) {
	db, d, err := config.Open(ctx, engine, dsn)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, db.Close)

	store := synclog.NewStore(db, d)
	if _, err := os.Stat(schemaPath); err == nil {
		def, err := schema.LoadFile(schemaPath)
		if err != nil {
			return nil, err
		}
		store.SetTables(def.Tables)
	}
	return store, nil
}

func (e *cmdEnv) localSchemaPath() string {
	return filepath.Join(e.projectDir, schemaFileName)
}

// newCoordinator wires a coordinator from the env and configuration:
// conflict strategy, batch sizing, mapping hooks, and metrics.
func (e *cmdEnv) newCoordinator(ctx context.Context) (*repl.Coordinator, error) {
	remote, err := e.openRemote(ctx)
	if err != nil {
		return nil, err
	}

	strategy := conflict.Strategy(config.GetString("conflict.strategy"))
	if strategy == "" {
		strategy = conflict.LastWriteWins
	}
	resolver, err := conflict.New(strategy, nil)
	if err != nil {
		return nil, err
	}

	c := &repl.Coordinator{
		Local:    e.local,
		Remote:   remote,
		Resolver: resolver,
		Config: types.BatchConfig{
			Size:     config.GetInt("sync.batch-size"),
			WithHash: config.GetBool("sync.with-hash"),
		},
	}

	// Pending local edits are log rows past the push watermark.
	c.Pending = func(ctx context.Context, table, pk string) (*types.LogEntry, error) {
		from, err := e.local.LastPushVersion(ctx)
		if err != nil {
			return nil, err
		}
		return e.local.LatestChange(ctx, table, pk, from)
	}

	if path := e.mappingPath(); path != "" {
		cfg, err := mapping.Load(path)
		if err != nil {
			return nil, err
		}
		eng, err := mapping.NewEngine(cfg)
		if err != nil {
			return nil, err
		}
		c.PullMap = eng.MapPull
		c.PushMap = eng.MapPush
	}

	if m, err := telemetry.NewSyncMetrics(); err == nil {
		c.Metrics = m
	}
	return c, nil
}

func (e *cmdEnv) mappingPath() string {
	if path := config.GetString("mapping.path"); path != "" {
		return path
	}
	return e.meta.MappingPath(e.projectDir)
}

// Close releases every handle opened through the env, newest first.
func (e *cmdEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
	e.closers = nil
}
