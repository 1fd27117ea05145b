package migrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/dialect/sqlite"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/types"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func desiredSchema(t *testing.T) *schema.Definition {
	t.Helper()
	users := schema.NewTable("users").
		Column("id", schema.Integer(64), schema.NotNull()).
		Column("email", schema.VarChar(255), schema.NotNull()).
		Column("created_at", schema.DateTime(), schema.DefaultExpr("now()")).
		PrimaryKey("id").
		UniqueIndex("ux_users_email", "email").
		Build()
	posts := schema.NewTable("posts").
		Column("id", schema.Integer(64), schema.NotNull()).
		Column("user_id", schema.Integer(64), schema.NotNull()).
		Column("title", schema.VarChar(200)).
		PrimaryKey("id").
		Index("idx_posts_user", "user_id").
		Build()
	d, err := schema.New().Table(users).Table(posts).Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return d
}

func TestMigrateFromEmpty(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	res, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("failed operations: %v", res.Failed)
	}
	if res.Applied != 2 {
		t.Errorf("applied = %d, want 2 creates", res.Applied)
	}

	// Both tables usable.
	if _, err := db.Exec("INSERT INTO users (id, email) VALUES (1, 'a@b.c')"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
	if _, err := db.Exec("INSERT INTO users (id, email) VALUES (2, 'a@b.c')"); err == nil {
		t.Error("unique index on email not enforced")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	if _, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	res, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil)
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if res.Applied != 0 || len(res.Failed) != 0 {
		t.Errorf("second run did work: %+v", res)
	}
}

func TestMigrateAddsColumn(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	if _, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	desired := desiredSchema(t)
	desired.Tables[0].Columns = append(desired.Tables[0].Columns,
		schema.Column{Name: "nickname", Type: schema.VarChar(50), Nullable: true})

	var seen []schema.Operation
	res, err := Migrate(ctx, db, d, desired, Options{}, func(op schema.Operation, err error) {
		seen = append(seen, op)
	})
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.Applied != 1 || len(seen) != 1 {
		t.Fatalf("res=%+v seen=%v", res, seen)
	}
	if seen[0].Kind != schema.OpAddColumn {
		t.Errorf("op kind = %v", seen[0].Kind)
	}
	if _, err := db.Exec("UPDATE users SET nickname = 'x'"); err != nil {
		t.Errorf("new column unusable: %v", err)
	}
}

func TestMigrateRefusesDestructiveByDefault(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	if _, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	// Desired drops the posts table; without AllowDestructive the plan
	// is additive-only and nothing happens.
	desired := desiredSchema(t)
	desired.Tables = desired.Tables[:1]
	res, err := Migrate(ctx, db, d, desired, Options{}, nil)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.Applied != 0 {
		t.Errorf("non-destructive run applied %d ops", res.Applied)
	}
	if _, err := db.Exec("SELECT COUNT(*) FROM posts"); err != nil {
		t.Error("posts table disappeared without AllowDestructive")
	}
}

func TestMigrateDestructiveDropsTable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	if _, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	desired := desiredSchema(t)
	desired.Tables = desired.Tables[:1]
	res, err := Migrate(ctx, db, d, desired, Options{AllowDestructive: true}, nil)
	if err != nil {
		t.Fatalf("destructive Migrate failed: %v", err)
	}
	if res.Applied == 0 {
		t.Fatal("destructive run applied nothing")
	}
	if _, err := db.Exec("SELECT COUNT(*) FROM posts"); err == nil {
		t.Error("posts table survived a destructive migration")
	}
}

func TestApplyFailsFastOnUnsanctionedDrop(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewRunner(db, sqlite.New())

	ops := []schema.Operation{
		{Kind: schema.OpDropTable, TableName: "anything"},
	}
	_, err := r.Apply(ctx, ops, Options{}, nil)
	var destructive *types.DestructiveError
	if !errors.As(err, &destructive) {
		t.Fatalf("expected DestructiveError, got %v", err)
	}
}

func TestApplyContinuesPastFailedOperation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewRunner(db, sqlite.New())

	good := schema.NewTable("ok_table").
		Column("id", schema.Integer(64), schema.NotNull()).
		PrimaryKey("id").
		Build()
	ops := []schema.Operation{
		// Index on a missing table fails; the later create must still run.
		{Kind: schema.OpCreateIndex, TableName: "missing",
			Index: &schema.Index{Name: "idx_missing", Columns: []string{"x"}}},
		{Kind: schema.OpCreateTable, TableName: "ok_table", Table: &good},
	}
	res, err := r.Apply(ctx, ops, Options{}, nil)
	if err != nil {
		t.Fatalf("Apply failed outright: %v", err)
	}
	if len(res.Failed) != 1 || res.Applied != 1 {
		t.Fatalf("res = %+v, want 1 failed + 1 applied", res)
	}
	if _, err := db.Exec("SELECT COUNT(*) FROM ok_table"); err != nil {
		t.Errorf("later operation did not run: %v", err)
	}
}

func TestInspectSkipsReplicationMetadata(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	if _, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	for _, stmt := range d.MetadataTablesSQL() {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create metadata tables: %v", err)
		}
	}

	current, err := d.Inspect(ctx, db)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	for _, tbl := range current.Tables {
		if dialect.IsMetaTable(tbl.Name) {
			t.Errorf("metadata table %q surfaced by Inspect", tbl.Name)
		}
	}

	// A destructive diff against the user schema must not plan dropping
	// the engine's own state.
	ops, err := schema.Diff(current, desiredSchema(t), true)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	for _, op := range ops {
		if op.Kind == schema.OpDropTable {
			t.Errorf("destructive plan drops %q", op.TableName)
		}
	}
}

func TestInspectRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d := sqlite.New()

	if _, err := Migrate(ctx, db, d, desiredSchema(t), Options{}, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	current, err := d.Inspect(ctx, db)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	ops, err := schema.Diff(current, desiredSchema(t), true)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("inspect round trip is not a fixed point: %v", ops)
	}
}
