package sqlite

import (
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/types"
)

// SyncTriggersSQL renders the three change-capture triggers for one
// table. Each trigger checks the session suppression flag, then appends a
// log row with a JSON primary key, a JSON payload (null on delete), the
// local origin from _sync_state, and a millisecond RFC3339 timestamp.
func (d *Dialect) SyncTriggersSQL(t *schema.Table) ([]string, error) {
	if len(t.PrimaryKey) == 0 {
		return nil, types.InvalidArgumentf("table %q needs a primary key for replication", t.Name)
	}
	return []string{
		d.triggerSQL(t, "insert", "AFTER INSERT", "NEW", true),
		d.triggerSQL(t, "update", "AFTER UPDATE", "NEW", true),
		d.triggerSQL(t, "delete", "AFTER DELETE", "OLD", false),
	}, nil
}

func (d *Dialect) triggerSQL(t *schema.Table, op, event, rowRef string, withPayload bool) string {
	payload := "NULL"
	if withPayload {
		payload = d.jsonObject(columnNames(t), rowRef)
	}
	return fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s
%s ON %s
WHEN (SELECT sync_active FROM %s LIMIT 1) = 0
BEGIN
    INSERT INTO %s (table_name, pk_value, operation, payload, origin, timestamp)
    VALUES (
        '%s',
        %s,
        '%s',
        %s,
        (SELECT value FROM %s WHERE key = 'origin_id'),
        strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now')
    );
END`,
		d.QuoteIdent(dialect.TriggerName(t.Name, op)),
		event, d.QuoteIdent(t.Name),
		dialect.SessionTable,
		dialect.LogTable,
		t.Name,
		d.jsonObject(t.PrimaryKey, rowRef),
		op,
		payload,
		dialect.StateTable)
}

// jsonObject renders json_object('col', REF."col", ...).
func (d *Dialect) jsonObject(columns []string, rowRef string) string {
	pairs := make([]string, 0, len(columns)*2)
	for _, col := range columns {
		pairs = append(pairs, "'"+col+"'", rowRef+"."+d.QuoteIdent(col))
	}
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

func columnNames(t *schema.Table) []string {
	names := make([]string, len(t.Columns))
	for i := range t.Columns {
		names[i] = t.Columns[i].Name
	}
	return names
}

func (d *Dialect) DropSyncTriggersSQL(table string) []string {
	return []string{
		"DROP TRIGGER IF EXISTS " + d.QuoteIdent(dialect.TriggerName(table, "insert")),
		"DROP TRIGGER IF EXISTS " + d.QuoteIdent(dialect.TriggerName(table, "update")),
		"DROP TRIGGER IF EXISTS " + d.QuoteIdent(dialect.TriggerName(table, "delete")),
	}
}
