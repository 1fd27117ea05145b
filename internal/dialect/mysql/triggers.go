package mysql

import (
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/types"
)

// mysqlTimestamp renders the millisecond RFC3339 wire timestamp. MySQL's
// %f is microseconds, so the millisecond field is built from MICROSECOND.
const mysqlTimestamp = `CONCAT(DATE_FORMAT(UTC_TIMESTAMP(3), '%Y-%m-%dT%H:%i:%s.'), LPAD(MICROSECOND(UTC_TIMESTAMP(3)) DIV 1000, 3, '0'), 'Z')`

// SyncTriggersSQL renders the three change-capture triggers. Each checks
// the session suppression flag before appending a log row.
//
// Statements contain no internal semicolon-terminated bodies beyond the
// single INSERT, so no DELIMITER juggling is needed when executed through
// a driver.
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
%s ON %s FOR EACH ROW
BEGIN
    IF (SELECT COALESCE(MAX(sync_active), 0) FROM %s) = 0 THEN
        INSERT INTO %s (table_name, pk_value, operation, payload, origin, timestamp)
        VALUES (
            '%s',
            %s,
            '%s',
            %s,
            (SELECT value FROM %s WHERE `+"`key`"+` = 'origin_id'),
            %s
        );
    END IF;
END`,
		d.QuoteIdent(dialect.TriggerName(t.Name, op)),
		event, d.QuoteIdent(t.Name),
		dialect.SessionTable,
		dialect.LogTable,
		t.Name,
		d.jsonObject(t.PrimaryKey, rowRef),
		op,
		payload,
		dialect.StateTable,
		mysqlTimestamp)
}

func (d *Dialect) jsonObject(columns []string, rowRef string) string {
	pairs := make([]string, 0, len(columns)*2)
	for _, col := range columns {
		pairs = append(pairs, "'"+col+"'", rowRef+"."+d.QuoteIdent(col))
	}
	return "JSON_OBJECT(" + strings.Join(pairs, ", ") + ")"
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
