package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/steveyegge/tandem/internal/hashing"
	"github.com/steveyegge/tandem/internal/lql"
	"github.com/steveyegge/tandem/internal/types"
)

// Engine applies a validated config to change entries. Build one with
// NewEngine; it precompiles every expression so per-entry work is pure
// rewriting.
type Engine struct {
	cfg *Config

	// bySource indexes mappings by lowercased source table for the push
	// direction; byTarget indexes (mapping, target) pairs by target
	// table for the pull direction.
	bySource map[string]*compiledMapping
	byTarget map[string]*compiledTarget
}

type compiledMapping struct {
	src      *TableMapping
	filter   *lql.Expr
	excluded map[string]bool
	targets  []*compiledTarget
}

type compiledTarget struct {
	mapping *compiledMapping
	table   string
	// columns are the compiled column mappings; reverse maps target
	// column names back to source ones for pull rewrites.
	columns []compiledColumn
	reverse map[string]string
}

type compiledColumn struct {
	src  *ColumnMapping
	expr *lql.Expr
}

// NewEngine compiles a config. The config must already be validated;
// NewEngine revalidates to be safe against hand-built configs.
func NewEngine(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		bySource: map[string]*compiledMapping{},
		byTarget: map[string]*compiledTarget{},
	}
	for i := range cfg.Mappings {
		m := &cfg.Mappings[i]
		cm := &compiledMapping{src: m, excluded: map[string]bool{}}
		for _, col := range m.ExcludedColumns {
			cm.excluded[strings.ToLower(col)] = true
		}
		if m.Filter != nil {
			expr, err := lql.Parse(m.Filter.LQL)
			if err != nil {
				return nil, err
			}
			cm.filter = expr
		}
		for _, tgt := range m.targets() {
			ct, err := compileTarget(cm, tgt)
			if err != nil {
				return nil, err
			}
			cm.targets = append(cm.targets, ct)
			e.byTarget[strings.ToLower(tgt.Table)] = ct
		}
		e.bySource[strings.ToLower(m.SourceTable)] = cm
	}
	return e, nil
}

func compileTarget(cm *compiledMapping, tgt Target) (*compiledTarget, error) {
	ct := &compiledTarget{
		mapping: cm,
		table:   tgt.Table,
		reverse: map[string]string{},
	}
	for i := range tgt.ColumnMappings {
		col := tgt.ColumnMappings[i]
		cc := compiledColumn{src: &col}
		if col.Transform == TransformLql {
			expr, err := lql.Parse(col.LQL)
			if err != nil {
				return nil, err
			}
			cc.expr = expr
		}
		if col.Transform == TransformNone {
			ct.reverse[strings.ToLower(col.Target)] = col.Source
		}
		ct.columns = append(ct.columns, cc)
	}
	return ct, nil
}

// MapPush rewrites outgoing entries from source names to target names.
// Entries for unmapped (or disabled) tables pass through or fail per
// the config's unmapped_table_behavior. One entry can fan out to
// several targets.
func (e *Engine) MapPush(entries []types.LogEntry) ([]types.LogEntry, error) {
	var out []types.LogEntry
	for i := range entries {
		src := &entries[i]
		cm, ok := e.bySource[strings.ToLower(src.Table)]
		if !ok || !cm.src.IsEnabled() {
			if e.cfg.UnmappedBehavior == Strict {
				return nil, types.InvalidArgumentf("no mapping for table %q", src.Table)
			}
			out = append(out, *src)
			continue
		}
		if !cm.src.Direction.includesPush() {
			continue
		}

		var row map[string]interface{}
		if src.Op != types.OpDelete && len(src.Payload) > 0 {
			var err error
			row, err = decodeObject(src.Payload)
			if err != nil {
				return nil, types.InvalidArgumentf("entry v%d: bad payload: %v", src.Version, err)
			}
			if cm.filter != nil && !truthy(cm.filter.Eval(lqlRow(row))) {
				continue
			}
		}
		for _, ct := range cm.targets {
			mapped, err := ct.rewritePush(src, row)
			if err != nil {
				return nil, err
			}
			out = append(out, *mapped)
		}
	}
	return out, nil
}

// MapPull rewrites incoming entries from target names back to source
// ones. Constant, expression, and tracking columns cannot be inverted
// and are dropped from the payload.
func (e *Engine) MapPull(entries []types.LogEntry) ([]types.LogEntry, error) {
	var out []types.LogEntry
	for i := range entries {
		src := &entries[i]
		ct, ok := e.byTarget[strings.ToLower(src.Table)]
		if !ok || !ct.mapping.src.IsEnabled() {
			if e.cfg.UnmappedBehavior == Strict {
				return nil, types.InvalidArgumentf("no mapping for table %q", src.Table)
			}
			out = append(out, *src)
			continue
		}
		if !ct.mapping.src.Direction.includesPull() {
			continue
		}
		mapped, err := ct.rewritePull(src)
		if err != nil {
			return nil, err
		}
		out = append(out, *mapped)
	}
	return out, nil
}

// rewritePush maps one entry into this target's shape. row is the
// decoded payload, nil for deletes.
func (ct *compiledTarget) rewritePush(src *types.LogEntry, row map[string]interface{}) (*types.LogEntry, error) {
	m := ct.mapping
	e := *src
	e.Table = ct.table

	pk, err := decodeObject(src.PK)
	if err != nil {
		return nil, types.InvalidArgumentf("entry v%d: bad pk: %v", src.Version, err)
	}

	if row != nil {
		payload := ct.mapRow(row)
		// Primary key renames apply inside the payload too.
		if p := m.src.PKMapping; p != nil {
			if v, ok := lookupValue(row, p.SourceColumn); ok {
				payload[p.TargetColumn] = v
			}
		}
		// Excluded columns go last so an explicit mapping cannot
		// resurrect one.
		for k := range payload {
			if m.excluded[strings.ToLower(k)] {
				delete(payload, k)
			}
		}
		if st := m.src.SyncTracking; st != nil && st.Enabled {
			stamp, err := trackingStamp(st, src.Version, payload)
			if err != nil {
				return nil, err
			}
			payload[st.TrackingColumn] = stamp
		}
		e.Payload, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	mappedPK := map[string]interface{}{}
	for k, v := range pk {
		if p := m.src.PKMapping; p != nil && strings.EqualFold(k, p.SourceColumn) {
			mappedPK[p.TargetColumn] = v
		} else {
			mappedPK[k] = v
		}
	}
	e.PK, err = json.Marshal(mappedPK)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// trackingStamp computes the sync-tracking column value: the source log
// version, or a hash of the payload as it will be sent.
func trackingStamp(st *SyncTracking, version int64, payload map[string]interface{}) (interface{}, error) {
	if st.Strategy == TrackHash {
		canon, err := hashing.CanonicalizeMap(payload)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(canon))
		return hex.EncodeToString(sum[:]), nil
	}
	return version, nil
}

// mapRow builds the target payload: explicit column mappings first,
// then passthrough of unmapped columns.
func (ct *compiledTarget) mapRow(row map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	consumed := map[string]bool{}
	for _, cc := range ct.columns {
		col := cc.src
		switch col.Transform {
		case TransformNone:
			if v, ok := lookupValue(row, col.Source); ok {
				out[col.Target] = v
			}
			consumed[strings.ToLower(col.Source)] = true
		case TransformConstant:
			out[col.Target] = col.Value
			if col.Source != "" {
				consumed[strings.ToLower(col.Source)] = true
			}
		case TransformLql:
			s, null := cc.expr.EvalNull(lqlRow(row))
			if null {
				out[col.Target] = nil
			} else {
				out[col.Target] = s
			}
			if col.Source != "" {
				consumed[strings.ToLower(col.Source)] = true
			}
		}
	}
	pkSource := ""
	if p := ct.mapping.src.PKMapping; p != nil {
		pkSource = strings.ToLower(p.SourceColumn)
	}
	for k, v := range row {
		lk := strings.ToLower(k)
		if consumed[lk] || lk == pkSource {
			continue
		}
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return out
}

// rewritePull inverts the rename parts of the mapping. Deletes carry
// only the pk, which reverses cleanly.
func (ct *compiledTarget) rewritePull(src *types.LogEntry) (*types.LogEntry, error) {
	m := ct.mapping
	e := *src
	e.Table = m.src.SourceTable

	pk, err := decodeObject(src.PK)
	if err != nil {
		return nil, types.InvalidArgumentf("entry v%d: bad pk: %v", src.Version, err)
	}
	mappedPK := map[string]interface{}{}
	for k, v := range pk {
		if p := m.src.PKMapping; p != nil && strings.EqualFold(k, p.TargetColumn) {
			mappedPK[p.SourceColumn] = v
		} else {
			mappedPK[k] = v
		}
	}
	e.PK, err = json.Marshal(mappedPK)
	if err != nil {
		return nil, err
	}

	if src.Op != types.OpDelete && len(src.Payload) > 0 {
		row, err := decodeObject(src.Payload)
		if err != nil {
			return nil, types.InvalidArgumentf("entry v%d: bad payload: %v", src.Version, err)
		}
		out := map[string]interface{}{}
		for k, v := range row {
			lk := strings.ToLower(k)
			if source, ok := ct.reverse[lk]; ok {
				out[source] = v
				continue
			}
			if p := m.src.PKMapping; p != nil && lk == strings.ToLower(p.TargetColumn) {
				out[p.SourceColumn] = v
				continue
			}
			if st := m.src.SyncTracking; st != nil && st.Enabled && lk == strings.ToLower(st.TrackingColumn) {
				continue
			}
			if ct.constantOrExpr(lk) {
				continue
			}
			out[k] = v
		}
		e.Payload, err = json.Marshal(out)
		if err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// constantOrExpr reports whether a target column is produced by a
// transform that has no source counterpart.
func (ct *compiledTarget) constantOrExpr(targetLower string) bool {
	for _, cc := range ct.columns {
		if cc.src.Transform == TransformNone {
			continue
		}
		if strings.ToLower(cc.src.Target) == targetLower {
			return true
		}
	}
	return false
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func lqlRow(m map[string]interface{}) lql.Row { return lql.Row(m) }

func lookupValue(m map[string]interface{}, key string) (interface{}, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// truthy implements filter semantics: empty, "0", and "false" drop the
// row.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false":
		return false
	}
	return true
}
