package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

// File format for schema definitions. The JSON mirrors the in-memory
// model with portable type names in the same notation String() prints:
//
//	{
//	  "tables": [{
//	    "name": "tasks",
//	    "columns": [{"name": "id", "type": "integer(64)"}],
//	    "primary_key": ["id"],
//	    "indexes": [{"name": "idx_x", "columns": ["x"], "unique": true}],
//	    "foreign_keys": [{"columns": ["project_id"],
//	                      "references_table": "projects",
//	                      "references_columns": ["id"],
//	                      "on_delete": "cascade"}]
//	  }]
//	}

type fileDefinition struct {
	Tables []fileTable `json:"tables"`
}

type fileTable struct {
	Name        string           `json:"name"`
	Columns     []fileColumn     `json:"columns"`
	PrimaryKey  []string         `json:"primary_key,omitempty"`
	Indexes     []fileIndex      `json:"indexes,omitempty"`
	ForeignKeys []fileForeignKey `json:"foreign_keys,omitempty"`
	Uniques     []fileUnique     `json:"uniques,omitempty"`
}

type fileColumn struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   *bool  `json:"nullable,omitempty"`
	Identity   bool   `json:"identity,omitempty"`
	Default    string `json:"default,omitempty"`
	DefaultSQL string `json:"default_sql,omitempty"`
}

type fileIndex struct {
	Name        string   `json:"name"`
	Unique      bool     `json:"unique,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Expressions []string `json:"expressions,omitempty"`
}

type fileForeignKey struct {
	Name              string   `json:"name,omitempty"`
	Columns           []string `json:"columns"`
	ReferencesTable   string   `json:"references_table"`
	ReferencesColumns []string `json:"references_columns"`
	OnDelete          string   `json:"on_delete,omitempty"`
	OnUpdate          string   `json:"on_update,omitempty"`
}

type fileUnique struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// LoadFile reads and validates a schema definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- schema path comes from config or flag
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	d, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDefinition parses a JSON schema definition. Unknown keys are
// rejected so typos surface instead of silently dropping constraints.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var fd fileDefinition
	if err := dec.Decode(&fd); err != nil {
		return nil, types.InvalidArgumentf("parsing schema: %v", err)
	}

	def := &Definition{}
	for _, ft := range fd.Tables {
		t, err := ft.toTable()
		if err != nil {
			return nil, err
		}
		def.Tables = append(def.Tables, t)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (ft fileTable) toTable() (Table, error) {
	t := Table{Name: ft.Name, PrimaryKey: ft.PrimaryKey}
	for _, fc := range ft.Columns {
		typ, err := ParseType(fc.Type)
		if err != nil {
			return Table{}, types.InvalidArgumentf("table %q column %q: %v", ft.Name, fc.Name, err)
		}
		nullable := true
		if fc.Nullable != nil {
			nullable = *fc.Nullable
		}
		for _, pk := range ft.PrimaryKey {
			if identEqual(pk, fc.Name) {
				nullable = false
			}
		}
		t.Columns = append(t.Columns, Column{
			Name:              fc.Name,
			Type:              typ,
			Nullable:          nullable,
			Identity:          fc.Identity,
			DefaultLiteralSQL: fc.DefaultSQL,
			DefaultExprDSL:    fc.Default,
		})
	}
	for _, fi := range ft.Indexes {
		t.Indexes = append(t.Indexes, Index{
			Name:        fi.Name,
			Unique:      fi.Unique,
			Columns:     fi.Columns,
			Expressions: fi.Expressions,
		})
	}
	for _, ff := range ft.ForeignKeys {
		onDelete, err := parseRefAction(ff.OnDelete)
		if err != nil {
			return Table{}, types.InvalidArgumentf("table %q foreign key: %v", ft.Name, err)
		}
		onUpdate, err := parseRefAction(ff.OnUpdate)
		if err != nil {
			return Table{}, types.InvalidArgumentf("table %q foreign key: %v", ft.Name, err)
		}
		name := ff.Name
		if name == "" {
			name = "fk_" + strings.ToLower(ft.Name) + "_" + strings.ToLower(strings.Join(ff.Columns, "_"))
		}
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
			Name:              name,
			LocalColumns:      ff.Columns,
			ReferencedTable:   ff.ReferencesTable,
			ReferencedColumns: ff.ReferencesColumns,
			OnDelete:          onDelete,
			OnUpdate:          onUpdate,
		})
	}
	for _, fu := range ft.Uniques {
		t.Uniques = append(t.Uniques, Unique{Name: fu.Name, Columns: fu.Columns})
	}
	return t, nil
}

func parseRefAction(s string) (RefAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return NoAction, nil
	case "no action":
		return NoAction, nil
	case "cascade":
		return Cascade, nil
	case "set null":
		return SetNull, nil
	case "set default":
		return SetDefault, nil
	case "restrict":
		return Restrict, nil
	}
	return NoAction, fmt.Errorf("unknown referential action %q", s)
}

// typeNameRe matches "name", "name(w)", and "name(p,s)".
var typeNameRe = regexp.MustCompile(`^([a-z]+)(?:\((\d+)(?:,(\d+))?\))?$`)

// ParseType parses the portable type notation used in schema files,
// the inverse of PortableType.String.
func ParseType(s string) (PortableType, error) {
	m := typeNameRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return PortableType{}, fmt.Errorf("malformed type %q", s)
	}
	name := m[1]
	var arg1, arg2 int
	if m[2] != "" {
		arg1, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		arg2, _ = strconv.Atoi(m[3])
	}

	needsWidth := func(t PortableType) (PortableType, error) {
		if m[2] == "" {
			return PortableType{}, fmt.Errorf("type %q requires a size, e.g. %s(64)", name, name)
		}
		return t, nil
	}

	switch name {
	case "integer", "int":
		if m[2] == "" {
			return Integer(64), nil
		}
		return Integer(arg1), nil
	case "decimal", "numeric":
		if m[3] == "" {
			return PortableType{}, fmt.Errorf("type %q requires precision and scale, e.g. decimal(10,2)", name)
		}
		return Decimal(arg1, arg2), nil
	case "float":
		return Float(), nil
	case "double":
		return Double(), nil
	case "money":
		return Money(), nil
	case "boolean", "bool":
		return Bool(), nil
	case "char":
		return needsWidth(Char(arg1))
	case "varchar":
		return needsWidth(VarChar(arg1))
	case "nchar":
		return needsWidth(NChar(arg1))
	case "nvarchar":
		return needsWidth(NVarChar(arg1))
	case "text":
		return Text(), nil
	case "binary":
		return needsWidth(Binary(arg1))
	case "varbinary":
		return needsWidth(VarBinary(arg1))
	case "blob":
		return Blob(), nil
	case "date":
		return Date(), nil
	case "time":
		return Time(), nil
	case "datetime", "timestamp":
		return DateTime(), nil
	case "datetimeoffset":
		return DateTimeOffset(), nil
	case "uuid":
		return UUID(), nil
	case "json":
		return JSON(), nil
	case "xml":
		return XML(), nil
	}
	return PortableType{}, fmt.Errorf("unknown type %q", s)
}
