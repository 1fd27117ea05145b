// Package schema models tables, columns, indexes, and constraints in an
// engine-neutral form, and plans the ordered operations needed to move one
// schema to another. Rendering to engine SQL lives in internal/dialect.
package schema

import "fmt"

// TypeKind enumerates the portable column types. Every kind renders to
// exactly one native type per supported engine; rendering is total.
type TypeKind int

const (
	KindInteger TypeKind = iota
	KindDecimal
	KindFloat
	KindDouble
	KindMoney
	KindBoolean
	KindChar
	KindVarChar
	KindNChar
	KindNVarChar
	KindText
	KindBinary
	KindVarBinary
	KindBlob
	KindDate
	KindTime
	KindDateTime
	KindDateTimeOffset
	KindUUID
	KindJSON
	KindXML
)

// PortableType is a column type plus its size parameters. Width is the bit
// width for integers and the character/byte length for sized string and
// binary kinds. Precision/Scale apply to decimals only.
type PortableType struct {
	Kind      TypeKind
	Width     int
	Precision int
	Scale     int
}

// Integer returns an integer type of the given bit width (16, 32, or 64).
func Integer(bits int) PortableType { return PortableType{Kind: KindInteger, Width: bits} }

// Decimal returns a fixed-point numeric type.
func Decimal(precision, scale int) PortableType {
	return PortableType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

func Float() PortableType  { return PortableType{Kind: KindFloat} }
func Double() PortableType { return PortableType{Kind: KindDouble} }
func Money() PortableType  { return PortableType{Kind: KindMoney} }
func Bool() PortableType   { return PortableType{Kind: KindBoolean} }

func Char(n int) PortableType     { return PortableType{Kind: KindChar, Width: n} }
func VarChar(n int) PortableType  { return PortableType{Kind: KindVarChar, Width: n} }
func NChar(n int) PortableType    { return PortableType{Kind: KindNChar, Width: n} }
func NVarChar(n int) PortableType { return PortableType{Kind: KindNVarChar, Width: n} }
func Text() PortableType          { return PortableType{Kind: KindText} }

func Binary(n int) PortableType    { return PortableType{Kind: KindBinary, Width: n} }
func VarBinary(n int) PortableType { return PortableType{Kind: KindVarBinary, Width: n} }
func Blob() PortableType           { return PortableType{Kind: KindBlob} }

func Date() PortableType           { return PortableType{Kind: KindDate} }
func Time() PortableType           { return PortableType{Kind: KindTime} }
func DateTime() PortableType       { return PortableType{Kind: KindDateTime} }
func DateTimeOffset() PortableType { return PortableType{Kind: KindDateTimeOffset} }

func UUID() PortableType { return PortableType{Kind: KindUUID} }
func JSON() PortableType { return PortableType{Kind: KindJSON} }
func XML() PortableType  { return PortableType{Kind: KindXML} }

// IsInteger reports whether t can carry an identity/auto-increment column.
func (t PortableType) IsInteger() bool {
	return t.Kind == KindInteger
}

// String renders a diagnostic (not SQL) description of the type.
func (t PortableType) String() string {
	switch t.Kind {
	case KindInteger:
		return fmt.Sprintf("integer(%d)", t.Width)
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindMoney:
		return "money"
	case KindBoolean:
		return "boolean"
	case KindChar:
		return fmt.Sprintf("char(%d)", t.Width)
	case KindVarChar:
		return fmt.Sprintf("varchar(%d)", t.Width)
	case KindNChar:
		return fmt.Sprintf("nchar(%d)", t.Width)
	case KindNVarChar:
		return fmt.Sprintf("nvarchar(%d)", t.Width)
	case KindText:
		return "text"
	case KindBinary:
		return fmt.Sprintf("binary(%d)", t.Width)
	case KindVarBinary:
		return fmt.Sprintf("varbinary(%d)", t.Width)
	case KindBlob:
		return "blob"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDateTime:
		return "datetime"
	case KindDateTimeOffset:
		return "datetimeoffset"
	case KindUUID:
		return "uuid"
	case KindJSON:
		return "json"
	case KindXML:
		return "xml"
	}
	return fmt.Sprintf("unknown(%d)", int(t.Kind))
}
