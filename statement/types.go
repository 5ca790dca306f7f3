package statement

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// sqlTypes maps SQL type names to Arrow types.
var sqlTypes = map[string]arrow.DataType{
	"BIGINT":           arrow.PrimitiveTypes.Int64,
	"INT8":             arrow.PrimitiveTypes.Int64,
	"LONG":             arrow.PrimitiveTypes.Int64,
	"INT":              arrow.PrimitiveTypes.Int32,
	"INTEGER":          arrow.PrimitiveTypes.Int32,
	"INT4":             arrow.PrimitiveTypes.Int32,
	"SMALLINT":         arrow.PrimitiveTypes.Int16,
	"INT2":             arrow.PrimitiveTypes.Int16,
	"TINYINT":          arrow.PrimitiveTypes.Int8,
	"BIGINT UNSIGNED":  arrow.PrimitiveTypes.Uint64,
	"INT UNSIGNED":     arrow.PrimitiveTypes.Uint32,
	"DOUBLE":           arrow.PrimitiveTypes.Float64,
	"DOUBLE PRECISION": arrow.PrimitiveTypes.Float64,
	"FLOAT8":           arrow.PrimitiveTypes.Float64,
	"REAL":             arrow.PrimitiveTypes.Float32,
	"FLOAT":            arrow.PrimitiveTypes.Float32,
	"FLOAT4":           arrow.PrimitiveTypes.Float32,
	"BOOLEAN":          arrow.FixedWidthTypes.Boolean,
	"BOOL":             arrow.FixedWidthTypes.Boolean,
	"VARCHAR":          arrow.BinaryTypes.String,
	"CHAR":             arrow.BinaryTypes.String,
	"TEXT":             arrow.BinaryTypes.String,
	"STRING":           arrow.BinaryTypes.String,
	"BYTEA":            arrow.BinaryTypes.Binary,
	"BLOB":             arrow.BinaryTypes.Binary,
}

// LookupType resolves a SQL type name. Words are matched
// case-insensitively and separated by single spaces.
func LookupType(name string) (arrow.DataType, bool) {
	dt, ok := sqlTypes[strings.ToUpper(strings.Join(strings.Fields(name), " "))]
	return dt, ok
}
