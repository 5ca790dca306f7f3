// Package bridge moves columnar batches across the managed runtime boundary
// through the Arrow C Data Interface. Buffers are never copied: only the
// struct descriptors travel, and ownership moves with the release callbacks.
package bridge

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/apache/arrow-go/v18/arrow/memory"
	aerrors "github.com/cryguy/adhesive/errors"
)

// ColumnName returns the field name of the i-th argument column.
func ColumnName(i int) string {
	return fmt.Sprintf("_c%d", i)
}

// InputType builds the struct type the managed side sees for argTypes.
func InputType(argTypes []arrow.DataType) *arrow.StructType {
	fields := make([]arrow.Field, len(argTypes))
	for i, t := range argTypes {
		fields[i] = arrow.Field{Name: ColumnName(i), Type: t, Nullable: false}
	}
	return arrow.StructOf(fields...)
}

// ExportInputs bundles columns into one struct column, children named
// _c0.._cN-1 in argument order, and exports it into a fresh envelope. The
// children reference the callers' buffers.
func ExportInputs(argTypes []arrow.DataType, columns []arrow.Array, numRows int) (*Envelope, error) {
	if len(argTypes) != len(columns) {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
			Detail("expected %d argument columns, got %d", len(argTypes), len(columns)).
			Build()
	}
	if len(argTypes) == 0 {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
			Detail("input batch needs at least one argument column").
			Build()
	}

	children := make([]arrow.ArrayData, len(columns))
	for i, col := range columns {
		if col == nil {
			return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
				Detail("argument %d is nil", i).
				Build()
		}
		if !arrow.TypeEqual(col.DataType(), argTypes[i]) {
			return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
				Detail("argument %d has type %s, declared %s", i, col.DataType(), argTypes[i]).
				Build()
		}
		if col.Len() != numRows {
			return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
				Detail("argument %d has %d rows, batch has %d", i, col.Len(), numRows).
				Build()
		}
		children[i] = col.Data()
	}

	data := array.NewData(InputType(argTypes), numRows, []*memory.Buffer{nil}, children, 0, 0)
	defer data.Release()
	input := array.NewStructData(data)
	defer input.Release()

	env := NewEnvelope()
	cdata.ExportArrowArray(input, env.Array, env.Schema)
	return env, nil
}

// ImportResult takes the array the managed side wrote into env. The buffers
// stay where the producer put them; the returned array owns them.
func ImportResult(env *Envelope) (arrow.Array, error) {
	if env == nil || !env.Populated() {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindBufferImport).
			Detail("result envelope was not populated").
			Build()
	}
	arr, err := importAt(env.schemaAddr(), env.arrayAddr())
	if err != nil {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindBufferImport).
			Cause(err).
			Build()
	}
	return arr, nil
}

// ImportAt imports the array described by the descriptors at the given
// addresses. Used by the managed side to read its input batch.
func ImportAt(schemaAddr, arrayAddr uintptr) (arrow.Array, error) {
	if !live(schemaAddr, arrayAddr) {
		return nil, fmt.Errorf("descriptors at %s/%s are released or empty",
			FormatAddr(schemaAddr), FormatAddr(arrayAddr))
	}
	return importAt(schemaAddr, arrayAddr)
}

// ExportAt exports arr into the empty slots at the given addresses. The
// slots hold their own reference; the caller keeps its reference.
func ExportAt(arr arrow.Array, schemaAddr, arrayAddr uintptr) error {
	if schemaAddr == 0 || arrayAddr == 0 {
		return fmt.Errorf("null output address")
	}
	if !slotsEmpty(schemaAddr, arrayAddr) {
		return fmt.Errorf("output slots at %s/%s are already populated",
			FormatAddr(schemaAddr), FormatAddr(arrayAddr))
	}
	cdata.ExportArrowArray(arr, cdata.ArrayFromPtr(arrayAddr), cdata.SchemaFromPtr(schemaAddr))
	return nil
}

func importAt(schemaAddr, arrayAddr uintptr) (arr arrow.Array, err error) {
	defer func() {
		if p := recover(); p != nil {
			arr, err = nil, fmt.Errorf("malformed descriptors: %v", p)
		}
	}()

	_, arr, err = cdata.ImportCArray(cdata.ArrayFromPtr(arrayAddr), cdata.SchemaFromPtr(schemaAddr))
	if err != nil {
		return nil, fmt.Errorf("importing array: %w", err)
	}
	return arr, nil
}
