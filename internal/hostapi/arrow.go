package hostapi

import (
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cryguy/adhesive/internal/bridge"
	"github.com/cryguy/adhesive/internal/core"
	"github.com/goccy/go-json"
)

// Globals through which column buffers cross into and out of managed code.
const (
	inValuesGlobal    = "__adhesive_in_values"
	inValidityGlobal  = "__adhesive_in_validity"
	outValuesGlobal   = "__adhesive_out_values"
	outValidityGlobal = "__adhesive_out_validity"
	binaryModeGlobal  = "__adhesive_binary_mode"
)

// Column kinds as seen by managed code.
const (
	kindBigInt  = "bigint"
	kindNumber  = "number"
	kindString  = "string"
	kindBoolean = "boolean"
)

type batchDescription struct {
	Rows    int          `json:"rows"`
	Columns []columnMeta `json:"columns"`
}

type columnMeta struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// columnLayout tells managed code how to view the buffers published for one
// column. View is a typed array constructor name, or "bits" for a bitmap.
// String columns carry their values inline.
type columnLayout struct {
	Kind   string    `json:"kind"`
	View   string    `json:"view,omitempty"`
	Nulls  bool      `json:"nulls"`
	Values []*string `json:"values,omitempty"`
}

// column is a column rendered for managed code: its layout and the bytes
// published as the values and validity buffers.
type column struct {
	layout   columnLayout
	values   []byte
	validity []byte
}

// resultWidths maps result types to their value width in bytes.
var resultWidths = map[string]int{
	"int64":   8,
	"int32":   4,
	"float64": 8,
	"float32": 4,
}

// batchTable holds the input batches imported by managed code, keyed by
// handle, until managed code releases them.
type batchTable struct {
	mu      sync.Mutex
	next    int
	batches map[int]*array.Struct
}

func (t *batchTable) put(b *array.Struct) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.batches[t.next] = b
	return t.next
}

func (t *batchTable) get(h int) (*array.Struct, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[h]
	if !ok {
		return nil, fmt.Errorf("unknown batch handle %d", h)
	}
	return b, nil
}

func (t *batchTable) release(h int) bool {
	t.mu.Lock()
	b, ok := t.batches[h]
	delete(t.batches, h)
	t.mu.Unlock()
	if ok {
		b.Release()
	}
	return ok
}

func (t *batchTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches)
}

// SetupArrow registers the host functions managed code uses to read its
// input batch and write its result through the C Data Interface:
//
//	__arrow_import(schemaAddr, arrayAddr) -> handle
//	__arrow_describe(handle) -> JSON {rows, columns}
//	__arrow_column(handle, index) -> JSON layout; buffers at __adhesive_in_*
//	__arrow_export(type, length, nullCount, schemaAddr, arrayAddr) -> length
//	__arrow_release(handle)
//
// Value and validity buffers travel as ArrayBuffers, one copy each way.
func SetupArrow(rt core.Runtime) error {
	_, err := setupArrow(rt)
	return err
}

func setupArrow(rt core.Runtime) (*batchTable, error) {
	bt, ok := rt.(core.BinaryTransferer)
	if !ok {
		return nil, fmt.Errorf("%s runtime cannot transfer binary buffers", rt.Engine())
	}
	if err := rt.SetGlobal(binaryModeGlobal, bt.BinaryMode()); err != nil {
		return nil, fmt.Errorf("setting %s: %w", binaryModeGlobal, err)
	}

	batches := &batchTable{batches: make(map[int]*array.Struct)}

	if err := rt.RegisterFunc("__arrow_import", func(schemaStr, arrayStr string) (int, error) {
		schemaAddr, err := bridge.ParseAddr(schemaStr)
		if err != nil {
			return 0, fmt.Errorf("input schema: %w", err)
		}
		arrayAddr, err := bridge.ParseAddr(arrayStr)
		if err != nil {
			return 0, fmt.Errorf("input array: %w", err)
		}
		arr, err := bridge.ImportAt(schemaAddr, arrayAddr)
		if err != nil {
			return 0, err
		}
		st, ok := arr.(*array.Struct)
		if !ok {
			arr.Release()
			return 0, fmt.Errorf("input batch must be a struct column, got %s", arr.DataType())
		}
		return batches.put(st), nil
	}); err != nil {
		return nil, fmt.Errorf("registering __arrow_import: %w", err)
	}

	if err := rt.RegisterFunc("__arrow_describe", func(h int) (string, error) {
		b, err := batches.get(h)
		if err != nil {
			return "", err
		}
		st := b.DataType().(*arrow.StructType)
		desc := batchDescription{Rows: b.Len(), Columns: make([]columnMeta, st.NumFields())}
		for i, f := range st.Fields() {
			desc.Columns[i] = columnMeta{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable}
		}
		out, err := json.Marshal(desc)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}); err != nil {
		return nil, fmt.Errorf("registering __arrow_describe: %w", err)
	}

	if err := rt.RegisterFunc("__arrow_column", func(h, i int) (string, error) {
		b, err := batches.get(h)
		if err != nil {
			return "", err
		}
		if i < 0 || i >= b.NumField() {
			return "", fmt.Errorf("column %d out of range [0, %d)", i, b.NumField())
		}
		col, err := encodeColumn(b.Field(i))
		if err != nil {
			return "", fmt.Errorf("column %d: %w", i, err)
		}
		if col.layout.View != "" {
			if err := bt.WriteBinaryToJS(inValuesGlobal, col.values); err != nil {
				return "", fmt.Errorf("column %d values: %w", i, err)
			}
		}
		if col.layout.Nulls {
			if err := bt.WriteBinaryToJS(inValidityGlobal, col.validity); err != nil {
				return "", fmt.Errorf("column %d validity: %w", i, err)
			}
		}
		out, err := json.Marshal(col.layout)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}); err != nil {
		return nil, fmt.Errorf("registering __arrow_column: %w", err)
	}

	if err := rt.RegisterFunc("__arrow_export", func(typ string, n, nulls int, schemaStr, arrayStr string) (int, error) {
		schemaAddr, err := bridge.ParseAddr(schemaStr)
		if err != nil {
			return 0, fmt.Errorf("output schema: %w", err)
		}
		arrayAddr, err := bridge.ParseAddr(arrayStr)
		if err != nil {
			return 0, fmt.Errorf("output array: %w", err)
		}
		values, err := bt.ReadBinaryFromJS(outValuesGlobal)
		if err != nil {
			return 0, fmt.Errorf("reading result values: %w", err)
		}
		var validity []byte
		if nulls > 0 {
			if validity, err = bt.ReadBinaryFromJS(outValidityGlobal); err != nil {
				return 0, fmt.Errorf("reading result validity: %w", err)
			}
		}
		arr, err := buildResult(typ, n, nulls, values, validity)
		if err != nil {
			return 0, err
		}
		defer arr.Release()
		if err := bridge.ExportAt(arr, schemaAddr, arrayAddr); err != nil {
			return 0, err
		}
		return arr.Len(), nil
	}); err != nil {
		return nil, fmt.Errorf("registering __arrow_export: %w", err)
	}

	if err := rt.RegisterFunc("__arrow_release", func(h int) (int, error) {
		if !batches.release(h) {
			return 0, fmt.Errorf("unknown batch handle %d", h)
		}
		return 0, nil
	}); err != nil {
		return nil, fmt.Errorf("registering __arrow_release: %w", err)
	}

	return batches, nil
}

// encodeColumn picks the typed array view for col and slices out its value
// bytes. Validity and boolean bitmaps are realigned to bit zero.
func encodeColumn(col arrow.Array) (column, error) {
	var out column
	switch c := col.(type) {
	case *array.Int64:
		out = fixed(kindBigInt, "BigInt64Array", arrow.Int64Traits.CastToBytes(c.Int64Values()))
	case *array.Uint64:
		out = fixed(kindBigInt, "BigUint64Array", arrow.Uint64Traits.CastToBytes(c.Uint64Values()))
	case *array.Int32:
		out = fixed(kindNumber, "Int32Array", arrow.Int32Traits.CastToBytes(c.Int32Values()))
	case *array.Int16:
		out = fixed(kindNumber, "Int16Array", arrow.Int16Traits.CastToBytes(c.Int16Values()))
	case *array.Int8:
		out = fixed(kindNumber, "Int8Array", arrow.Int8Traits.CastToBytes(c.Int8Values()))
	case *array.Uint32:
		out = fixed(kindNumber, "Uint32Array", arrow.Uint32Traits.CastToBytes(c.Uint32Values()))
	case *array.Uint16:
		out = fixed(kindNumber, "Uint16Array", arrow.Uint16Traits.CastToBytes(c.Uint16Values()))
	case *array.Uint8:
		out = fixed(kindNumber, "Uint8Array", arrow.Uint8Traits.CastToBytes(c.Uint8Values()))
	case *array.Float64:
		out = fixed(kindNumber, "Float64Array", arrow.Float64Traits.CastToBytes(c.Float64Values()))
	case *array.Float32:
		out = fixed(kindNumber, "Float32Array", arrow.Float32Traits.CastToBytes(c.Float32Values()))
	case *array.Boolean:
		out = fixed(kindBoolean, "bits", realign(c.Data().Buffers()[1], c.Data().Offset(), c.Len()))
	case *array.String:
		// no TextDecoder in either engine; UTF-8 stays on the text path
		return column{layout: columnLayout{Kind: kindString, Values: stringsOf(c.Len(), c.IsNull, c.Value)}}, nil
	case *array.LargeString:
		// no TextDecoder in either engine; UTF-8 stays on the text path
		return column{layout: columnLayout{Kind: kindString, Values: stringsOf(c.Len(), c.IsNull, c.Value)}}, nil
	default:
		return column{}, fmt.Errorf("unsupported column type %s", col.DataType())
	}

	if col.NullN() > 0 {
		out.layout.Nulls = true
		out.validity = realign(col.Data().Buffers()[0], col.Data().Offset(), col.Len())
	}
	return out, nil
}

func fixed(kind, view string, values []byte) column {
	return column{layout: columnLayout{Kind: kind, View: view}, values: values}
}

// realign copies length bits of buf starting at bit offset into a fresh
// bitmap starting at bit zero.
func realign(buf *memory.Buffer, offset, length int) []byte {
	out := make([]byte, bitutil.BytesForBits(int64(length)))
	if buf == nil || length == 0 {
		return out
	}
	bitutil.CopyBitmap(buf.Bytes(), offset, length, out, 0)
	return out
}

func stringsOf(n int, isNull func(int) bool, value func(int) string) []*string {
	out := make([]*string, n)
	for i := 0; i < n; i++ {
		if !isNull(i) {
			s := value(i)
			out[i] = &s
		}
	}
	return out
}

// buildResult wraps the value and validity bytes managed code produced as a
// result column of type typ. The bytes are adopted, not copied.
func buildResult(typ string, n, nulls int, values, validity []byte) (arrow.Array, error) {
	width, ok := resultWidths[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported result type %q", typ)
	}
	dt := arrow.PrimitiveTypes.Int64
	switch typ {
	case "int32":
		dt = arrow.PrimitiveTypes.Int32
	case "float64":
		dt = arrow.PrimitiveTypes.Float64
	case "float32":
		dt = arrow.PrimitiveTypes.Float32
	}

	if n < 0 || nulls < 0 || nulls > n {
		return nil, fmt.Errorf("invalid result shape: %d rows, %d nulls", n, nulls)
	}
	if len(values) != n*width {
		return nil, fmt.Errorf("result values hold %d bytes, expected %d", len(values), n*width)
	}

	var validityBuf *memory.Buffer
	if nulls > 0 {
		if int64(len(validity)) < bitutil.BytesForBits(int64(n)) {
			return nil, fmt.Errorf("result validity holds %d bytes for %d rows", len(validity), n)
		}
		if set := bitutil.CountSetBits(validity, 0, n); n-set != nulls {
			return nil, fmt.Errorf("result validity marks %d nulls, reported %d", n-set, nulls)
		}
		validityBuf = memory.NewBufferBytes(validity)
	}

	data := array.NewData(dt, n, []*memory.Buffer{validityBuf, memory.NewBufferBytes(values)}, nil, nulls, 0)
	defer data.Release()
	return array.MakeFromData(data), nil
}
