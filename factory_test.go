package adhesive

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var int64Type = arrow.PrimitiveTypes.Int64

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(Options{Classpath: []string{filepath.Join("testdata", "classes")}})
	require.NoError(t, err)
	return f
}

func int64Column(values ...int64) arrow.Array {
	b := array.NewInt64Builder(memory.NewGoAllocator())
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func binaryInt64(name, language string, quote Quote, body string) *CreateFunction {
	return &CreateFunction{
		Name:       name,
		Args:       []FunctionArg{{Name: "a", Type: int64Type}, {Name: "b", Type: int64Type}},
		ReturnType: int64Type,
		Language:   language,
		Body:       &DefinitionStatement{Quote: quote, Value: body},
	}
}

func register(t *testing.T, f *Factory, stmt *CreateFunction) *BoundFunction {
	t.Helper()
	reg, err := f.Create(stmt)
	require.NoError(t, err)
	fn, ok := reg.Scalar.(*BoundFunction)
	require.True(t, ok)
	t.Cleanup(func() { _ = fn.Close() })
	return fn
}

func invokeColumns(t *testing.T, fn *BoundFunction, cols ...[]int64) ([]int64, error) {
	t.Helper()
	args := make([]ColumnarValue, len(cols))
	rows := 0
	for i, c := range cols {
		arr := int64Column(c...)
		defer arr.Release()
		args[i] = ArrayValue(arr)
		rows = len(c)
	}
	out, err := fn.Invoke(args, rows)
	if err != nil {
		return nil, err
	}
	defer out.Release()
	return append([]int64(nil), out.Array.(*array.Int64).Int64Values()...), nil
}

const multiplySource = `class NewClass extends Adhesive {
  compute(row) {
    return row.getBigInt(0) * row.getBigInt(1);
  }
}`

func TestCompiledFunctionEndToEnd(t *testing.T) {
	f := newTestFactory(t)
	fn := register(t, f, binaryInt64("f1", "", SingleQuoted, multiplySource))

	got, err := invokeColumns(t, fn, []int64{1, 2, 3, 4}, []int64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 40, 90, 160}, got)

	assert.Equal(t, "f1", fn.Name())
	assert.Regexp(t, regexp.MustCompile(`^adhesive\.generated\.p[a-z]{6}\.NewClass$`), fn.Class())
	assert.Equal(t, SourceCode{Language: LanguageJavaScript, Text: multiplySource}, fn.Definition())
}

func TestClassFunctionEndToEnd(t *testing.T) {
	f := newTestFactory(t)
	fn := register(t, f, binaryInt64("f2", "CLASS", DoubleQuoted, "com.example.BasicExample"))

	got, err := invokeColumns(t, fn, []int64{1, 2, 3, 4}, []int64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 22, 33, 44}, got)
	assert.Equal(t, FullyQualifiedName{Name: "com.example.BasicExample"}, fn.Definition())
}

func TestTypeScriptSource(t *testing.T) {
	f := newTestFactory(t)
	src := `class Sub extends Adhesive {
  compute(row: { getBigInt(i: number): bigint }): bigint {
    return row.getBigInt(0) - row.getBigInt(1);
  }
}`
	fn := register(t, f, binaryInt64("f3", "ts", SingleQuoted, src))

	got, err := invokeColumns(t, fn, []int64{10, 20}, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 18}, got)
}

func TestScalarArgumentIsBroadcast(t *testing.T) {
	f := newTestFactory(t)
	fn := register(t, f, binaryInt64("plus", "class", SingleQuoted, "com.example.BasicExample"))

	col := int64Column(1, 2, 3)
	defer col.Release()

	out, err := fn.Invoke([]ColumnarValue{ArrayValue(col), ScalarValue(scalar.NewInt64Scalar(100))}, 3)
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []int64{101, 102, 103}, out.Array.(*array.Int64).Int64Values())
}

func TestIndependentInstancesPerRegistration(t *testing.T) {
	f := newTestFactory(t)
	unary := func(name string) *CreateFunction {
		return &CreateFunction{
			Name:       name,
			Args:       []FunctionArg{{Type: int64Type}},
			ReturnType: int64Type,
			Language:   "class",
			Body:       &DefinitionStatement{Quote: DoubleQuoted, Value: "com.example.CountingExample"},
		}
	}
	first := register(t, f, unary("c1"))
	second := register(t, f, unary("c2"))

	got, err := invokeColumns(t, first, []int64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got)

	got, err = invokeColumns(t, second, []int64{0})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got)
}

func TestManagedExceptionThenSuccess(t *testing.T) {
	f := newTestFactory(t)
	freaks := register(t, f, binaryInt64("freaks", "class", DoubleQuoted, "com.example.FreaksOutExample"))
	basic := register(t, f, binaryInt64("basic", "class", DoubleQuoted, "com.example.BasicExample"))

	_, err := invokeColumns(t, freaks, []int64{1}, []int64{2})
	require.Error(t, err)
	assert.ErrorIs(t, err, aerrors.ErrManagedException)
	var e *aerrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "freaks", e.Function)

	var report *vm.ExceptionReport
	require.True(t, errors.As(err, &report))
	assert.Equal(t, "Its ok to freak out sometimes", report.Message)

	got, err := invokeColumns(t, basic, []int64{1}, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, got)
}

func TestRegistrationFailures(t *testing.T) {
	f := newTestFactory(t)

	tests := []struct {
		name string
		stmt *CreateFunction
		want error
	}{
		{"missing class", binaryInt64("m", "class", DoubleQuoted, "com.example.Missing"), aerrors.ErrClassNotFound},
		{"no class in source", binaryInt64("m", "", SingleQuoted, "1 + 1"), aerrors.ErrSourceParse},
		{"compile error", binaryInt64("m", "js", SingleQuoted, "class X extends Adhesive { compute( }"), aerrors.ErrCompilation},
		{"typescript error", binaryInt64("m", "typescript", SingleQuoted, "class X {{ "), aerrors.ErrCompilation},
		{"throwing constructor", binaryInt64("m", "class", DoubleQuoted, "com.example.BrokenConstructor"), aerrors.ErrInstantiation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := f.Create(tt.stmt)
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, tt.want)

			var e *aerrors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "m", e.Function)
		})
	}
}

// A zero Factory has no runtime; these statements must be rejected before
// it is needed.
func TestRejectedBeforeRuntimeCall(t *testing.T) {
	f := &Factory{}

	noBody := binaryInt64("f", "", SingleQuoted, "")
	noBody.Body = nil

	text := binaryInt64("f", "", SingleQuoted, "class X extends Adhesive {}")
	text.ReturnType = arrow.PrimitiveTypes.Float64

	badArg := binaryInt64("f", "", SingleQuoted, "class X extends Adhesive {}")
	badArg.Args[1].Type = arrow.BinaryTypes.Binary

	noArgs := binaryInt64("f", "", SingleQuoted, "class X extends Adhesive { compute(row) { return 1n } }")
	noArgs.Args = nil

	tests := []struct {
		name string
		stmt *CreateFunction
		want error
	}{
		{"nil statement", nil, aerrors.ErrInvalidDefinition},
		{"no body", noBody, aerrors.ErrInvalidDefinition},
		{"blank body", binaryInt64("f", "class", DoubleQuoted, "  "), aerrors.ErrInvalidDefinition},
		{"double-quoted source", binaryInt64("f", "javascript", DoubleQuoted, "class X {}"), aerrors.ErrInvalidDefinition},
		{"unknown language", binaryInt64("f", "cobol", SingleQuoted, "class X {}"), aerrors.ErrInvalidDefinition},
		{"unsupported return type", text, aerrors.ErrUnsupportedType},
		{"unsupported argument type", badArg, aerrors.ErrUnsupportedType},
		{"no arguments", noArgs, aerrors.ErrInvalidDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := f.Create(tt.stmt)
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, &aerrors.Error{Phase: aerrors.PhaseRegister, Kind: aerrors.KindOf(tt.want)})
		})
	}
}

const nullSafePlusSource = `class NullSafe extends Adhesive {
  compute(row) {
    if (row.isNull(0) || row.isNull(1)) return null;
    return row.getBigInt(0) + row.getBigInt(1);
  }
}`

func TestNullableInputsEndToEnd(t *testing.T) {
	f := newTestFactory(t)
	fn := register(t, f, binaryInt64("plus", "", SingleQuoted, nullSafePlusSource))

	b := array.NewInt64Builder(memory.NewGoAllocator())
	b.AppendValues([]int64{1, 0, 3}, []bool{true, false, true})
	left := b.NewArray()
	b.Release()
	defer left.Release()
	right := int64Column(10, 20, 30)
	defer right.Release()

	out, err := fn.Invoke([]ColumnarValue{ArrayValue(left), ArrayValue(right)}, 3)
	require.NoError(t, err)
	defer out.Release()

	res := out.Array.(*array.Int64)
	require.Equal(t, 3, res.Len())
	assert.Equal(t, 1, res.NullN())
	assert.True(t, res.IsNull(1))
	assert.Equal(t, int64(11), res.Value(0))
	assert.Equal(t, int64(33), res.Value(2))
}

func TestInvokeArgumentErrors(t *testing.T) {
	f := newTestFactory(t)
	fn := register(t, f, binaryInt64("plus", "class", DoubleQuoted, "com.example.BasicExample"))

	col := int64Column(1, 2)
	defer col.Release()

	_, err := fn.Invoke([]ColumnarValue{ArrayValue(col)}, 2)
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)

	_, err = fn.Invoke([]ColumnarValue{ArrayValue(col), ArrayValue(col)}, 3)
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)

	_, err = fn.Invoke([]ColumnarValue{ArrayValue(col), ScalarValue(scalar.NewFloat64Scalar(1))}, 2)
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)

	_, err = fn.Invoke([]ColumnarValue{ArrayValue(col), {}}, 2)
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)
}

func TestSignatureAndReturnType(t *testing.T) {
	f := newTestFactory(t)
	fn := register(t, f, binaryInt64("plus", "class", DoubleQuoted, "com.example.BasicExample"))

	sig := fn.Signature()
	assert.True(t, sig.Exact)
	assert.Equal(t, Volatile, sig.Volatility)
	assert.True(t, sig.Matches([]arrow.DataType{int64Type, int64Type}))
	assert.False(t, sig.Matches([]arrow.DataType{int64Type}))
	assert.False(t, sig.Matches([]arrow.DataType{int64Type, arrow.PrimitiveTypes.Int32}))

	rt, err := fn.ReturnType([]arrow.DataType{int64Type, int64Type})
	require.NoError(t, err)
	assert.True(t, arrow.TypeEqual(int64Type, rt))

	_, err = fn.ReturnType([]arrow.DataType{arrow.PrimitiveTypes.Int32, int64Type})
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)
}

func TestCloseReleasesInstance(t *testing.T) {
	f := newTestFactory(t)
	reg, err := f.Create(binaryInt64("plus", "class", DoubleQuoted, "com.example.BasicExample"))
	require.NoError(t, err)
	fn := reg.Scalar.(*BoundFunction)

	require.NoError(t, fn.Close())
	require.NoError(t, fn.Close())

	_, err = invokeColumns(t, fn, []int64{1}, []int64{2})
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)
}

func TestNewFactoryReusesRuntime(t *testing.T) {
	first := newTestFactory(t)
	second, err := NewFactory(Options{Classpath: []string{"/does/not/matter"}})
	require.NoError(t, err)
	assert.Same(t, first.handle, second.handle)
	assert.NotEmpty(t, second.Engine())
}
