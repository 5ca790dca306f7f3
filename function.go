package adhesive

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/bridge"
	"github.com/cryguy/adhesive/internal/metrics"
	"github.com/cryguy/adhesive/internal/vm"
	"go.uber.org/zap"
)

// BoundFunction is a scalar function backed by an instance in the managed
// runtime. It is safe for concurrent use; each call attaches its own
// thread context.
type BoundFunction struct {
	name       string
	argTypes   []arrow.DataType
	returnType arrow.DataType
	definition FunctionDefinition

	handle *vm.Handle
	target *vm.Target
	mem    memory.Allocator
	log    *zap.Logger
}

var _ ScalarUDF = (*BoundFunction)(nil)

// Name returns the declared function name.
func (f *BoundFunction) Name() string { return f.name }

// ArgTypes returns the declared argument types.
func (f *BoundFunction) ArgTypes() []arrow.DataType {
	return append([]arrow.DataType(nil), f.argTypes...)
}

// Definition returns how the function was declared.
func (f *BoundFunction) Definition() FunctionDefinition { return f.definition }

// Class returns the managed class the function dispatches to.
func (f *BoundFunction) Class() string { return f.target.Method.Class }

// Signature is exact over the declared types and volatile, so every call
// reaches the managed runtime.
func (f *BoundFunction) Signature() Signature {
	return Signature{ArgTypes: f.ArgTypes(), Exact: true, Volatility: Volatile}
}

// ReturnType returns the declared return type when argTypes match the
// signature.
func (f *BoundFunction) ReturnType(argTypes []arrow.DataType) (arrow.DataType, error) {
	if !f.Signature().Matches(argTypes) {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
			Function(f.name).
			Detail("arguments %v do not match signature %v", argTypes, f.argTypes).
			Build()
	}
	return f.returnType, nil
}

// Invoke evaluates one batch of numRows rows. Scalar arguments are
// broadcast to full columns. The caller releases the returned column.
func (f *BoundFunction) Invoke(args []ColumnarValue, numRows int) (result ColumnarValue, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.InvocationLatency.WithLabelValues(f.name))
		metrics.Invocations.WithLabelValues(f.name, metrics.Outcome(err)).Inc()
		if err != nil {
			f.log.Debug("function call failed", zap.Int("rows", numRows), zap.Error(err))
			return
		}
		metrics.InvocationRows.WithLabelValues(f.name).Add(float64(numRows))
	}()

	columns, err := f.columns(args, numRows)
	if err != nil {
		return ColumnarValue{}, aerrors.WithFunction(err, f.name)
	}
	defer func() {
		for _, c := range columns {
			c.Release()
		}
	}()

	arr, err := f.call(columns, numRows)
	if err != nil {
		return ColumnarValue{}, aerrors.WithFunction(err, f.name)
	}
	return ArrayValue(arr), nil
}

func (f *BoundFunction) columns(args []ColumnarValue, numRows int) ([]arrow.Array, error) {
	if numRows < 0 {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
			Detail("negative batch size %d", numRows).
			Build()
	}
	if len(args) != len(f.argTypes) {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
			Detail("expected %d arguments, got %d", len(f.argTypes), len(args)).
			Build()
	}

	columns := make([]arrow.Array, 0, len(args))
	for i, a := range args {
		col, err := a.ToArray(numRows, f.mem)
		if err != nil {
			for _, c := range columns {
				c.Release()
			}
			return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
				Detail("argument %d", i).
				Cause(err).
				Build()
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (f *BoundFunction) call(columns []arrow.Array, numRows int) (arrow.Array, error) {
	env, err := f.handle.AttachCurrentThread()
	if err != nil {
		return nil, err
	}
	defer env.Release()

	in, err := bridge.ExportInputs(f.argTypes, columns, numRows)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	out, err := f.target.Invoke(env, in)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	arr, err := bridge.ImportResult(out)
	if err != nil {
		return nil, err
	}

	if !arrow.TypeEqual(arr.DataType(), f.returnType) {
		arr.Release()
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindBufferImport).
			Class(f.Class()).
			Detail("result has type %s, declared %s", arr.DataType(), f.returnType).
			Build()
	}
	if arr.Len() != numRows {
		n := arr.Len()
		arr.Release()
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindBufferImport).
			Class(f.Class()).
			Detail("result has %d rows, batch has %d", n, numRows).
			Build()
	}
	return arr, nil
}

// Close releases the managed instance. Calls after Close fail.
func (f *BoundFunction) Close() error {
	f.target.Release()
	f.log.Debug("function released")
	return nil
}
