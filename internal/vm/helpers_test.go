package vm

import (
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cryguy/adhesive/internal/bridge"
	"github.com/cryguy/adhesive/internal/core"
	"github.com/stretchr/testify/require"
)

var testClasses = filepath.Join("..", "..", "testdata", "classes")

// bootTest boots a private runtime over the shared test class path.
func bootTest(t *testing.T, extra ...string) *Handle {
	t.Helper()
	h, err := boot(core.BootOptions{Classpath: append([]string{testClasses}, extra...), MemoryLimitMB: 128})
	require.NoError(t, err)
	t.Cleanup(h.close)
	return h
}

func attach(t *testing.T, h *Handle) *Env {
	t.Helper()
	env, err := h.AttachCurrentThread()
	require.NoError(t, err)
	t.Cleanup(env.Release)
	return env
}

// invokeInt64 runs target over int64 columns and returns the result values.
func invokeInt64(t *testing.T, env *Env, target *Target, cols ...[]int64) ([]int64, error) {
	t.Helper()
	types := make([]arrow.DataType, len(cols))
	arrs := make([]arrow.Array, len(cols))
	rows := 0
	for i, values := range cols {
		b := array.NewInt64Builder(memory.NewGoAllocator())
		b.AppendValues(values, nil)
		arrs[i] = b.NewArray()
		b.Release()
		types[i] = arrow.PrimitiveTypes.Int64
		rows = len(values)
	}
	defer func() {
		for _, a := range arrs {
			a.Release()
		}
	}()

	in, err := bridge.ExportInputs(types, arrs, rows)
	require.NoError(t, err)
	defer in.Release()

	out, err := target.Invoke(env, in)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	res, err := bridge.ImportResult(out)
	if err != nil {
		return nil, err
	}
	defer res.Release()
	require.Equal(t, rows, res.Len())
	return append([]int64(nil), res.(*array.Int64).Int64Values()...), nil
}
