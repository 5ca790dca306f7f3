package vm

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAndInvoke(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	target, err := Resolve(env, "com.example.BasicExample", "computeBigInt")
	require.NoError(t, err)
	defer target.Release()

	assert.Equal(t, "com.example.BasicExample", target.Method.Class)
	assert.Equal(t, "computeBigInt", target.Method.Name)
	assert.Equal(t, ComputeArity, target.Method.Arity)

	got, err := invokeInt64(t, env, target, []int64{1, 2, 3, 4}, []int64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 22, 33, 44}, got)
}

func TestResolveCreatesFreshInstances(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	first, err := Resolve(env, "com.example.CountingExample", "computeBigInt")
	require.NoError(t, err)
	defer first.Release()
	second, err := Resolve(env, "com.example.CountingExample", "computeBigInt")
	require.NoError(t, err)
	defer second.Release()

	got, err := invokeInt64(t, env, first, []int64{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)

	got, err = invokeInt64(t, env, second, []int64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got)

	got, err = invokeInt64(t, env, first, []int64{0})
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, got)

	n, err := h.GlobalRefs()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestResolveTypeScriptClass(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	target, err := Resolve(env, "com.example.TypedExample", "computeBigInt")
	require.NoError(t, err)
	defer target.Release()

	got, err := invokeInt64(t, env, target, []int64{1, 2, 3, 4}, []int64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 40, 90, 160}, got)
}

func TestResolveFailures(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	tests := []struct {
		name   string
		class  string
		method string
		want   error
	}{
		{"missing class", "com.example.Missing", "computeBigInt", aerrors.ErrClassNotFound},
		{"missing method", "com.example.BasicExample", "computeNothing", aerrors.ErrMethodNotFound},
		{"wrong arity", "com.example.NoCompute", "computeBigInt", aerrors.ErrMethodNotFound},
		{"throwing constructor", "com.example.BrokenConstructor", "computeBigInt", aerrors.ErrInstantiation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := Resolve(env, tt.class, tt.method)
			require.Error(t, err)
			assert.Nil(t, target)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, &aerrors.Error{Phase: aerrors.PhaseRegister, Kind: aerrors.KindOf(tt.want)})

			var report *ExceptionReport
			require.True(t, errors.As(err, &report))
			assert.NotEmpty(t, report.Name)

			pending, err := env.ExceptionCheck()
			require.NoError(t, err)
			assert.False(t, pending, "exception is cleared after translation")
		})
	}

	n, err := h.GlobalRefs()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMissingClassReportsLoaderError(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	_, err := Resolve(env, "com.example.Missing", "computeBigInt")
	var report *ExceptionReport
	require.True(t, errors.As(err, &report))
	assert.Equal(t, "NoClassDefFoundError", report.Name)
	assert.Contains(t, report.Message, "com.example.Missing")
}

func TestManagedExceptionDuringInvoke(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	freaks, err := Resolve(env, "com.example.FreaksOutExample", "computeBigInt")
	require.NoError(t, err)
	defer freaks.Release()

	_, err = invokeInt64(t, env, freaks, []int64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, &aerrors.Error{Phase: aerrors.PhaseInvoke, Kind: aerrors.KindManagedException})

	var report *ExceptionReport
	require.True(t, errors.As(err, &report))
	assert.Equal(t, "Error", report.Name)
	assert.Equal(t, "Its ok to freak out sometimes", report.Message)
	assert.Contains(t, err.Error(), "Its ok to freak out sometimes")

	basic, err := Resolve(env, "com.example.BasicExample", "computeBigInt")
	require.NoError(t, err)
	defer basic.Release()

	got, err := invokeInt64(t, env, basic, []int64{1}, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, got)
}

func TestReleaseDropsGlobalRef(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	target, err := Resolve(env, "com.example.BasicExample", "computeBigInt")
	require.NoError(t, err)

	n, err := h.GlobalRefs()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	target.Release()
	target.Release()

	n, err = h.GlobalRefs()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = invokeInt64(t, env, target, []int64{1}, []int64{2})
	assert.ErrorIs(t, err, aerrors.ErrInvalidArgument)
}

func TestFinalizerDoesNotBlockOnBusyEngine(t *testing.T) {
	h := bootTest(t)
	env := attach(t, h)

	target, err := Resolve(env, "com.example.BasicExample", "computeBigInt")
	require.NoError(t, err)
	runtime.SetFinalizer(target, nil)

	h.mu.Lock()
	done := make(chan struct{})
	go func() {
		finalizeTarget(target)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.mu.Unlock()
		t.Fatal("finalizer blocked on the engine lock")
	}
	h.mu.Unlock()

	assert.Eventually(t, func() bool {
		n, err := h.GlobalRefs()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, target.released.Load())
}

func TestZipClasspath(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "classes.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("org/acme/Doubler.js")
	require.NoError(t, err)
	_, err = w.Write([]byte("class Doubler extends Adhesive { compute(row) { return row.getBigInt(0) * 2n; } }\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	h := bootTest(t, archive)
	env := attach(t, h)

	target, err := Resolve(env, "org.acme.Doubler", "computeBigInt")
	require.NoError(t, err)
	defer target.Release()

	got, err := invokeInt64(t, env, target, []int64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 10}, got)
}

func TestClasspathLookupOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(first, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(second, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(first, "a", "C.ts"), []byte("class C { n: number = 1 }"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(first, "a", "C.js"), []byte("class C {}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(second, "a", "D.js"), []byte("class D {}"), 0o600))

	cp, err := OpenClasspath([]string{first, second})
	require.NoError(t, err)
	defer cp.Close()
	assert.Equal(t, []string{first, second}, cp.Entries())

	src, ok, err := cp.LoadClass("a/C")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "class C {}", src)

	_, ok, err = cp.LoadClass("a/D")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = cp.LoadClass("a/Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cp.LoadClass("../escape")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTranspile(t *testing.T) {
	js, err := Transpile("class A { x: number = 1; f(a: bigint): bigint { return a } }")
	require.NoError(t, err)
	assert.NotContains(t, js, ": number")
	assert.Contains(t, js, "class A")

	_, err = Transpile("class {{")
	assert.Error(t, err)
}

func TestClassNameConversions(t *testing.T) {
	assert.Equal(t, "com/example/BasicExample", ClassPath("com.example.BasicExample"))
	assert.Equal(t, "com.example.BasicExample", ClassName("com/example/BasicExample"))
}
