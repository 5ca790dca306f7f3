package core

// Runtime abstracts the embedded JavaScript engine (QuickJS or V8) behind
// a common interface used by the host modules in internal/hostapi and the
// runtime manager in internal/vm.
//
// A Runtime is not safe for concurrent use. Callers serialize access.
type Runtime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// EvalInt evaluates JavaScript and returns the result as a Go int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// The function's Go types are automatically marshaled to/from JS types.
	// On error return, the JS wrapper throws a TypeError instead of
	// returning an array.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	RunMicrotasks()

	// RunGC asks the engine to collect unreachable objects. Called after
	// durable references are dropped.
	RunGC()

	// Engine names the backing engine ("quickjs" or "v8").
	Engine() string

	// Close disposes the engine.
	Close()
}

// BinaryTransferer moves raw bytes between Go and JS buffers with one copy
// per transfer. Both engine adapters implement it; the arrow host module
// requires it.
type BinaryTransferer interface {
	// ReadBinaryFromJS reads the buffer stored at the given global, deletes
	// the global and returns a Go copy of its bytes.
	ReadBinaryFromJS(globalName string) ([]byte, error)

	// WriteBinaryToJS stores a copy of data as an ArrayBuffer at the given
	// global.
	WriteBinaryToJS(globalName string, data []byte) error

	// BinaryMode names the buffer type JS must allocate for
	// ReadBinaryFromJS: "sab" for SharedArrayBuffer (V8), "ab" for
	// ArrayBuffer (QuickJS).
	BinaryMode() string
}
