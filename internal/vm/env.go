package vm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// errPending reports that the last operation left an exception pending in
// the thread context. Callers collect it with CheckAndClear.
var errPending = errors.New("managed exception pending")

// LocalRef names an object in a thread's local frame. Local references are
// invalidated by PopLocalFrame.
type LocalRef int

// GlobalRef names a durable reference. It stays valid from any thread until
// deleted.
type GlobalRef int

// MethodID identifies an instance method by name and arity.
type MethodID struct {
	id    int
	Class string
	Name  string
	Arity int
}

// Env is a thread context: its own local frame and pending exception slot in
// the runtime. An Env must not be used by two goroutines at once.
type Env struct {
	h      *Handle
	id     int
	parked bool
}

// ID returns the context's thread id.
func (e *Env) ID() int { return e.id }

// Handle returns the runtime the context is attached to.
func (e *Env) Handle() *Handle { return e.h }

// Release drops the local frame and parks the context for reuse. The
// context remains attached.
func (e *Env) Release() {
	if e.parked {
		return
	}
	e.parked = true
	e.PopLocalFrame()
	e.h.park(e)
}

// FindClass looks a class up by path form (a/b/C), loading it from the class
// path on first use.
func (e *Env) FindClass(path string) (LocalRef, error) {
	n, err := e.call("findClass", path)
	return LocalRef(n), err
}

// GetObjectClass returns the class of obj.
func (e *Env) GetObjectClass(obj Ref) (LocalRef, error) {
	n, err := e.call("getObjectClass", obj)
	return LocalRef(n), err
}

// GetMethodID resolves an instance method of cls taking arity arguments.
// className is recorded for diagnostics only.
func (e *Env) GetMethodID(cls LocalRef, className, name string, arity int) (MethodID, error) {
	n, err := e.call("getMethodID", cls, name, arity)
	if err != nil {
		return MethodID{}, err
	}
	return MethodID{id: n, Class: className, Name: name, Arity: arity}, nil
}

// NewObject constructs cls with its zero-argument constructor.
func (e *Env) NewObject(cls LocalRef) (LocalRef, error) {
	n, err := e.call("newObject", cls)
	return LocalRef(n), err
}

// GetStaticField reads a static field of cls.
func (e *Env) GetStaticField(cls LocalRef, name string) (LocalRef, error) {
	n, err := e.call("getStaticField", cls, name)
	return LocalRef(n), err
}

// CallObjectMethod invokes m on obj and returns the result.
func (e *Env) CallObjectMethod(obj Ref, m MethodID, args ...string) (LocalRef, error) {
	n, err := e.callMethod("callObjectMethod", append([]any{obj, m.id}, stringArgs(args)...)...)
	return LocalRef(n), err
}

// CallVoidMethod invokes m on obj, discarding the result.
func (e *Env) CallVoidMethod(obj Ref, m MethodID, args ...string) error {
	_, err := e.callMethod("callVoidMethod", append([]any{obj, m.id}, stringArgs(args)...)...)
	return err
}

// IsInstanceOf reports whether obj is an instance of cls.
func (e *Env) IsInstanceOf(obj Ref, cls LocalRef) (bool, error) {
	n, err := e.call("isInstanceOf", obj, cls)
	return n == 1, err
}

// NewGlobalRef promotes obj to a durable reference.
func (e *Env) NewGlobalRef(obj LocalRef) (GlobalRef, error) {
	n, err := e.call("newGlobalRef", obj)
	return GlobalRef(n), err
}

// DeleteGlobalRef drops a durable reference. It reports whether the
// reference was live.
func (e *Env) DeleteGlobalRef(g GlobalRef) (bool, error) {
	return e.h.deleteGlobalRef(g)
}

// PopLocalFrame invalidates every local reference of the context.
func (e *Env) PopLocalFrame() {
	if err := e.h.eval(fmt.Sprintf("__adhesive.popLocalFrame(%d)", e.id)); err != nil {
		e.h.log.Warn("dropping local frame failed", zap.Int("thread", e.id), zap.Error(err))
	}
}

// ExceptionCheck reports whether an exception is pending.
func (e *Env) ExceptionCheck() (bool, error) {
	return e.h.evalBool(fmt.Sprintf("__adhesive.exceptionCheck(%d)", e.id))
}

func (h *Handle) deleteGlobalRef(g GlobalRef) (bool, error) {
	n, err := h.evalInt(fmt.Sprintf("__adhesive.deleteGlobalRef(%d)", int(g)))
	return n == 1, err
}

// Ref is a local or durable object reference.
type Ref interface {
	refValue() int
}

func (r LocalRef) refValue() int { return int(r) }

func (g GlobalRef) refValue() int { return int(g) }

func (e *Env) call(op string, args ...any) (int, error) {
	return e.invokeOp(op, false, args)
}

// callMethod runs a method call and then drains the microtask queue, so
// promise jobs scheduled by managed code settle before the call returns.
func (e *Env) callMethod(op string, args ...any) (int, error) {
	return e.invokeOp(op, true, args)
}

func (e *Env) invokeOp(op string, drain bool, args []any) (int, error) {
	var b strings.Builder
	b.WriteString("__adhesive.")
	b.WriteString(op)
	b.WriteByte('(')
	b.WriteString(strconv.Itoa(e.id))
	for _, a := range args {
		b.WriteString(", ")
		lit, err := jsLiteral(a)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		b.WriteString(lit)
	}
	b.WriteByte(')')

	eval := e.h.evalInt
	if drain {
		eval = e.h.evalIntAndDrain
	}
	n, err := eval(b.String())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n == -1 {
		return -1, errPending
	}
	return n, nil
}

func stringArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func jsLiteral(v any) (string, error) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), nil
	case Ref:
		return strconv.Itoa(x.refValue()), nil
	case string:
		return jsString(x)
	default:
		return "", fmt.Errorf("unsupported argument %T", v)
	}
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) (string, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
