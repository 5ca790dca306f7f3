package vm

import (
	"runtime"
	"sync/atomic"

	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/bridge"
	"github.com/cryguy/adhesive/internal/metrics"
	"go.uber.org/zap"
)

// Target is a resolved callable: a method id and a durable reference to the
// instance it is invoked on. A Target is owned by one bound function.
type Target struct {
	Method MethodID
	Object GlobalRef

	h        *Handle
	released atomic.Bool
}

func newTarget(h *Handle, m MethodID, obj GlobalRef) *Target {
	t := &Target{Method: m, Object: obj, h: h}
	metrics.GlobalRefs.Inc()
	runtime.SetFinalizer(t, finalizeTarget)
	return t
}

func finalizeTarget(t *Target) {
	if t.released.Load() {
		return
	}
	t.h.log.Warn("function target dropped without release",
		zap.String("class", t.Method.Class),
		zap.String("method", t.Method.Name))
	// the engine lock may be held by a long call; never block the finalizer goroutine
	go t.release()
}

// Invoke calls the target with in's descriptors and fresh output slots.
// On a managed exception the output slots are released and the exception
// is returned as a ManagedException error; the context stays usable.
func (t *Target) Invoke(env *Env, in *bridge.Envelope) (*bridge.Envelope, error) {
	if t.released.Load() {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindInvalidArgument).
			Class(t.Method.Class).
			Detail("target already released").
			Build()
	}

	out := bridge.NewEnvelope()
	inSchema, inArray := in.Addrs()
	outSchema, outArray := out.Addrs()

	err := env.CallVoidMethod(t.Object, t.Method, inSchema, inArray, outSchema, outArray)
	env.PopLocalFrame()
	if err != nil {
		out.Release()
		return nil, translate(env, err, aerrors.PhaseInvoke, aerrors.KindManagedException, t.Method.Class)
	}
	return out, nil
}

// Release drops the durable reference. Safe to call more than once.
func (t *Target) Release() {
	runtime.SetFinalizer(t, nil)
	t.release()
}

func (t *Target) release() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	if _, err := t.h.deleteGlobalRef(t.Object); err != nil {
		t.h.log.Warn("deleting durable reference failed",
			zap.String("class", t.Method.Class),
			zap.Error(err))
	}
	t.h.runGC()
	metrics.GlobalRefs.Dec()
}
