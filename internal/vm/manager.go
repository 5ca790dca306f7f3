// Package vm manages the process-wide managed runtime and the JNI-shaped
// operations the bridge performs against it: thread attachment, class
// lookup, method ids, object construction, durable references and pending
// exception handling.
package vm

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/hostapi"
	"github.com/cryguy/adhesive/internal/logger"
	"github.com/cryguy/adhesive/internal/metrics"
	"go.uber.org/zap"
)

// Handle is the process-wide managed runtime. It is created once and never
// torn down.
type Handle struct {
	mu     sync.Mutex // serializes every engine call
	rt     core.Runtime
	closed bool

	classpath *Classpath
	opts      core.BootOptions
	log       *zap.Logger

	threadsMu sync.Mutex
	idle      []*Env
	nextID    int
	attached  int
}

// slot holds the lazily booted runtime. A failed boot leaves it empty.
type slot struct {
	mu sync.Mutex
	h  *Handle
}

var global slot

// Initialize returns the process runtime, booting it with opts on the first
// successful call. Later calls return the same handle; their options are
// ignored.
func Initialize(opts core.BootOptions) (*Handle, error) {
	return global.get(opts)
}

func (s *slot) get(opts core.BootOptions) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.h != nil {
		if !sameOptions(s.h.opts, opts) {
			s.h.log.Debug("runtime already started, ignoring boot options",
				zap.Strings("classpath", opts.Classpath),
				zap.Int("memory_limit_mb", opts.MemoryLimitMB))
		}
		return s.h, nil
	}

	h, err := boot(opts)
	if err != nil {
		return nil, err
	}
	s.h = h
	return h, nil
}

func sameOptions(a, b core.BootOptions) bool {
	return a.MemoryLimitMB == b.MemoryLimitMB && slices.Equal(a.Classpath, b.Classpath)
}

// boot opens the class path, creates the engine and installs the managed
// library.
func boot(opts core.BootOptions) (*Handle, error) {
	log := logger.Named("vm")

	cp, err := OpenClasspath(opts.Classpath)
	if err != nil {
		return nil, aerrors.New(aerrors.PhaseBoot, aerrors.KindRuntimeStart).
			Detail("opening class path").
			Cause(err).
			Build()
	}

	rt, err := newRuntime(opts.MemoryLimitMB)
	if err != nil {
		cp.Close()
		return nil, aerrors.New(aerrors.PhaseBoot, aerrors.KindRuntimeStart).
			Detail("creating engine").
			Cause(err).
			Build()
	}

	if err := hostapi.Setup(rt, cp); err != nil {
		rt.Close()
		cp.Close()
		return nil, aerrors.New(aerrors.PhaseBoot, aerrors.KindRuntimeStart).
			Detail("installing managed library").
			Cause(err).
			Build()
	}

	log.Info("managed runtime started",
		zap.String("engine", rt.Engine()),
		zap.Strings("classpath", opts.Classpath),
		zap.Int("memory_limit_mb", opts.MemoryLimitMB))

	return &Handle{
		rt:        rt,
		classpath: cp,
		opts:      opts,
		log:       log,
	}, nil
}

// Engine names the backing engine.
func (h *Handle) Engine() string {
	return h.rt.Engine()
}

// Options returns the options the runtime was booted with.
func (h *Handle) Options() core.BootOptions {
	return h.opts
}

// AttachCurrentThread returns a thread context for the calling goroutine.
// Contexts are attached as daemons: registered once, never detached, and
// parked for reuse by Release.
func (h *Handle) AttachCurrentThread() (*Env, error) {
	h.threadsMu.Lock()
	if n := len(h.idle); n > 0 {
		e := h.idle[n-1]
		h.idle = h.idle[:n-1]
		e.parked = false
		h.threadsMu.Unlock()
		return e, nil
	}
	h.nextID++
	id := h.nextID
	h.threadsMu.Unlock()

	if err := h.eval(fmt.Sprintf("__adhesive.attach(%d)", id)); err != nil {
		return nil, aerrors.New(aerrors.PhaseInvoke, aerrors.KindRuntimeStart).
			Detail("attaching thread %d", id).
			Cause(err).
			Build()
	}

	h.threadsMu.Lock()
	h.attached++
	h.threadsMu.Unlock()
	metrics.AttachedThreads.Inc()
	h.log.Debug("thread attached", zap.Int("thread", id))

	return &Env{h: h, id: id}, nil
}

// AttachedThreads returns the number of thread contexts registered with the
// runtime, idle ones included.
func (h *Handle) AttachedThreads() int {
	h.threadsMu.Lock()
	defer h.threadsMu.Unlock()
	return h.attached
}

// GlobalRefs returns the number of live durable references.
func (h *Handle) GlobalRefs() (int, error) {
	return h.evalInt("__adhesive.globalRefCount()")
}

func (h *Handle) park(e *Env) {
	h.threadsMu.Lock()
	defer h.threadsMu.Unlock()
	h.idle = append(h.idle, e)
}

var errClosed = errors.New("managed runtime is closed")

func (h *Handle) eval(js string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errClosed
	}
	return h.rt.Eval(js)
}

func (h *Handle) evalInt(js string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, errClosed
	}
	return h.rt.EvalInt(js)
}

// evalIntAndDrain is evalInt followed by a microtask drain under the same
// lock.
func (h *Handle) evalIntAndDrain(js string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, errClosed
	}
	n, err := h.rt.EvalInt(js)
	h.rt.RunMicrotasks()
	return n, err
}

func (h *Handle) evalBool(js string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, errClosed
	}
	return h.rt.EvalBool(js)
}

func (h *Handle) evalString(js string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", errClosed
	}
	return h.rt.EvalString(js)
}

func (h *Handle) runGC() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.rt.RunGC()
	}
}

// close disposes a handle that never reached the global slot.
func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.rt.Close()
	h.classpath.Close()
}
