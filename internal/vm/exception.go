package vm

import (
	"errors"
	"fmt"

	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/metrics"
	"github.com/goccy/go-json"
)

// ExceptionReport is a managed exception captured at the boundary.
type ExceptionReport struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// Error implements the error interface.
func (r *ExceptionReport) Error() string {
	if r.Message == "" {
		return r.Name
	}
	return r.Name + ": " + r.Message
}

// CheckAndClear collects the context's pending exception, if any, and
// clears it so the context is usable again. It returns nil when nothing is
// pending.
func CheckAndClear(env *Env) (*ExceptionReport, error) {
	s, err := env.h.evalString(fmt.Sprintf("__adhesive.takeException(%d)", env.id))
	if err != nil {
		return nil, fmt.Errorf("reading pending exception: %w", err)
	}
	if s == "" {
		return nil, nil
	}
	var r ExceptionReport
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decoding pending exception: %w", err)
	}
	metrics.ManagedExceptions.WithLabelValues(r.Name).Inc()
	return &r, nil
}

// translate turns an operation failure into an adhesive error of kind. A
// pending exception is collected and cleared first and becomes the cause.
func translate(env *Env, err error, phase aerrors.Phase, kind aerrors.Kind, class string) error {
	b := aerrors.New(phase, kind).Class(class)
	if !errors.Is(err, errPending) {
		return b.Cause(err).Build()
	}
	report, cerr := CheckAndClear(env)
	if cerr != nil {
		return b.Cause(cerr).Build()
	}
	if report == nil {
		return b.Detail("operation failed without a pending exception").Build()
	}
	return b.Detail("%s", report.Error()).Cause(report).Build()
}
