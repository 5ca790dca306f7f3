package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeError, Outcome(errors.New("x")))
}

func TestCountersIncrement(t *testing.T) {
	c := Registrations.WithLabelValues("test", OutcomeSuccess)
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestTimerObserves(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	d := timer.ObserveDuration(InvocationLatency.WithLabelValues("timer_test"))
	assert.GreaterOrEqual(t, d, time.Millisecond)

	n, err := testutil.GatherAndCount(Registry, "adhesive_invocation_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
