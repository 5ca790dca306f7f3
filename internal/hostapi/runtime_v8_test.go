//go:build v8

package hostapi

import (
	"testing"

	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/v8engine"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) core.Runtime {
	t.Helper()
	rt, err := v8engine.New(64)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}
