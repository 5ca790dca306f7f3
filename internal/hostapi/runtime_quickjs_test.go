//go:build !v8

package hostapi

import (
	"testing"

	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/quickjs"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) core.Runtime {
	t.Helper()
	rt, err := quickjs.New(64)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}
