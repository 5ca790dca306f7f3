//go:build v8

package v8engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeEval(t *testing.T) {
	rt, err := New(64)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "v8", rt.Engine())

	s, err := rt.EvalString(`"a" + "b"`)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	n, err := rt.EvalInt(`40 + 2`)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	require.NoError(t, rt.RegisterFunc("__twice", func(s string) string { return s + s }))
	s, err = rt.EvalString(`__twice("ab")`)
	require.NoError(t, err)
	assert.Equal(t, "abab", s)
}
