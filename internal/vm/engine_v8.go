//go:build v8

package vm

import (
	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/v8engine"
)

func newRuntime(memoryLimitMB int) (core.Runtime, error) {
	return v8engine.New(memoryLimitMB)
}
