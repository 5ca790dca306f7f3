//go:build !v8

package vm

import (
	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/quickjs"
)

func newRuntime(memoryLimitMB int) (core.Runtime, error) {
	return quickjs.New(memoryLimitMB)
}
