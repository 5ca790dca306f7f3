// Package hostapi installs the managed-side library into a fresh runtime:
// the per-thread operation table, the class loader hook, the Arrow host
// module, console logging and the base classes.
package hostapi

import (
	"fmt"

	"github.com/cryguy/adhesive/internal/core"
)

// ClassSource resolves class files by path form (a/b/C). It returns the
// JavaScript source and false when no class path entry has the class.
type ClassSource interface {
	LoadClass(path string) (source string, ok bool, err error)
}

// SetupFunc configures one aspect of a runtime.
type SetupFunc func(rt core.Runtime) error

// SetupClassLoader registers __adhesive_loadClass, which the prelude calls
// for classes it has not defined yet.
func SetupClassLoader(src ClassSource) SetupFunc {
	return func(rt core.Runtime) error {
		return rt.RegisterFunc("__adhesive_loadClass", func(path string) (string, error) {
			source, ok, err := src.LoadClass(path)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", nil
			}
			return source, nil
		})
	}
}

// SetupFuncs returns the setup steps, in order, for a runtime whose classes
// come from src.
func SetupFuncs(src ClassSource) []SetupFunc {
	return []SetupFunc{
		SetupConsole,
		SetupArrow,
		SetupClassLoader(src),
		SetupPrelude,
		SetupBaseClasses,
	}
}

// Setup runs every step of SetupFuncs against rt.
func Setup(rt core.Runtime, src ClassSource) error {
	for i, setup := range SetupFuncs(src) {
		if err := setup(rt); err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
	}
	return nil
}
