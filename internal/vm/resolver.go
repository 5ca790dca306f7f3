package vm

import (
	"strings"

	aerrors "github.com/cryguy/adhesive/errors"
	"go.uber.org/zap"
)

// ComputeArity is the arity of every compute entry point: input schema,
// input array, output schema and output array addresses.
const ComputeArity = 4

// ClassPath converts a qualified class name (a.b.C) to path form (a/b/C).
func ClassPath(className string) string {
	return strings.ReplaceAll(className, ".", "/")
}

// Resolve binds methodName on a fresh instance of the named class. Every
// call constructs a new instance with the class's zero-argument
// constructor.
func Resolve(env *Env, className, methodName string) (*Target, error) {
	defer env.PopLocalFrame()

	env.h.log.Info("resolving function",
		zap.String("class", className),
		zap.String("method", methodName))

	cls, err := env.FindClass(ClassPath(className))
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindClassNotFound, className)
	}

	mid, err := env.GetMethodID(cls, className, methodName, ComputeArity)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindMethodNotFound, className)
	}

	obj, err := env.NewObject(cls)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindInstantiation, className)
	}

	g, err := env.NewGlobalRef(obj)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindInstantiation, className)
	}

	return newTarget(env.h, mid, g), nil
}
