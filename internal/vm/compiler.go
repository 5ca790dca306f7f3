package vm

import (
	"math/rand/v2"
	"regexp"
	"strings"

	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/hostapi"
	"github.com/cryguy/adhesive/internal/metrics"
	"go.uber.org/zap"
)

// GeneratedPackagePrefix prefixes every package synthesized for submitted
// source.
const GeneratedPackagePrefix = "adhesive.generated"

const (
	compileMethod  = "compile"
	compileArity   = 2
	compilerSingle = "INSTANCE"
	packageLetters = "abcdefghijklmnopqrstuvwxyz"
)

var classDecl = regexp.MustCompile(`class\s+(\w+)`)

// FindClassName returns the identifier of the first class declaration in
// source.
func FindClassName(source string) (string, bool) {
	m := classDecl.FindStringSubmatch(source)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// GeneratePackageName returns a fresh package name: the generated prefix,
// then "p" and six random lowercase letters.
func GeneratePackageName() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = packageLetters[rand.IntN(len(packageLetters))]
	}
	return GeneratedPackagePrefix + ".p" + string(b)
}

// DeclarePackage prefixes source with the package directive the compiler
// checks qualified names against.
func DeclarePackage(pkg, source string) string {
	return `"package ` + pkg + `";` + "\n" + source
}

// CompileAndResolve compiles class source under a freshly generated package
// and binds methodName on the instance the compiler returns. Nothing is
// cached: identical sources compile to distinct classes.
func CompileAndResolve(env *Env, source, methodName string) (*Target, error) {
	simple, ok := FindClassName(source)
	if !ok {
		return nil, aerrors.New(aerrors.PhaseRegister, aerrors.KindSourceParse).
			Detail("can't find class name").
			Build()
	}
	pkg := GeneratePackageName()
	fqn := pkg + "." + simple
	code := DeclarePackage(pkg, source)

	defer env.PopLocalFrame()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CompileLatency)

	env.h.log.Info("compiling function",
		zap.String("class", fqn),
		zap.String("method", methodName))

	compiler, err := env.FindClass(hostapi.CompilerClassPath)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindCompilation, fqn)
	}
	compile, err := env.GetMethodID(compiler, ClassName(hostapi.CompilerClassPath), compileMethod, compileArity)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindCompilation, fqn)
	}
	instance, err := env.GetStaticField(compiler, compilerSingle)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindCompilation, fqn)
	}

	obj, err := env.CallObjectMethod(instance, compile, fqn, code)
	if err != nil {
		return nil, translate(env, err, aerrors.PhaseRegister, aerrors.KindCompilation, fqn)
	}

	// the compiler defined fqn; failures from here on must undefine it
	cls, err := env.GetObjectClass(obj)
	if err != nil {
		return nil, env.h.undefineClass(fqn, translate(env, err, aerrors.PhaseRegister, aerrors.KindCompilation, fqn))
	}
	mid, err := env.GetMethodID(cls, fqn, methodName, ComputeArity)
	if err != nil {
		return nil, env.h.undefineClass(fqn, translate(env, err, aerrors.PhaseRegister, aerrors.KindMethodNotFound, fqn))
	}

	g, err := env.NewGlobalRef(obj)
	if err != nil {
		return nil, env.h.undefineClass(fqn, translate(env, err, aerrors.PhaseRegister, aerrors.KindInstantiation, fqn))
	}

	return newTarget(env.h, mid, g), nil
}

// undefineClass drops a generated class from the managed class table and
// returns cause.
func (h *Handle) undefineClass(fqn string, cause error) error {
	path, err := jsString(ClassPath(fqn))
	if err == nil {
		_, err = h.evalInt("__adhesive.undefineClass(" + path + ")")
	}
	if err != nil {
		h.log.Warn("undefining class failed", zap.String("class", fqn), zap.Error(err))
	}
	return cause
}

// ClassName converts a path form class name (a/b/C) to qualified form.
func ClassName(classPath string) string {
	return strings.ReplaceAll(classPath, "/", ".")
}
