// Package adhesive registers scalar functions whose bodies run in an
// embedded JavaScript runtime. A Factory turns CREATE FUNCTION statements
// naming a class on the class path, or carrying class source, into
// BoundFunctions that evaluate Arrow batches without copying buffers.
package adhesive

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	aerrors "github.com/cryguy/adhesive/errors"
	"github.com/cryguy/adhesive/internal/bridge"
	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/logger"
	"github.com/cryguy/adhesive/internal/metrics"
	"github.com/cryguy/adhesive/internal/vm"
	"go.uber.org/zap"
)

// Options configures the managed runtime. Only the first successful
// NewFactory in a process boots the runtime; later options are ignored.
type Options = core.BootOptions

// Language tags accepted in CREATE FUNCTION.
const (
	LanguageJavaScript = "javascript"
	LanguageTypeScript = "typescript"
	LanguageClass      = "class"
)

var languageAliases = map[string]string{
	"":                 LanguageJavaScript,
	"js":               LanguageJavaScript,
	LanguageJavaScript: LanguageJavaScript,
	"ts":               LanguageTypeScript,
	LanguageTypeScript: LanguageTypeScript,
	LanguageClass:      LanguageClass,
}

// Factory creates BoundFunctions against the process runtime.
type Factory struct {
	handle *vm.Handle
	mem    memory.Allocator
	log    *zap.Logger
}

var _ FunctionFactory = (*Factory)(nil)

// NewFactory returns a factory bound to the process runtime, booting it on
// first use.
func NewFactory(opts Options) (*Factory, error) {
	h, err := vm.Initialize(opts)
	if err != nil {
		return nil, err
	}
	return &Factory{
		handle: h,
		mem:    memory.NewGoAllocator(),
		log:    logger.Named("factory"),
	}, nil
}

// Engine names the JavaScript engine backing the runtime.
func (f *Factory) Engine() string {
	return f.handle.Engine()
}

// Create registers the function stmt declares. The statement is validated
// before the runtime is touched.
func (f *Factory) Create(stmt *CreateFunction) (reg *RegisterFunction, err error) {
	kind := "unknown"
	defer func() {
		metrics.Registrations.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	}()

	if stmt == nil {
		return nil, aerrors.New(aerrors.PhaseRegister, aerrors.KindInvalidDefinition).
			Detail("missing statement").
			Build()
	}

	method, err := bridge.MethodForReturnType(stmt.ReturnType)
	if err != nil {
		return nil, aerrors.WithFunction(err, stmt.Name)
	}
	if len(stmt.Args) == 0 {
		// the input batch is a struct of argument columns and needs at least one
		return nil, aerrors.New(aerrors.PhaseRegister, aerrors.KindInvalidDefinition).
			Function(stmt.Name).
			Detail("function must take at least one argument").
			Build()
	}
	for i, a := range stmt.Args {
		if !bridge.SupportedArgumentType(a.Type) {
			return nil, aerrors.New(aerrors.PhaseRegister, aerrors.KindUnsupportedType).
				Function(stmt.Name).
				Detail("argument %d has unsupported type %v", i, a.Type).
				Build()
		}
	}

	def, err := definitionOf(stmt)
	if err != nil {
		return nil, err
	}
	kind = def.definitionKind()

	fn, err := f.bind(stmt, def, method)
	if err != nil {
		f.log.Warn("function registration failed", zap.String("function", stmt.Name), zap.Error(err))
		return nil, aerrors.WithFunction(err, stmt.Name)
	}

	f.log.Info("function registered",
		zap.String("function", fn.name),
		zap.String("class", fn.Class()),
		zap.String("definition", kind))
	return &RegisterFunction{Scalar: fn}, nil
}

// definitionOf picks the definition variant from the language tag and the
// body's quoting.
func definitionOf(stmt *CreateFunction) (FunctionDefinition, error) {
	invalid := func(format string, args ...any) error {
		return aerrors.New(aerrors.PhaseRegister, aerrors.KindInvalidDefinition).
			Function(stmt.Name).
			Detail(format, args...).
			Build()
	}

	tag := strings.ToLower(strings.TrimSpace(stmt.Language))
	lang, ok := languageAliases[tag]
	if !ok {
		return nil, invalid("unsupported language %q", stmt.Language)
	}
	if stmt.Body == nil || strings.TrimSpace(stmt.Body.Value) == "" {
		return nil, invalid("function body is empty")
	}

	switch lang {
	case LanguageClass:
		return FullyQualifiedName{Name: strings.TrimSpace(stmt.Body.Value)}, nil
	default:
		if stmt.Body.Quote != SingleQuoted {
			return nil, invalid("%s source must be single-quoted, got %s", lang, stmt.Body.Quote)
		}
		return SourceCode{Language: lang, Text: stmt.Body.Value}, nil
	}
}

func (f *Factory) bind(stmt *CreateFunction, def FunctionDefinition, method string) (*BoundFunction, error) {
	env, err := f.handle.AttachCurrentThread()
	if err != nil {
		return nil, err
	}
	defer env.Release()

	var target *vm.Target
	switch d := def.(type) {
	case FullyQualifiedName:
		target, err = vm.Resolve(env, d.Name, method)
	case SourceCode:
		src := d.Text
		if d.Language == LanguageTypeScript {
			src, err = vm.Transpile(src)
			if err != nil {
				return nil, aerrors.New(aerrors.PhaseRegister, aerrors.KindCompilation).
					Detail("transpiling TypeScript").
					Cause(err).
					Build()
			}
		}
		target, err = vm.CompileAndResolve(env, src, method)
	default:
		return nil, aerrors.New(aerrors.PhaseRegister, aerrors.KindInvalidDefinition).
			Detail("%s definitions cannot be registered", def.definitionKind()).
			Build()
	}
	if err != nil {
		return nil, err
	}

	return &BoundFunction{
		name:       stmt.Name,
		argTypes:   stmt.ArgTypes(),
		returnType: stmt.ReturnType,
		definition: def,
		handle:     f.handle,
		target:     target,
		mem:        f.mem,
		log:        logger.Named("function").With(zap.String("function", stmt.Name)),
	}, nil
}

// SetLogger installs the logger used by every adhesive component, including
// factories and functions created before the call. The default discards
// everything.
func SetLogger(l *zap.Logger) {
	logger.Set(l)
}
