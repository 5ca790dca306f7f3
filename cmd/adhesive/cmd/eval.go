package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cryguy/adhesive"
	"github.com/cryguy/adhesive/internal/config"
	"github.com/cryguy/adhesive/internal/logger"
	"github.com/cryguy/adhesive/internal/metrics"
	"github.com/cryguy/adhesive/statement"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type evalOptions struct {
	catalog    string
	columns    []string
	statements []string
	call       string
}

var evalOpts evalOptions

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Register functions and evaluate a call over columns",
	Long: `Register every --statement, then evaluate --call over the named --column values.

Example:
  adhesive eval --classpath testdata/classes \
    --column a=1,2,3,4 --column b=10,20,30,40 \
    --statement 'CREATE FUNCTION f2(a BIGINT, b BIGINT) RETURNS BIGINT LANGUAGE CLASS AS "com.example.BasicExample"' \
    --call 'f2(a, b)'

Column values are parsed as the declared argument types; "null" is a null entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runEval(cmd.OutOrStdout(), cfg, evalOpts)
	},
}

func init() {
	evalCmd.Flags().StringArrayVar(&evalOpts.columns, "column", nil, "column as name=v1,v2,... (repeatable)")
	evalCmd.Flags().StringArrayVar(&evalOpts.statements, "statement", nil, "CREATE FUNCTION statement (repeatable)")
	evalCmd.Flags().StringVar(&evalOpts.call, "call", "", "call expression, e.g. f(a, b)")
	evalCmd.Flags().StringVar(&evalOpts.catalog, "catalog", "", "register every function stored in this catalog first")
	_ = evalCmd.MarkFlagRequired("call")
	rootCmd.AddCommand(evalCmd)
}

func runEval(out io.Writer, cfg config.Config, opts evalOptions) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	adhesive.SetLogger(log)

	if cfg.Metrics.Listen != "" {
		serveMetrics(cfg.Metrics.Listen, log)
	}

	columns, numRows, err := parseColumns(opts.columns)
	if err != nil {
		return err
	}

	call, err := statement.ParseCall(opts.call)
	if err != nil {
		return fmt.Errorf("parsing call: %w", err)
	}

	factory, err := adhesive.NewFactory(cfg.Runtime)
	if err != nil {
		return err
	}
	log.Debug("runtime ready", zap.String("engine", factory.Engine()))

	functions := map[string]adhesive.ScalarUDF{}
	defer func() {
		for _, fn := range functions {
			if c, ok := fn.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()
	if opts.catalog != "" {
		stored, err := catalogStatements(opts.catalog)
		if err != nil {
			return err
		}
		for _, sql := range stored {
			if _, err := register(factory, functions, sql, true); err != nil {
				return err
			}
		}
	}
	for _, sql := range opts.statements {
		if _, err := register(factory, functions, sql, false); err != nil {
			return err
		}
	}

	fn, ok := functions[call.Function]
	if !ok {
		return fmt.Errorf("unknown function %s", call.Function)
	}
	argTypes := fn.ArgTypes()
	if len(argTypes) != len(call.Args) {
		return fmt.Errorf("%s takes %d arguments, got %d", call.Function, len(argTypes), len(call.Args))
	}

	mem := memory.NewGoAllocator()
	args := make([]adhesive.ColumnarValue, len(call.Args))
	for i, name := range call.Args {
		raw, ok := columns[name]
		if !ok {
			return fmt.Errorf("unknown column %s", name)
		}
		arr, err := buildColumn(mem, argTypes[i], raw)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		defer arr.Release()
		args[i] = adhesive.ArrayValue(arr)
	}

	result, err := fn.Invoke(args, numRows)
	if err != nil {
		return err
	}
	defer result.Release()

	for i := 0; i < result.Array.Len(); i++ {
		if _, err := fmt.Fprintln(out, result.Array.ValueStr(i)); err != nil {
			return err
		}
	}
	return nil
}

// register parses sql and registers it in functions. A statement may only
// reuse a name when it says OR REPLACE or force is set.
func register(factory *adhesive.Factory, functions map[string]adhesive.ScalarUDF, sql string, force bool) (*adhesive.BoundFunction, error) {
	stmt, err := statement.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing statement: %w", err)
	}
	if _, exists := functions[stmt.Name]; exists && !stmt.OrReplace && !force {
		return nil, fmt.Errorf("function %s already exists", stmt.Name)
	}
	reg, err := factory.Create(stmt)
	if err != nil {
		return nil, err
	}
	if prev, ok := functions[stmt.Name].(io.Closer); ok {
		_ = prev.Close()
	}
	functions[stmt.Name] = reg.Scalar
	fn, _ := reg.Scalar.(*adhesive.BoundFunction)
	return fn, nil
}

// parseColumns splits name=v1,v2 flags. Every column must have the same
// number of values.
func parseColumns(flags []string) (map[string][]string, int, error) {
	columns := make(map[string][]string, len(flags))
	numRows := -1
	for _, f := range flags {
		name, values, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, 0, fmt.Errorf("column %q: expected name=v1,v2,...", f)
		}
		var cells []string
		if strings.TrimSpace(values) != "" {
			cells = strings.Split(values, ",")
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
		}
		if numRows >= 0 && len(cells) != numRows {
			return nil, 0, fmt.Errorf("column %s has %d values, expected %d", name, len(cells), numRows)
		}
		numRows = len(cells)
		columns[name] = cells
	}
	if numRows < 0 {
		numRows = 0
	}
	return columns, numRows, nil
}

func buildColumn(mem memory.Allocator, dt arrow.DataType, values []string) (arrow.Array, error) {
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	for _, v := range values {
		if v == "null" {
			b.AppendNull()
			continue
		}
		if err := b.AppendValueFromString(v); err != nil {
			return nil, fmt.Errorf("value %q: %w", v, err)
		}
	}
	return b.NewArray(), nil
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
}
