package cmd

import (
	"fmt"
	"io"

	"github.com/cryguy/adhesive"
	"github.com/cryguy/adhesive/internal/catalog"
	"github.com/cryguy/adhesive/internal/config"
	"github.com/cryguy/adhesive/internal/logger"
	"github.com/cryguy/adhesive/statement"
	"github.com/spf13/cobra"
)

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage stored function definitions",
	Long: `Store CREATE FUNCTION statements in a SQLite catalog so later runs can
register them with "adhesive eval --catalog PATH". Statements are validated by
registering them against the class path before they are stored.`,
}

var catalogAddCmd = &cobra.Command{
	Use:   "add STATEMENT",
	Short: "Validate and store a CREATE FUNCTION statement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return catalogAdd(cmd.OutOrStdout(), cfg, catalogPath, args[0])
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored functions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return catalogList(cmd.OutOrStdout(), catalogPath)
	},
}

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a stored function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Open(catalogPath)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Delete(args[0])
	},
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "adhesive.sqlite3", "catalog database file")
	catalogCmd.AddCommand(catalogAddCmd, catalogListCmd, catalogRemoveCmd)
	rootCmd.AddCommand(catalogCmd)
}

func catalogAdd(out io.Writer, cfg config.Config, path, sql string) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	adhesive.SetLogger(log)

	stmt, err := statement.Parse(sql)
	if err != nil {
		return fmt.Errorf("parsing statement: %w", err)
	}

	factory, err := adhesive.NewFactory(cfg.Runtime)
	if err != nil {
		return err
	}
	functions := map[string]adhesive.ScalarUDF{}
	fn, err := register(factory, functions, sql, false)
	if err != nil {
		return err
	}
	defer fn.Close()

	c, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Put(stmt.Name, sql, fn.Definition(), stmt.OrReplace); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "stored %s\n", stmt.Name)
	return err
}

func catalogList(out io.Writer, path string) error {
	c, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		def, err := adhesive.MarshalDefinition(e.Definition)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", e.Name, def); err != nil {
			return err
		}
	}
	return nil
}

func catalogStatements(path string) ([]string, error) {
	c, err := catalog.Open(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	entries, err := c.List()
	if err != nil {
		return nil, err
	}
	stmts := make([]string, len(entries))
	for i, e := range entries {
		stmts[i] = e.Statement
	}
	return stmts, nil
}
