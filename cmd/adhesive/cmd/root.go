package cmd

import (
	"fmt"

	"github.com/cryguy/adhesive/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "adhesive",
	Short: "Run scalar functions written in JavaScript over Arrow columns",
	Long: `adhesive registers scalar functions from CREATE FUNCTION statements and
evaluates them inside an embedded JavaScript runtime.

Functions either name a class on the class path:

  CREATE FUNCTION f2(a BIGINT, b BIGINT) RETURNS BIGINT
    LANGUAGE CLASS AS "com.example.BasicExample"

or carry the class source:

  CREATE FUNCTION f1(a BIGINT, b BIGINT) RETURNS BIGINT
    AS 'class F extends Adhesive { compute(r) { return r.getBigInt(0) * r.getBigInt(1) } }'

Configuration:
  Settings come from a YAML file (--config), flags, or environment variables:
    ADHESIVE_CLASSPATH        comma-separated class path entries
    ADHESIVE_MEMORY_LIMIT_MB  runtime heap limit
    ADHESIVE_LOG_LEVEL        debug, info, warn or error
    ADHESIVE_METRICS_LISTEN   host:port serving /metrics`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	viper.SetEnvPrefix("ADHESIVE")
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")

	rootCmd.PersistentFlags().StringSlice("classpath", nil, "class path entries (directories or .zip archives)")
	_ = viper.BindPFlag("classpath", rootCmd.PersistentFlags().Lookup("classpath"))

	rootCmd.PersistentFlags().Int("memory-limit-mb", 0, "runtime heap limit in megabytes")
	_ = viper.BindPFlag("memory_limit_mb", rootCmd.PersistentFlags().Lookup("memory-limit-mb"))

	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("metrics-listen", "", "serve Prometheus metrics on host:port")
	_ = viper.BindPFlag("metrics_listen", rootCmd.PersistentFlags().Lookup("metrics-listen"))
}

// loadConfig reads the config file, if any, and applies flag and
// environment overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return cfg, fmt.Errorf("loading %s: %w", cfgFile, err)
		}
	}

	if cp := viper.GetStringSlice("classpath"); len(cp) > 0 {
		cfg.Runtime.Classpath = cp
	}
	if n := viper.GetInt("memory_limit_mb"); n > 0 {
		cfg.Runtime.MemoryLimitMB = n
	}
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if addr := viper.GetString("metrics_listen"); addr != "" {
		cfg.Metrics.Listen = addr
	}
	return cfg, cfg.Validate()
}
