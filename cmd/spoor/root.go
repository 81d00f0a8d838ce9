package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spoor/internal/loader"
	"spoor/internal/logger"
	"spoor/internal/output"
)

// Config keys, also readable as SPOOR_<KEY> or from .spoor.yaml.
const (
	keyFormat      = "format"
	keyLogLevel    = "log_level"
	keyConcurrency = "concurrency"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "spoor",
		Short: "spoor - merge and convert function-level runtime traces",
		Long: `spoor reads instrumentation output and writes a single merged trace.

Inputs are classified by extension:
  .spoor               structured trace
  .spoor_trace         binary trace written by the runtime
  .spoor_function_map  function metadata for one module

Examples:
  spoor cat *.spoor_trace app.spoor_function_map > merged.spoor
  spoor cat --format chrome *.spoor_trace app.spoor_function_map > trace.json
  spoor info thread-1.spoor_trace
  spoor check *.spoor_trace`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(); err != nil {
				return err
			}
			cfg := logger.DefaultConfig()
			cfg.Level = a.v.GetString(keyLogLevel)
			cfg.Debug = cfg.Debug || a.verbose
			return logger.Init(cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.spoor.yaml)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.Int("concurrency", loader.DefaultConcurrency, "maximum files read in parallel")
	_ = a.v.BindPFlag(keyLogLevel, pf.Lookup("log-level"))
	_ = a.v.BindPFlag(keyConcurrency, pf.Lookup("concurrency"))

	root.AddCommand(newCatCmd(a), newInfoCmd(a), newCheckCmd(a))
	return root
}

// initConfig loads flags > env > config file, in that order of precedence.
func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".spoor")
	}

	a.v.SetEnvPrefix("SPOOR")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func (a *app) load(ctx context.Context, paths []string) (*loader.Inputs, error) {
	log := logger.WithComponent("loader")
	log.Debug().Int("files", len(paths)).Msg("loading inputs")
	in, err := loader.Load(ctx, paths, loader.Options{Concurrency: a.v.GetInt(keyConcurrency)})
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("traces", len(in.Traces)).
		Int("binary_traces", len(in.BinaryTraces)).
		Int("function_maps", len(in.FunctionMaps)).
		Msg("inputs loaded")
	return in, nil
}

func (a *app) format() (output.Format, error) {
	return output.ParseFormat(a.v.GetString(keyFormat))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
