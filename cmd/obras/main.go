package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"obras/internal/config"
)

const version = "1.0.0"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v       *viper.Viper
	cfg     config.Config
	logger  *slog.Logger
	cfgFile string
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:          "obras",
		Short:        "Construction project stage tracker",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(a.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(cfg, cmd.OutOrStdout())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./obras.yaml when present)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("db", "", "path to sqlite database file")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	a.bindFlags(root, map[string]string{
		config.KeyDBPath:    "db",
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
	})

	root.AddCommand(newServeCmd(a), newMigrateCmd(a))
	return root
}

// bindFlags maps config keys to flags of cmd. A flag only overrides the
// environment and config file when it is set explicitly.
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if err := a.v.BindPFlag(key, flag); err != nil {
			panic(err)
		}
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
