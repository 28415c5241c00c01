// Command geoportal publishes shapefile bundles as map layers and queries remote WMS servers.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geoportal/internal/core/config"
	"github.com/mohammed-shakir/geoportal/internal/logger"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

var (
	cfg    = config.FromEnv()
	appLog *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "geoportal",
	Short:         "Publish shapefile layers and browse WMS services",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		zl := logger.Build(logger.Config{
			Level:     cfg.LogLevel,
			Console:   cfg.LogConsole,
			Service:   "geoportal",
			Component: cmd.Name(),
		}, os.Stderr)
		appLog = logger.NewSlog(&zl)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	pf.BoolVar(&cfg.LogConsole, "log-console", cfg.LogConsole, "human readable log output")
	pf.StringVar(&cfg.Database.Driver, "db-driver", cfg.Database.Driver, "relational store: postgis or sqlite")
	pf.StringVar(&cfg.Database.DSN, "db-dsn", cfg.Database.DSN, "relational store DSN")
	pf.StringVar(&cfg.DocStore.Driver, "docstore", cfg.DocStore.Driver, "document store: redis or mongo")
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		if appLog != nil {
			appLog.Error("command failed", "err", err)
		} else {
			_, _ = os.Stderr.WriteString(err.Error() + "\n")
		}
		return 1
	}
	return 0
}
