package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geoportal/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		appLog.Info("starting geoportal",
			"addr", cfg.Addr,
			"version", Version,
			"db", cfg.Database.Driver,
			"docstore", cfg.DocStore.Driver,
			"events", cfg.Events.Enabled)

		if err := server.Run(ctx, cfg.Addr, appLog, a.handler()); err != nil {
			return err
		}
		appLog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	rootCmd.AddCommand(serveCmd)
}
