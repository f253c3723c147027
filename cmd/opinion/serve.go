package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/httpapi"
	"github.com/jdgilhuly/go_second_opinion/pkg/tools"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the opinion tools over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing one ask tool per provider
and compare_ai_opinions.

With --http-addr (or http.addr in the config) the same tools are also
served over HTTP, together with /health and Prometheus /metrics. Logs
always go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		rt, err := newRuntime(cfgPath)
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := rt.cfg.HTTP.Addr
		if flagAddr, _ := cmd.Flags().GetString("http-addr"); flagAddr != "" {
			addr = flagAddr
		}
		if addr != "" {
			hs := httpapi.NewServer(&httpapi.Config{
				Addr:      addr,
				Registry:  rt.registry,
				Providers: rt.providers,
				Metrics:   rt.collector.Handler(),
				Logger:    rt.logger,
			})
			go func() {
				if err := hs.Start(); err != nil {
					rt.logger.Error("HTTP server failed", zap.Error(err))
					stop()
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := hs.Shutdown(shutdownCtx); err != nil {
					rt.logger.Error("HTTP shutdown failed", zap.Error(err))
				}
			}()
		}

		var ready []string
		for _, p := range rt.providers {
			if p.Ready() {
				ready = append(ready, p.Name())
			}
		}
		rt.logger.Info("serving MCP over stdio",
			zap.String("version", version),
			zap.Strings("ready_providers", ready),
			zap.Int("tools", len(rt.registry.Specs())))

		server := tools.NewMCPServer(rt.registry, version)
		if err := tools.ServeStdio(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		rt.logger.Info("server stopped")
		return nil
	},
}
