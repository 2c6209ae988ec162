package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trailblazer_ai/internal/payiproxy"
	"trailblazer_ai/internal/utils"
)

var proxyPort string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start the billing proxy service",
	Long:  "Serves /analyze and /trail-finder for Anthropic calls, attributed through Pay-i when PAYI_API_KEY is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := proxyPort
		if port == "" {
			port = cfg.HTTP.ProxyPort
		}
		srv := &http.Server{
			Addr:         ":" + port,
			Handler:      payiproxy.NewServer(payiproxy.SettingsFrom(cfg), nil).Handler(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.Provider.RequestTimeout + 10*time.Second,
		}
		return runServer(ctx, srv, cfg.HTTP.ShutdownTimeout, utils.NewLogger("proxy"), nil)
	},
}

func init() {
	proxyCmd.Flags().StringVar(&proxyPort, "port", "", "listen port (default from config)")
	rootCmd.AddCommand(proxyCmd)
}
