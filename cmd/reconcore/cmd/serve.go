package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"recon-core/cmd/reconcore/config"
	"recon-core/internal/api"
	"recon-core/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveAddr     string
	serveRuleFile string
	serveOrigins  []string
	serveStrict   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve starts the HTTP API over the configured store. The server
shuts down gracefully on SIGINT or SIGTERM, letting in-flight requests
finish.

Examples:
  reconcore serve --addr :8080 --db recon.db
  reconcore serve --rules rules.yaml --allow-origin http://localhost:3000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveRuleFile, "rules", "", "rule definitions to load at startup (YAML)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allow-origin", nil, "allowed CORS origins")
	serveCmd.Flags().BoolVar(&serveStrict, "strict", false, "use strict matching defaults")
}

func runServe(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()
	log := logger.GetGlobalLogger().WithComponent("serve")

	st, err := config.CreateStore(viper.GetString("db"))
	if err != nil {
		return handler.Exit(err)
	}
	defer st.Close()

	service, err := config.CreateService(st, config.CreateMatcherConfig(0, 0, serveStrict))
	if err != nil {
		return handler.Exit(err)
	}

	if serveRuleFile != "" {
		count, err := service.LoadRulesFromFile(serveRuleFile)
		if err != nil {
			return handler.Exit(err)
		}
		log.WithField("count", count).Info("rules loaded")
	}

	serverConfig := api.DefaultConfig()
	serverConfig.Addr = serveAddr
	if len(serveOrigins) > 0 {
		serverConfig.AllowOrigins = serveOrigins
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(service, serverConfig, logger.GetGlobalLogger())
	if err := server.Run(ctx); err != nil {
		return handler.Exit(err)
	}
	return nil
}
