package cmd

import (
	"os"

	"recon-core/cmd/reconcore/config"
	"recon-core/internal/report"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsOutputFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reconciliation pool statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsOutputFormat, "output-format", "console", "report format: console, json or csv")
}

func runStats(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	generator, err := report.NewGenerator(report.OutputFormat(statsOutputFormat))
	if err != nil {
		return handler.Exit(err)
	}

	st, err := config.CreateStore(viper.GetString("db"))
	if err != nil {
		return handler.Exit(err)
	}
	defer st.Close()

	service, err := config.CreateService(st, nil)
	if err != nil {
		return handler.Exit(err)
	}

	stats, err := service.GetStatistics()
	if err != nil {
		return handler.Exit(err)
	}

	if err := generator.WriteStatistics(stats, os.Stdout); err != nil {
		return handler.Exit(err)
	}
	return nil
}
