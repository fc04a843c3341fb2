package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recon-core/cmd/reconcore/config"
	"recon-core/internal/models"
	"recon-core/internal/recon"
	"recon-core/internal/report"
	"recon-core/internal/rules"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	nwayKeyFields       []string
	nwaySources         []string
	nwayToleranceAmount float64
	nwayTolerancePct    float64
	nwayToleranceDays   int
	nwayMinConfidence   float64
	nwayWorkers         int
	nwayTimeout         time.Duration
	nwayRuleFile        string
	nwayOutputFormat    string
)

var nwayCmd = &cobra.Command{
	Use:   "nway",
	Short: "Run a batch n-way match over the unmatched pool",
	Long: `Nway partitions the unmatched transaction pool by currency, amount
bucket and date window, then evaluates each partition as an n-way candidate
group. Matched groups are persisted in matched status for review. A timeout
cancels the run and reports the partitions already processed.

Examples:
  reconcore nway --db recon.db --key-fields amount --tolerance-amount 1.00 --min-confidence 85
  reconcore nway --key-fields amount,currency --sources bank_feed,erp --output-format json`,
	RunE: runNWay,
}

func init() {
	rootCmd.AddCommand(nwayCmd)

	nwayCmd.Flags().StringSliceVar(&nwayKeyFields, "key-fields", []string{"amount"}, "fields every group member must agree on")
	nwayCmd.Flags().StringSliceVar(&nwaySources, "sources", nil, "restrict the pool to these sources")
	nwayCmd.Flags().Float64Var(&nwayToleranceAmount, "tolerance-amount", 1.0, "absolute amount tolerance")
	nwayCmd.Flags().Float64Var(&nwayTolerancePct, "tolerance-percent", 0, "relative amount tolerance in percent")
	nwayCmd.Flags().IntVar(&nwayToleranceDays, "tolerance-days", 1, "date agreement window in days")
	nwayCmd.Flags().Float64Var(&nwayMinConfidence, "min-confidence", 85, "minimum group confidence (0-100)")
	nwayCmd.Flags().IntVar(&nwayWorkers, "workers", 0, "partition parallelism (0 for default)")
	nwayCmd.Flags().DurationVar(&nwayTimeout, "timeout", 0, "bound the run (0 for no timeout)")
	nwayCmd.Flags().StringVar(&nwayRuleFile, "rules", "", "rule definitions to load before the run (YAML)")
	nwayCmd.Flags().StringVar(&nwayOutputFormat, "output-format", "console", "report format: console, json or csv")
}

func runNWay(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	generator, err := report.NewGenerator(report.OutputFormat(nwayOutputFormat))
	if err != nil {
		return handler.Exit(err)
	}

	st, err := config.CreateStore(viper.GetString("db"))
	if err != nil {
		return handler.Exit(err)
	}
	defer st.Close()

	service, err := config.CreateService(st, config.CreateMatcherConfig(0, 0, false))
	if err != nil {
		return handler.Exit(err)
	}

	if nwayRuleFile != "" {
		if _, err := service.LoadRulesFromFile(nwayRuleFile); err != nil {
			return handler.Exit(err)
		}
	}

	sources := make([]models.Source, 0, len(nwaySources))
	for _, s := range nwaySources {
		sources = append(sources, models.Source(s))
	}

	runConfig := recon.NWayConfig{
		Sources:   sources,
		KeyFields: nwayKeyFields,
		Tolerance: rules.Tolerance{
			Amount:   decimal.NewFromFloat(nwayToleranceAmount),
			Percent:  nwayTolerancePct,
			DateDays: nwayToleranceDays,
		},
		MinConfidence: nwayMinConfidence,
		Workers:       nwayWorkers,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if nwayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nwayTimeout)
		defer cancel()
	}

	result, err := service.RunNWayMatch(ctx, runConfig)
	if err != nil {
		return handler.Exit(err)
	}

	if err := generator.WriteNWayReport(result, os.Stdout); err != nil {
		return handler.Exit(err)
	}
	return nil
}
