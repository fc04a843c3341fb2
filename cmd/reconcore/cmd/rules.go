package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"recon-core/cmd/reconcore/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rulesLoadFile string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage matching rules",
}

var rulesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load rule definitions from a YAML file into the store",
	RunE:  runRulesLoad,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules",
	RunE:  runRulesList,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLoadCmd)
	rulesCmd.AddCommand(rulesListCmd)

	rulesLoadCmd.Flags().StringVar(&rulesLoadFile, "file", "", "rule definitions file (YAML)")
	rulesLoadCmd.MarkFlagRequired("file")
}

func runRulesLoad(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	st, err := config.CreateStore(viper.GetString("db"))
	if err != nil {
		return handler.Exit(err)
	}
	defer st.Close()

	service, err := config.CreateService(st, nil)
	if err != nil {
		return handler.Exit(err)
	}

	count, err := service.LoadRulesFromFile(rulesLoadFile)
	if err != nil {
		return handler.Exit(err)
	}

	fmt.Printf("Loaded %d rules from %s\n", count, rulesLoadFile)
	return nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	st, err := config.CreateStore(viper.GetString("db"))
	if err != nil {
		return handler.Exit(err)
	}
	defer st.Close()

	service, err := config.CreateService(st, nil)
	if err != nil {
		return handler.Exit(err)
	}

	ruleList, err := service.ListRules()
	if err != nil {
		return handler.Exit(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTRATEGY\tPRIORITY\tSTATUS\tENABLED\tAPPLIED\tMATCHED")
	for _, r := range ruleList {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\t%d\t%d\n",
			r.ID, r.Name, r.Config.Strategy, r.Priority, r.Status, r.Enabled,
			r.TimesApplied, r.SuccessfulMatches)
	}
	return w.Flush()
}
