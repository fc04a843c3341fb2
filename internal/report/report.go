// Package report renders batch run reports and pool statistics for operator
// consumption. Console output is for terminals, JSON for programmatic use and
// CSV for spreadsheets.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/recon"
)

// OutputFormat selects how a report is rendered
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Generator renders reports in the configured format
type Generator struct {
	format OutputFormat
}

// NewGenerator creates a report generator for the given format
func NewGenerator(format OutputFormat) (*Generator, error) {
	if format == "" {
		format = FormatConsole
	}
	if !format.IsValid() {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return &Generator{format: format}, nil
}

// WriteNWayReport renders a batch n-way run report
func (g *Generator) WriteNWayReport(report *recon.NWayReport, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch g.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatCSV:
		return g.writeNWayCSV(report, w)
	default:
		return g.writeNWayConsole(report, w)
	}
}

func (g *Generator) writeNWayConsole(report *recon.NWayReport, w io.Writer) error {
	fmt.Fprintf(w, "N-WAY MATCH REPORT\n")
	fmt.Fprintf(w, "Started: %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %v\n", report.Duration)
	if report.Cancelled {
		fmt.Fprintf(w, "Status: CANCELLED (partial results)\n")
	}
	fmt.Fprintf(w, "\n=== SUMMARY ===\n")
	fmt.Fprintf(w, "Pool size:            %d\n", report.PoolSize)
	fmt.Fprintf(w, "Partitions:           %d\n", report.Partitions)
	fmt.Fprintf(w, "Groups created:       %d\n", report.GroupsCreated)
	fmt.Fprintf(w, "Transactions matched: %d\n", report.TransactionsMatched)

	matched := 0
	skipped := 0
	failed := 0
	for _, o := range report.Outcomes {
		switch {
		case o.Matched:
			matched++
		case o.Error != "":
			failed++
		case o.Skipped != "":
			skipped++
		}
	}
	fmt.Fprintf(w, "Partition outcomes:   %d matched, %d skipped, %d failed\n", matched, skipped, failed)

	if failed > 0 {
		fmt.Fprintf(w, "\n=== FAILED PARTITIONS ===\n")
		for _, o := range report.Outcomes {
			if o.Error != "" {
				fmt.Fprintf(w, "  %s (%d candidates): %s\n", o.PartitionKey, o.Candidates, o.Error)
			}
		}
	}
	return nil
}

func (g *Generator) writeNWayCSV(report *recon.NWayReport, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"partition_key", "candidates", "matched", "group_id", "rule_id", "confidence", "skipped", "error"}); err != nil {
		return err
	}
	for _, o := range report.Outcomes {
		record := []string{
			o.PartitionKey,
			strconv.Itoa(o.Candidates),
			strconv.FormatBool(o.Matched),
			o.GroupID,
			o.RuleID,
			strconv.FormatFloat(o.Confidence, 'f', 2, 64),
			o.Skipped,
			o.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatistics renders pool statistics
func (g *Generator) WriteStatistics(stats *recon.Statistics, w io.Writer) error {
	if stats == nil {
		return fmt.Errorf("statistics cannot be nil")
	}

	switch g.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case FormatCSV:
		cw := csv.NewWriter(w)
		defer cw.Flush()
		if err := cw.Write([]string{"metric", "value"}); err != nil {
			return err
		}
		rows := [][]string{
			{"total_transactions", strconv.Itoa(stats.TotalTransactions)},
			{"total_groups", strconv.Itoa(stats.TotalGroups)},
			{"match_rate_pct", strconv.FormatFloat(stats.MatchRate, 'f', 2, 64)},
			{"total_rules", strconv.Itoa(stats.TotalRules)},
			{"active_rules", strconv.Itoa(stats.ActiveRules)},
		}
		for _, row := range rows {
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	default:
		fmt.Fprintf(w, "RECONCILIATION STATISTICS\n\n")
		fmt.Fprintf(w, "Total transactions: %d\n", stats.TotalTransactions)
		txStatuses := make([]string, 0, len(stats.ByStatus))
		for status := range stats.ByStatus {
			txStatuses = append(txStatuses, string(status))
		}
		sort.Strings(txStatuses)
		for _, status := range txStatuses {
			fmt.Fprintf(w, "  %-14s %d\n", status+":", stats.ByStatus[models.ReconStatus(status)])
		}
		fmt.Fprintf(w, "Match rate: %.2f%%\n\n", stats.MatchRate)
		fmt.Fprintf(w, "Match groups: %d\n", stats.TotalGroups)
		groupStatuses := make([]string, 0, len(stats.GroupsByStatus))
		for status := range stats.GroupsByStatus {
			groupStatuses = append(groupStatuses, string(status))
		}
		sort.Strings(groupStatuses)
		for _, status := range groupStatuses {
			fmt.Fprintf(w, "  %-14s %d\n", status+":", stats.GroupsByStatus[models.MatchStatus(status)])
		}
		fmt.Fprintf(w, "Rules: %d total, %d active\n", stats.TotalRules, stats.ActiveRules)
		return nil
	}
}
