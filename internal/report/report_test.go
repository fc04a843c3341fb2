package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/recon"
)

func sampleReport() *recon.NWayReport {
	return &recon.NWayReport{
		StartedAt:           time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Duration:            250 * time.Millisecond,
		PoolSize:            7,
		Partitions:          3,
		GroupsCreated:       1,
		TransactionsMatched: 3,
		Outcomes: []recon.PartitionOutcome{
			{PartitionKey: "USD|100|19797", Candidates: 3, Matched: true, GroupID: "g-1", Confidence: 100},
			{PartitionKey: "USD|7|19802", Candidates: 2, Skipped: "fewer than 3 candidates"},
			{PartitionKey: "USD|50|19805", Candidates: 3, Error: "transaction tx-9 already claimed"},
		},
	}
}

func TestNewGenerator(t *testing.T) {
	if _, err := NewGenerator("yaml"); err == nil {
		t.Error("expected an error for an unknown format")
	}

	g, err := NewGenerator("")
	if err != nil {
		t.Fatal(err)
	}
	if g.format != FormatConsole {
		t.Errorf("empty format defaults to console, got %s", g.format)
	}
}

func TestWriteNWayReportConsole(t *testing.T) {
	g, _ := NewGenerator(FormatConsole)

	var buf bytes.Buffer
	if err := g.WriteNWayReport(sampleReport(), &buf); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"Pool size:            7",
		"Groups created:       1",
		"1 matched, 1 skipped, 1 failed",
		"FAILED PARTITIONS",
		"tx-9 already claimed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteNWayReportCancelled(t *testing.T) {
	g, _ := NewGenerator(FormatConsole)
	report := sampleReport()
	report.Cancelled = true

	var buf bytes.Buffer
	if err := g.WriteNWayReport(report, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "CANCELLED") {
		t.Error("cancelled runs must be flagged in console output")
	}
}

func TestWriteNWayReportJSON(t *testing.T) {
	g, _ := NewGenerator(FormatJSON)

	var buf bytes.Buffer
	if err := g.WriteNWayReport(sampleReport(), &buf); err != nil {
		t.Fatal(err)
	}

	var decoded recon.NWayReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output must round-trip: %v", err)
	}
	if decoded.GroupsCreated != 1 || len(decoded.Outcomes) != 3 {
		t.Errorf("unexpected decoded report: %+v", decoded)
	}
}

func TestWriteNWayReportCSV(t *testing.T) {
	g, _ := NewGenerator(FormatCSV)

	var buf bytes.Buffer
	if err := g.WriteNWayReport(sampleReport(), &buf); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(records))
	}
	if records[0][0] != "partition_key" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][2] != "true" || records[1][3] != "g-1" {
		t.Errorf("unexpected matched row: %v", records[1])
	}
}

func TestWriteNWayReportNil(t *testing.T) {
	g, _ := NewGenerator(FormatConsole)
	if err := g.WriteNWayReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for a nil report")
	}
}

func TestWriteStatisticsConsole(t *testing.T) {
	g, _ := NewGenerator(FormatConsole)
	stats := &recon.Statistics{
		TotalTransactions: 10,
		ByStatus: map[models.ReconStatus]int{
			models.StatusMatched:   6,
			models.StatusUnmatched: 4,
		},
		TotalGroups: 3,
		GroupsByStatus: map[models.MatchStatus]int{
			models.MatchStatusMatched: 3,
		},
		MatchRate:   60,
		TotalRules:  2,
		ActiveRules: 1,
	}

	var buf bytes.Buffer
	if err := g.WriteStatistics(stats, &buf); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"Total transactions: 10",
		"Match rate: 60.00%",
		"Rules: 2 total, 1 active",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("statistics output missing %q:\n%s", want, out)
		}
	}

	// Status breakdown order is deterministic.
	if !strings.Contains(out, "matched:") || strings.Index(out, "matched:") > strings.Index(out, "unmatched:") {
		t.Errorf("statuses must be sorted:\n%s", out)
	}
}

func TestWriteStatisticsCSV(t *testing.T) {
	g, _ := NewGenerator(FormatCSV)
	stats := &recon.Statistics{TotalTransactions: 10, MatchRate: 60}

	var buf bytes.Buffer
	if err := g.WriteStatistics(stats, &buf); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if records[1][0] != "total_transactions" || records[1][1] != "10" {
		t.Errorf("unexpected first metric row: %v", records[1])
	}
}
