package writer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appconfig "solbridge/config"
	"solbridge/logger"
	"solbridge/models"
)

func testReport(t *testing.T) *models.Report {
	t.Helper()
	balance, _ := decimal.NewFromString("2.5")
	volume, _ := decimal.NewFromString("2.475")
	amount, _ := decimal.NewFromString("2.61")
	return &models.Report{
		RunID:       "test-run-1234",
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		FinalState:  models.StateSucceeded,
		TargetAsset: "SOL",
		Liquidations: []models.LiquidationOutcome{
			{Asset: "ETH", Balance: balance, Pair: "ETHUSD", Volume: volume, Status: models.LiquidationSold},
			{Asset: "DUST", Balance: balance, Status: models.LiquidationBelowMinimum, Detail: "balance below minimum"},
		},
		WithdrawalAmount: amount,
		WithdrawalRef:    "REF-TEST-1",
	}
}

func TestWriteLocalReport(t *testing.T) {
	dir := t.TempDir()
	cfg := &appconfig.Config{}
	cfg.Storage.ReportDir = dir

	w, err := NewReportWriter(cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewReportWriter returned error: %v", err)
	}

	path, err := w.Write(context.Background(), testReport(t))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if path != filepath.Join(dir, "test-run-1234.json") {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report file: %v", err)
	}
	var decoded models.Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.RunID != "test-run-1234" || decoded.FinalState != models.StateSucceeded {
		t.Errorf("decoded report = %+v", decoded)
	}
	if len(decoded.Liquidations) != 2 {
		t.Errorf("liquidations = %d, want 2", len(decoded.Liquidations))
	}
	if decoded.WithdrawalAmount.String() != "2.61" {
		t.Errorf("withdrawal amount = %s, want lossless 2.61", decoded.WithdrawalAmount)
	}
}

func TestCreateLedgerParquet(t *testing.T) {
	cfg := &appconfig.Config{}
	w, err := NewReportWriter(cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewReportWriter returned error: %v", err)
	}

	data, err := w.createLedgerParquet(testReport(t))
	if err != nil {
		t.Fatalf("createLedgerParquet returned error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet data")
	}
	// PAR1 magic bytes frame every parquet file.
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Error("output is not framed as a parquet file")
	}
}

func TestS3KeyPrefixIsDatePartitioned(t *testing.T) {
	cfg := &appconfig.Config{}
	w, err := NewReportWriter(cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewReportWriter returned error: %v", err)
	}

	prefix := w.s3KeyPrefix(testReport(t))
	if prefix != "runs/date=2026-03-01" {
		t.Errorf("prefix = %q, want runs/date=2026-03-01", prefix)
	}
}
