package account

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solbridge/config"
	"solbridge/kraken"
	"solbridge/logger"
)

func newTestReader(t *testing.T, body string) (*Reader, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	client, err := kraken.NewClient(config.KrakenConfig{
		APIBase: server.URL,
		Timeout: 2 * time.Second,
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 1000,
			BurstSize:         1000,
		},
	}, config.Credentials{
		APIKey:        "test-key",
		SigningSecret: "dGVzdC1zZWNyZXQ=",
	}, logger.GetLogger())
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return NewReader(client, logger.GetLogger()), server
}

func TestSnapshotFiltersNonPositive(t *testing.T) {
	reader, server := newTestReader(t, `{"error":[],"result":{
		"SOL":"1.5000000000",
		"SOL.F":"0.2500000000",
		"USDT":"0.0000000000",
		"DOGE":"-0.0000000100",
		"ETH":"0.0000000001"
	}}`)
	defer server.Close()

	snapshot, err := reader.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	wantAssets := []string{"ETH", "SOL", "SOL.F"}
	gotAssets := snapshot.Assets()
	if len(gotAssets) != len(wantAssets) {
		t.Fatalf("assets = %v, want %v", gotAssets, wantAssets)
	}
	for i, a := range wantAssets {
		if gotAssets[i] != a {
			t.Errorf("assets[%d] = %s, want %s", i, gotAssets[i], a)
		}
	}
	if snapshot.Get("SOL").String() != "1.5" {
		t.Errorf("SOL = %s, want 1.5", snapshot.Get("SOL"))
	}
	if !snapshot.Get("USDT").IsZero() {
		t.Errorf("zero-balance asset should be absent, got %s", snapshot.Get("USDT"))
	}
}

func TestSnapshotTargetTotalIncludesVariants(t *testing.T) {
	reader, server := newTestReader(t, `{"error":[],"result":{
		"SOL":"1.5",
		"SOL.F":"0.25",
		"ETH":"2"
	}}`)
	defer server.Close()

	snapshot, err := reader.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if got := snapshot.TotalOf("SOL").String(); got != "1.75" {
		t.Errorf("TotalOf(SOL) = %s, want 1.75", got)
	}
}

func TestSnapshotErrorEnvelope(t *testing.T) {
	reader, server := newTestReader(t, `{"error":["EGeneral:Internal error"],"result":null}`)
	defer server.Close()

	_, err := reader.Snapshot(context.Background())
	var unavailable *BalanceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("want BalanceUnavailableError, got %v", err)
	}
}

func TestSnapshotUnparseableAmount(t *testing.T) {
	reader, server := newTestReader(t, `{"error":[],"result":{"SOL":"not-a-number"}}`)
	defer server.Close()

	_, err := reader.Snapshot(context.Background())
	var unavailable *BalanceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("want BalanceUnavailableError, got %v", err)
	}
}
