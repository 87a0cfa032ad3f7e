package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeAsset(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SOL", "SOL"},
		{"sol", "SOL"},
		{" SOL ", "SOL"},
		{"SOL.F", "SOL"},
		{"DOT.S", "DOT"},
		{"XXBT", "BTC"},
		{"XBT", "BTC"},
		{"XETH", "ETH"},
		{"ZUSD", "USD"},
		{"ZEUR", "EUR"},
		{"USDT", "USDT"},
		{"XRPX", "XRPX"}, // X suffix, not prefix: untouched
	}
	for _, tc := range cases {
		if got := NormalizeAsset(tc.in); got != tc.want {
			t.Errorf("NormalizeAsset(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestBalanceSnapshotAssetsSorted(t *testing.T) {
	s := BalanceSnapshot{
		"SOL": mustDec(t, "1"),
		"ETH": mustDec(t, "2"),
		"BTC": mustDec(t, "3"),
	}
	got := s.Assets()
	want := []string{"BTC", "ETH", "SOL"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Assets() = %v, want %v", got, want)
		}
	}
}

func TestBalanceSnapshotTotalOf(t *testing.T) {
	s := BalanceSnapshot{
		"SOL":   mustDec(t, "1.5"),
		"SOL.F": mustDec(t, "0.25"),
		"ETH":   mustDec(t, "2"),
	}
	if got := s.TotalOf("SOL").String(); got != "1.75" {
		t.Errorf("TotalOf(SOL) = %s, want 1.75", got)
	}
	if got := s.TotalOf("sol").String(); got != "1.75" {
		t.Errorf("TotalOf is case sensitive: got %s", got)
	}
	if !s.TotalOf("DOGE").IsZero() {
		t.Errorf("TotalOf(DOGE) = %s, want 0", s.TotalOf("DOGE"))
	}
}

func TestBalanceSnapshotGetAbsent(t *testing.T) {
	s := BalanceSnapshot{}
	if !s.Get("SOL").IsZero() {
		t.Error("absent asset must read as zero")
	}
}

func TestWorkflowStateTerminal(t *testing.T) {
	terminal := []WorkflowState{StateSucceeded, StateAwaitingConfirmation, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []WorkflowState{
		StateCheckingBalance, StateLiquidating, StateAwaitingSettlement,
		StateAcquiringTarget, StateRegisteringAddress, StateWithdrawing, StateVerifying,
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestReportSucceeded(t *testing.T) {
	r := &Report{FinalState: StateSucceeded}
	if !r.Succeeded() {
		t.Error("succeeded state must report success")
	}
	r.FinalState = StateAwaitingConfirmation
	if r.Succeeded() {
		t.Error("awaiting confirmation is not success")
	}
}
