package market

import (
	"testing"

	"solbridge/logger"
	"solbridge/models"
)

func testResolver(t *testing.T, pairs []models.TradingPair) *Resolver {
	t.Helper()
	r := NewResolver("SOL", []string{"USD", "USDT"}, logger.GetLogger())
	r.SetPairs(pairs)
	return r
}

func TestFindLiquidationPairPrefersTargetQuote(t *testing.T) {
	r := testResolver(t, []models.TradingPair{
		{ID: "ETHUSD", Base: "ETH", Quote: "USD"},
		{ID: "ETHSOL", Base: "ETH", Quote: "SOL"},
		{ID: "ETHUSDT", Base: "ETH", Quote: "USDT"},
	})

	pair, ok := r.FindLiquidationPair("ETH")
	if !ok {
		t.Fatal("expected a pair for ETH")
	}
	if pair.ID != "ETHSOL" {
		t.Errorf("pair = %s, want ETHSOL (target quote preferred)", pair.ID)
	}
}

func TestFindLiquidationPairFallsBackToStableQuotes(t *testing.T) {
	r := testResolver(t, []models.TradingPair{
		{ID: "DOGEUSDT", Base: "DOGE", Quote: "USDT"},
		{ID: "DOGEUSD", Base: "DOGE", Quote: "USD"},
	})

	pair, ok := r.FindLiquidationPair("DOGE")
	if !ok {
		t.Fatal("expected a pair for DOGE")
	}
	if pair.ID != "DOGEUSD" {
		t.Errorf("pair = %s, want DOGEUSD (USD listed before USDT)", pair.ID)
	}
}

func TestFindLiquidationPairUnresolvable(t *testing.T) {
	r := testResolver(t, []models.TradingPair{
		{ID: "ETHUSD", Base: "ETH", Quote: "USD"},
	})

	if _, ok := r.FindLiquidationPair("OBSCURE"); ok {
		t.Error("expected no pair for an unlisted asset")
	}
}

func TestFindLiquidationPairSkipsTargetAsset(t *testing.T) {
	r := testResolver(t, []models.TradingPair{
		{ID: "SOLUSD", Base: "SOL", Quote: "USD"},
	})

	if _, ok := r.FindLiquidationPair("SOL"); ok {
		t.Error("target asset must never be liquidated")
	}
	if _, ok := r.FindLiquidationPair("SOL.F"); ok {
		t.Error("target asset variants must never be liquidated")
	}
}

func TestFindLiquidationPairDeterministicAcrossInsertOrder(t *testing.T) {
	pairs := []models.TradingPair{
		{ID: "XETHZUSD", Base: "ETH", Quote: "USD"},
		{ID: "ETHUSD", Base: "ETH", Quote: "USD"},
	}
	reversed := []models.TradingPair{pairs[1], pairs[0]}

	first, _ := testResolver(t, pairs).FindLiquidationPair("ETH")
	second, _ := testResolver(t, reversed).FindLiquidationPair("ETH")
	if first.ID != second.ID {
		t.Errorf("resolution depends on insert order: %s vs %s", first.ID, second.ID)
	}
	if first.ID != "ETHUSD" {
		t.Errorf("pair = %s, want lowest pair ID ETHUSD", first.ID)
	}
}

func TestFindLiquidationPairNormalizesAliases(t *testing.T) {
	r := testResolver(t, []models.TradingPair{
		{ID: "XXBTZUSD", Base: "BTC", Quote: "USD"},
	})

	pair, ok := r.FindLiquidationPair("XXBT")
	if !ok {
		t.Fatal("expected legacy-prefixed asset to resolve")
	}
	if pair.ID != "XXBTZUSD" {
		t.Errorf("pair = %s, want XXBTZUSD", pair.ID)
	}
}

func TestFindPurchasePair(t *testing.T) {
	r := testResolver(t, []models.TradingPair{
		{ID: "SOLUSD", Base: "SOL", Quote: "USD"},
		{ID: "ETHUSD", Base: "ETH", Quote: "USD"},
	})

	pair, ok := r.FindPurchasePair("USD")
	if !ok {
		t.Fatal("expected a purchase pair for USD")
	}
	if pair.ID != "SOLUSD" {
		t.Errorf("pair = %s, want SOLUSD", pair.ID)
	}

	if _, ok := r.FindPurchasePair("EUR"); ok {
		t.Error("expected no purchase pair for EUR")
	}
}
