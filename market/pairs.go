package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"solbridge/kraken"
	"solbridge/logger"
	"solbridge/models"
)

const assetPairsPath = "/0/public/AssetPairs"

// Resolver picks the trading pair used to liquidate an asset. Pair
// data comes from the public pair listing or static injection; lookups
// are pure and deterministic.
type Resolver struct {
	targetAsset string
	quoteAssets []string
	pairs       []models.TradingPair
	log         *logger.Entry
}

// NewResolver builds a resolver for the given target asset and the
// acceptable fallback quote currencies, in preference order.
func NewResolver(targetAsset string, quoteAssets []string, log *logger.Log) *Resolver {
	return &Resolver{
		targetAsset: models.NormalizeAsset(targetAsset),
		quoteAssets: normalizeAll(quoteAssets),
		log:         log.WithComponent("pair-resolver"),
	}
}

func normalizeAll(assets []string) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, models.NormalizeAsset(a))
	}
	return out
}

// SetPairs injects a static pair universe, replacing anything loaded.
func (r *Resolver) SetPairs(pairs []models.TradingPair) {
	sorted := make([]models.TradingPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	r.pairs = sorted
}

type assetPairInfo struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// LoadPairs fetches the tradable pair listing from the exchange. Must
// be called (or SetPairs used) before resolution.
func (r *Resolver) LoadPairs(ctx context.Context, client *kraken.Client) error {
	resp, err := client.Public(ctx, assetPairsPath, nil)
	if err != nil {
		return fmt.Errorf("load trading pairs: %w", err)
	}

	var raw map[string]assetPairInfo
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return fmt.Errorf("decode trading pairs: %w", err)
	}

	pairs := make([]models.TradingPair, 0, len(raw))
	for id, info := range raw {
		pairs = append(pairs, models.TradingPair{
			ID:    id,
			Base:  models.NormalizeAsset(info.Base),
			Quote: models.NormalizeAsset(info.Quote),
		})
	}
	r.SetPairs(pairs)

	r.log.WithFields(logger.Fields{"pairs": len(r.pairs)}).Debug("trading pairs loaded")
	return nil
}

// FindLiquidationPair returns the pair to sell the given asset
// through. Pairs quoted in the target asset win over stable-quote
// pairs; within one quote preference the lowest pair ID wins, so
// resolution is reproducible across runs. The second return is false
// when the asset has no usable market.
func (r *Resolver) FindLiquidationPair(asset string) (models.TradingPair, bool) {
	base := models.NormalizeAsset(asset)
	if base == r.targetAsset {
		return models.TradingPair{}, false
	}

	quotes := append([]string{r.targetAsset}, r.quoteAssets...)
	for _, quote := range quotes {
		for _, pair := range r.pairs {
			if pair.Base == base && pair.Quote == quote {
				return pair, true
			}
		}
	}
	return models.TradingPair{}, false
}

// FindPurchasePair returns the pair to buy the target asset with the
// given quote currency.
func (r *Resolver) FindPurchasePair(quote string) (models.TradingPair, bool) {
	want := models.NormalizeAsset(quote)
	for _, pair := range r.pairs {
		if pair.Base == r.targetAsset && pair.Quote == want {
			return pair, true
		}
	}
	return models.TradingPair{}, false
}
