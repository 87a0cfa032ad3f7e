package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"solbridge/kraken"
	"solbridge/logger"
	"solbridge/models"
)

const addOrderPath = "/0/private/AddOrder"

// OrderRejectedError carries the exchange's verbatim rejection reason
// so operators see exactly what the exchange said.
type OrderRejectedError struct {
	Pair   string
	Side   models.OrderSide
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("orders: %s %s rejected: %s", e.Side, e.Pair, e.Reason)
}

// Executor submits market orders. Exactly one signed request per
// call; retry policy belongs to the caller.
type Executor struct {
	client *kraken.Client
	log    *logger.Entry
}

func NewExecutor(client *kraken.Client, log *logger.Log) *Executor {
	return &Executor{
		client: client,
		log:    log.WithComponent("order-executor"),
	}
}

type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxIDs []string `json:"txid"`
}

// Sell submits a market sell of the given base-asset volume.
func (e *Executor) Sell(ctx context.Context, pair models.TradingPair, volume decimal.Decimal) (models.OrderResult, error) {
	return e.submit(ctx, models.OrderRequest{Pair: pair, Side: models.OrderSideSell, Volume: volume})
}

// Buy submits a market buy sized from a quote-currency amount and a
// reference price: volume = quoteAmount / refPrice. The exchange
// fills at market, so the reference price only sizes the order.
func (e *Executor) Buy(ctx context.Context, pair models.TradingPair, quoteAmount, refPrice decimal.Decimal) (models.OrderResult, error) {
	if !refPrice.IsPositive() {
		return models.OrderResult{}, fmt.Errorf("orders: reference price must be positive, got %s", refPrice)
	}
	volume := quoteAmount.DivRound(refPrice, 8)
	return e.submit(ctx, models.OrderRequest{Pair: pair, Side: models.OrderSideBuy, Volume: volume})
}

func (e *Executor) submit(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if !req.Volume.IsPositive() {
		return models.OrderResult{}, fmt.Errorf("orders: volume must be positive, got %s", req.Volume)
	}

	params := url.Values{}
	params.Set("pair", req.Pair.ID)
	params.Set("type", string(req.Side))
	params.Set("ordertype", "market")
	params.Set("volume", req.Volume.String())

	resp, err := e.client.Send(ctx, addOrderPath, params)
	if err != nil {
		var apiErr *kraken.APIError
		if errors.As(err, &apiErr) {
			reason := ""
			if len(apiErr.Messages) > 0 {
				reason = apiErr.Messages[0]
			}
			return models.OrderResult{Accepted: false, ErrorDetail: reason},
				&OrderRejectedError{Pair: req.Pair.ID, Side: req.Side, Reason: reason}
		}
		return models.OrderResult{}, err
	}

	var result addOrderResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return models.OrderResult{}, fmt.Errorf("orders: decode order response: %w", err)
	}

	e.log.WithFields(logger.Fields{
		"pair":   req.Pair.ID,
		"side":   string(req.Side),
		"volume": req.Volume.String(),
		"txids":  len(result.TxIDs),
	}).Info("order submitted")

	return models.OrderResult{
		Accepted:    true,
		TxIDs:       result.TxIDs,
		Description: result.Descr.Order,
	}, nil
}
