package account

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"solbridge/kraken"
	"solbridge/logger"
	"solbridge/models"
)

const balancePath = "/0/private/Balance"

// BalanceUnavailableError reports that the account balance could not
// be read. Retryable; the orchestrator decides how often.
type BalanceUnavailableError struct {
	Err error
}

func (e *BalanceUnavailableError) Error() string {
	return fmt.Sprintf("account: balance unavailable: %v", e.Err)
}

func (e *BalanceUnavailableError) Unwrap() error { return e.Err }

// Reader fetches account balance snapshots.
type Reader struct {
	client *kraken.Client
	log    *logger.Entry
}

func NewReader(client *kraken.Client, log *logger.Log) *Reader {
	return &Reader{
		client: client,
		log:    log.WithComponent("balance-reader"),
	}
}

// Snapshot issues one signed balance request and returns the held
// amounts. Zero and negative entries are dropped; amounts are parsed
// as exact decimals.
func (r *Reader) Snapshot(ctx context.Context) (models.BalanceSnapshot, error) {
	resp, err := r.client.Send(ctx, balancePath, nil)
	if err != nil {
		return nil, &BalanceUnavailableError{Err: err}
	}
	if len(resp.Result) == 0 {
		return nil, &BalanceUnavailableError{Err: fmt.Errorf("empty result payload")}
	}

	var raw map[string]string
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, &BalanceUnavailableError{Err: fmt.Errorf("decode balance payload: %w", err)}
	}

	snapshot := make(models.BalanceSnapshot, len(raw))
	for asset, amountStr := range raw {
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, &BalanceUnavailableError{Err: fmt.Errorf("asset %s has unparseable amount %q", asset, amountStr)}
		}
		if amount.IsPositive() {
			snapshot[asset] = amount
		}
	}

	r.log.WithFields(logger.Fields{"assets_held": len(snapshot)}).Debug("balance snapshot fetched")
	return snapshot, nil
}
