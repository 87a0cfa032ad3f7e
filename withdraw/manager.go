package withdraw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solbridge/kraken"
	"solbridge/logger"
	"solbridge/models"
)

const (
	addAddressPath      = "/0/private/WithdrawAddresses/Add"
	withdrawPath        = "/0/private/Withdraw"
	withdrawMethodsPath = "/0/private/WithdrawMethods"
)

// RegistrationError reports a definitive address registration failure.
// Pending out-of-band confirmation is NOT an error; see
// models.ConfirmationPending.
type RegistrationError struct {
	Asset  string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("withdraw: address registration for %s failed: %s", e.Asset, e.Reason)
}

// InvariantViolation flags a withdrawal request that breaks the
// fee-buffer cap. This is a programming error upstream; the amount is
// never clamped silently.
type InvariantViolation struct {
	Asset     string
	Requested decimal.Decimal
	Cap       decimal.Decimal
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("withdraw: requested %s %s exceeds cap %s", e.Requested, e.Asset, e.Cap)
}

// Method describes one withdrawal network for an asset.
type Method struct {
	Asset   string `json:"asset"`
	Method  string `json:"method"`
	Network string `json:"network"`
	Minimum string `json:"minimum"`
}

// Manager registers withdrawal addresses and initiates withdrawals.
type Manager struct {
	client              *kraken.Client
	labelPrefix         string
	withdrawalFeeBuffer decimal.Decimal
	log                 *logger.Entry
}

func NewManager(client *kraken.Client, labelPrefix string, withdrawalFeeBuffer decimal.Decimal, log *logger.Log) *Manager {
	if labelPrefix == "" {
		labelPrefix = "solbridge"
	}
	return &Manager{
		client:              client,
		labelPrefix:         labelPrefix,
		withdrawalFeeBuffer: withdrawalFeeBuffer,
		log:                 log.WithComponent("withdrawal-manager"),
	}
}

// newLabel builds a label unique across runs: prefix, unix seconds,
// and a uuid fragment for same-second collisions.
func (m *Manager) newLabel() string {
	return fmt.Sprintf("%s_%d_%s", m.labelPrefix, time.Now().Unix(), uuid.NewString()[:8])
}

// RegisterAddress submits a new withdrawal address for the asset. An
// exchange response demanding out-of-band confirmation yields a
// WithdrawalAddress in the Pending state, not an error.
func (m *Manager) RegisterAddress(ctx context.Context, asset, address string) (models.WithdrawalAddress, error) {
	label := m.newLabel()
	params := url.Values{}
	params.Set("asset", asset)
	params.Set("key", label)
	params.Set("address", address)

	registered := models.WithdrawalAddress{
		Asset:   asset,
		Label:   label,
		Address: address,
	}

	resp, err := m.client.Send(ctx, addAddressPath, params)
	if err != nil {
		var apiErr *kraken.APIError
		if errors.As(err, &apiErr) {
			reason := strings.Join(apiErr.Messages, "; ")
			if mentionsConfirmation(reason) {
				m.log.WithFields(logger.Fields{"asset": asset, "label": label}).
					Warn("address registered, awaiting out-of-band confirmation")
				registered.Confirmation = models.ConfirmationPending
				return registered, nil
			}
			return models.WithdrawalAddress{}, &RegistrationError{Asset: asset, Reason: reason}
		}
		return models.WithdrawalAddress{}, err
	}

	var result struct {
		ConfirmationRequired bool `json:"confirmation_required"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return models.WithdrawalAddress{}, fmt.Errorf("withdraw: decode registration response: %w", err)
		}
	}
	if result.ConfirmationRequired {
		registered.Confirmation = models.ConfirmationPending
	} else {
		registered.Confirmation = models.ConfirmationConfirmed
	}

	m.log.WithFields(logger.Fields{
		"asset":        asset,
		"label":        label,
		"confirmation": string(registered.Confirmation),
	}).Info("withdrawal address registered")
	return registered, nil
}

func mentionsConfirmation(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "confirmation")
}

// Withdraw initiates a withdrawal to a registered address label. The
// amount must not exceed available × (1 − withdrawalFeeBuffer).
func (m *Manager) Withdraw(ctx context.Context, req models.WithdrawalRequest, available decimal.Decimal) (models.WithdrawalResult, error) {
	limit := available.Mul(decimal.NewFromInt(1).Sub(m.withdrawalFeeBuffer))
	if req.Amount.GreaterThan(limit) {
		return models.WithdrawalResult{}, &InvariantViolation{
			Asset:     req.Asset,
			Requested: req.Amount,
			Cap:       limit,
		}
	}
	if !req.Amount.IsPositive() {
		return models.WithdrawalResult{}, fmt.Errorf("withdraw: amount must be positive, got %s", req.Amount)
	}

	params := url.Values{}
	params.Set("asset", req.Asset)
	params.Set("key", req.Label)
	params.Set("amount", req.Amount.String())

	resp, err := m.client.Send(ctx, withdrawPath, params)
	if err != nil {
		return models.WithdrawalResult{}, err
	}

	var result struct {
		RefID string `json:"refid"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return models.WithdrawalResult{}, fmt.Errorf("withdraw: decode withdrawal response: %w", err)
	}
	if result.RefID == "" {
		return models.WithdrawalResult{}, fmt.Errorf("withdraw: exchange returned no reference id")
	}

	m.log.WithFields(logger.Fields{
		"asset":  req.Asset,
		"label":  req.Label,
		"amount": req.Amount.String(),
		"refid":  result.RefID,
	}).Info("withdrawal initiated")
	return models.WithdrawalResult{ReferenceID: result.RefID}, nil
}

// Methods lists the withdrawal networks available for an asset.
// Informational; logged so operators can verify the expected network
// before funds move.
func (m *Manager) Methods(ctx context.Context, asset string) ([]Method, error) {
	params := url.Values{}
	params.Set("asset", asset)

	resp, err := m.client.Send(ctx, withdrawMethodsPath, params)
	if err != nil {
		return nil, err
	}

	var methods []Method
	if err := json.Unmarshal(resp.Result, &methods); err != nil {
		return nil, fmt.Errorf("withdraw: decode methods response: %w", err)
	}
	return methods, nil
}
