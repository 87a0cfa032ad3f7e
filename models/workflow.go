package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowState is the consolidation state machine position. Created
// at workflow start, mutated only by the orchestrator, terminal at
// Succeeded, AwaitingConfirmation or Failed.
type WorkflowState string

const (
	StateCheckingBalance      WorkflowState = "checking_balance"
	StateLiquidating          WorkflowState = "liquidating"
	StateAwaitingSettlement   WorkflowState = "awaiting_settlement"
	StateAcquiringTarget      WorkflowState = "acquiring_target"
	StateRegisteringAddress   WorkflowState = "registering_address"
	StateWithdrawing          WorkflowState = "withdrawing"
	StateVerifying            WorkflowState = "verifying"
	StateSucceeded            WorkflowState = "succeeded"
	StateAwaitingConfirmation WorkflowState = "awaiting_confirmation"
	StateFailed               WorkflowState = "failed"
)

// Terminal reports whether the state ends the workflow.
func (s WorkflowState) Terminal() bool {
	switch s {
	case StateSucceeded, StateAwaitingConfirmation, StateFailed:
		return true
	default:
		return false
	}
}

// Liquidation outcome status values.
const (
	LiquidationSold         = "sold"
	LiquidationBelowMinimum = "skipped_below_minimum"
	LiquidationNoPair       = "skipped_no_pair"
	LiquidationRejected     = "rejected"
	LiquidationSubmitFailed = "submit_failed"
)

// LiquidationOutcome records what happened to a single non-target
// asset during the liquidation pass. Skipped assets are reported, not
// silently dropped; partial consolidation is an acceptable result.
type LiquidationOutcome struct {
	Asset   string          `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
	Pair    string          `json:"pair,omitempty"`
	Volume  decimal.Decimal `json:"volume,omitempty"`
	Status  string          `json:"status"`
	Detail  string          `json:"detail,omitempty"`
}

// Report is the machine-parseable result of record for one workflow
// run. It is always produced, whatever the terminal state.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	FinalState    WorkflowState `json:"final_state"`
	LastGoodState WorkflowState `json:"last_good_state,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`

	TargetAsset         string               `json:"target_asset"`
	Liquidations        []LiquidationOutcome `json:"liquidations"`
	AccumulatedQuote    decimal.Decimal      `json:"accumulated_quote"`
	TargetBalanceBefore decimal.Decimal      `json:"target_balance_before"`
	TargetBalanceAfter  decimal.Decimal      `json:"target_balance_after"`

	WithdrawalAmount   decimal.Decimal   `json:"withdrawal_amount"`
	WithdrawalRef      string            `json:"withdrawal_ref,omitempty"`
	AddressLabel       string            `json:"address_label,omitempty"`
	ConfirmationState  ConfirmationState `json:"confirmation_state,omitempty"`
	DestinationAddress string            `json:"destination_address,omitempty"`
}

// Succeeded reports whether the run reached the success terminal state.
func (r *Report) Succeeded() bool {
	return r.FinalState == StateSucceeded
}
