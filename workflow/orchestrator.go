package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"solbridge/account"
	"solbridge/config"
	"solbridge/kraken"
	"solbridge/logger"
	"solbridge/models"
	"solbridge/orders"
	"solbridge/wallet"
	"solbridge/withdraw"
)

// BalanceReader reads account balance snapshots.
type BalanceReader interface {
	Snapshot(ctx context.Context) (models.BalanceSnapshot, error)
}

// PairResolver picks trading pairs for liquidation and purchase.
type PairResolver interface {
	FindLiquidationPair(asset string) (models.TradingPair, bool)
	FindPurchasePair(quote string) (models.TradingPair, bool)
}

// OrderExecutor submits market orders.
type OrderExecutor interface {
	Sell(ctx context.Context, pair models.TradingPair, volume decimal.Decimal) (models.OrderResult, error)
	Buy(ctx context.Context, pair models.TradingPair, quoteAmount, refPrice decimal.Decimal) (models.OrderResult, error)
}

// WithdrawalManager registers addresses and moves funds out.
type WithdrawalManager interface {
	RegisterAddress(ctx context.Context, asset, address string) (models.WithdrawalAddress, error)
	Withdraw(ctx context.Context, req models.WithdrawalRequest, available decimal.Decimal) (models.WithdrawalResult, error)
}

// Settings are the parsed workflow thresholds. Built from config via
// SettingsFromConfig; tests construct them directly.
type Settings struct {
	TargetAsset         string
	QuoteAssets         []string
	FeeBuffer           decimal.Decimal
	WithdrawalFeeBuffer decimal.Decimal
	ReserveFraction     decimal.Decimal
	DefaultMinTradeSize decimal.Decimal
	MinTradeSizes       map[string]decimal.Decimal
	MinPurchaseQuote    decimal.Decimal
	MinTargetBalance    decimal.Decimal
	ReferencePrice      decimal.Decimal
	PollInterval        time.Duration
	MaxWait             time.Duration
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
}

// SettingsFromConfig parses the validated config strings into decimal
// settings.
func SettingsFromConfig(cfg config.WorkflowConfig) Settings {
	minSizes := make(map[string]decimal.Decimal, len(cfg.MinTradeSizes))
	for asset, size := range cfg.MinTradeSizes {
		minSizes[models.NormalizeAsset(asset)] = config.DecimalField(size)
	}
	refPrice := decimal.Zero
	if cfg.ReferencePrice != "" {
		refPrice = config.DecimalField(cfg.ReferencePrice)
	}
	return Settings{
		TargetAsset:         models.NormalizeAsset(cfg.TargetAsset),
		QuoteAssets:         cfg.QuoteAssets,
		FeeBuffer:           config.DecimalField(cfg.FeeBuffer),
		WithdrawalFeeBuffer: config.DecimalField(cfg.WithdrawalFeeBuffer),
		ReserveFraction:     config.DecimalField(cfg.ReserveFraction),
		DefaultMinTradeSize: config.DecimalField(cfg.DefaultMinTradeSize),
		MinTradeSizes:       minSizes,
		MinPurchaseQuote:    config.DecimalField(cfg.MinPurchaseQuote),
		MinTargetBalance:    config.DecimalField(cfg.MinTargetBalance),
		ReferencePrice:      refPrice,
		PollInterval:        cfg.SettlementPollInterval,
		MaxWait:             cfg.SettlementMaxWait,
		RetryAttempts:       cfg.Retry.MaxAttempts,
		RetryBaseDelay:      cfg.Retry.BaseDelay,
		RetryMaxDelay:       cfg.Retry.MaxDelay,
	}
}

// Orchestrator drives the consolidation state machine: liquidate
// everything that is not the target asset, buy the target with the
// proceeds, and withdraw to the destination wallet.
type Orchestrator struct {
	settings    Settings
	balances    BalanceReader
	pairs       PairResolver
	orders      OrderExecutor
	withdrawals WithdrawalManager
	destination wallet.AddressSource
	clock       Clock
	log         *logger.Log
}

func NewOrchestrator(
	settings Settings,
	balances BalanceReader,
	pairs PairResolver,
	orderExec OrderExecutor,
	withdrawals WithdrawalManager,
	destination wallet.AddressSource,
	clock Clock,
	log *logger.Log,
) *Orchestrator {
	return &Orchestrator{
		settings:    settings,
		balances:    balances,
		pairs:       pairs,
		orders:      orderExec,
		withdrawals: withdrawals,
		destination: destination,
		clock:       clock,
		log:         log,
	}
}

// run carries the mutable state of one workflow execution.
type run struct {
	ctx    context.Context
	report *models.Report
	log    *logger.Entry
}

func (r *run) transition(state models.WorkflowState) {
	if !r.report.FinalState.Terminal() {
		r.report.LastGoodState = r.report.FinalState
	}
	r.report.FinalState = state
	r.log.WithFields(logger.Fields{"state": string(state)}).Info("workflow state changed")
}

func (r *run) fail(reason string) *models.Report {
	if !r.report.FinalState.Terminal() {
		r.report.LastGoodState = r.report.FinalState
	}
	r.report.FinalState = models.StateFailed
	r.report.FailureReason = reason
	r.log.WithFields(logger.Fields{"reason": reason}).Error("workflow failed")
	return r.report
}

// cancelled checks for cancellation between states. Requests already
// in flight are never interrupted mid-call by this check.
func (r *run) cancelled() bool {
	select {
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// Run executes the full consolidation workflow and always returns a
// report, whatever the terminal state.
func (o *Orchestrator) Run(ctx context.Context) *models.Report {
	runID := uuid.NewString()
	r := &run{
		ctx: ctx,
		report: &models.Report{
			RunID:       runID,
			StartedAt:   o.clock.Now(),
			TargetAsset: o.settings.TargetAsset,
		},
		log: o.log.WithComponent("orchestrator").WithFields(logger.Fields{"run_id": runID}),
	}
	defer func() {
		r.report.FinishedAt = o.clock.Now()
		logger.LogPerformanceEntry(r.log, "orchestrator", "consolidation_run",
			r.report.FinishedAt.Sub(r.report.StartedAt), logger.Fields{
				"final_state": string(r.report.FinalState),
			})
	}()

	// CheckingBalance
	r.transition(models.StateCheckingBalance)
	snapshot, err := o.snapshotWithRetry(r)
	if err != nil {
		return r.fail(fmt.Sprintf("initial balance check failed: %v", err))
	}
	r.report.TargetBalanceBefore = snapshot.TotalOf(o.settings.TargetAsset)

	// Liquidating
	if r.cancelled() {
		return r.fail("cancelled")
	}
	r.transition(models.StateLiquidating)
	sold, fatal := o.liquidate(r, snapshot)
	if fatal != nil {
		return r.fail(fatal.Error())
	}

	// AwaitingSettlement after sells
	if sold > 0 {
		if r.cancelled() {
			return r.fail("cancelled")
		}
		r.transition(models.StateAwaitingSettlement)
		snapshot = o.awaitSettlement(r, snapshot, o.quoteTotal)
	}

	// AcquiringTarget
	if r.cancelled() {
		return r.fail("cancelled")
	}
	r.transition(models.StateAcquiringTarget)
	bought, err := o.acquireTarget(r, snapshot)
	if err != nil {
		return r.fail(err.Error())
	}

	// AwaitingSettlement after the buy
	if bought {
		if r.cancelled() {
			return r.fail("cancelled")
		}
		r.transition(models.StateAwaitingSettlement)
		snapshot = o.awaitSettlement(r, snapshot, func(s models.BalanceSnapshot) decimal.Decimal {
			return s.TotalOf(o.settings.TargetAsset)
		})
	}

	targetTotal := snapshot.TotalOf(o.settings.TargetAsset)
	r.report.TargetBalanceAfter = targetTotal

	// Minimum-for-trading gate before anything irreversible.
	if targetTotal.LessThan(o.settings.MinTargetBalance) {
		return r.fail(fmt.Sprintf(
			"insufficient consolidated balance: got %s %s, want at least %s",
			targetTotal, o.settings.TargetAsset, o.settings.MinTargetBalance))
	}

	// RegisteringAddress
	if r.cancelled() {
		return r.fail("cancelled")
	}
	r.transition(models.StateRegisteringAddress)
	dest, err := o.destination.DestinationAddress()
	if err != nil {
		return r.fail(fmt.Sprintf("destination address unavailable: %v", err))
	}
	r.report.DestinationAddress = dest.Address

	registered, err := o.withdrawals.RegisterAddress(r.ctx, o.settings.TargetAsset, dest.Address)
	if err != nil {
		return r.fail(fmt.Sprintf("address registration failed: %v", err))
	}
	r.report.AddressLabel = registered.Label
	r.report.ConfirmationState = registered.Confirmation
	if registered.Confirmation == models.ConfirmationPending {
		r.report.FinalState = models.StateAwaitingConfirmation
		r.log.Warn("withdrawal address awaits out-of-band confirmation; rerun after confirming")
		return r.report
	}

	// Withdrawing
	if r.cancelled() {
		return r.fail("cancelled")
	}
	r.transition(models.StateWithdrawing)
	amount := targetTotal.Mul(decimal.NewFromInt(1).Sub(o.settings.ReserveFraction))
	r.report.WithdrawalAmount = amount
	o.log.LogMetric("orchestrator", "withdrawal_amount", amountFloat(amount), "gauge", nil)

	result, err := o.withdrawals.Withdraw(r.ctx, models.WithdrawalRequest{
		Asset:  o.settings.TargetAsset,
		Label:  registered.Label,
		Amount: amount,
	}, targetTotal)
	if err != nil {
		return r.fail(fmt.Sprintf("withdrawal failed: %v", err))
	}
	r.report.WithdrawalRef = result.ReferenceID

	// Verifying: watch for the balance to reflect the withdrawal. The
	// exchange processes withdrawals asynchronously, so not seeing the
	// delta inside the wait window is a warning, not a failure.
	r.transition(models.StateVerifying)
	o.verifyWithdrawal(r, targetTotal)

	r.report.FinalState = models.StateSucceeded
	r.log.WithFields(logger.Fields{
		"withdrawal_ref": result.ReferenceID,
		"amount":         amount.String(),
	}).Info("workflow succeeded")
	return r.report
}

// liquidate sells every held non-target asset that has a market and
// meets its minimum size. Returns the number of submitted sells and a
// fatal error when one occurred.
func (o *Orchestrator) liquidate(r *run, snapshot models.BalanceSnapshot) (int, error) {
	sold := 0
	skipped := 0
	one := decimal.NewFromInt(1)

	quotes := make(map[string]bool, len(o.settings.QuoteAssets))
	for _, q := range o.settings.QuoteAssets {
		quotes[models.NormalizeAsset(q)] = true
	}

	for _, asset := range snapshot.Assets() {
		normalized := models.NormalizeAsset(asset)
		// Target holdings stay; quote holdings fund the purchase leg.
		if normalized == o.settings.TargetAsset || quotes[normalized] {
			continue
		}
		balance := snapshot.Get(asset)
		outcome := models.LiquidationOutcome{Asset: asset, Balance: balance}

		minSize := o.minTradeSize(asset)
		if balance.LessThan(minSize) {
			outcome.Status = models.LiquidationBelowMinimum
			outcome.Detail = fmt.Sprintf("balance %s below minimum %s", balance, minSize)
			r.report.Liquidations = append(r.report.Liquidations, outcome)
			skipped++
			continue
		}

		pair, ok := o.pairs.FindLiquidationPair(asset)
		if !ok {
			outcome.Status = models.LiquidationNoPair
			outcome.Detail = "no market quoted in target or stable assets"
			r.report.Liquidations = append(r.report.Liquidations, outcome)
			skipped++
			continue
		}
		outcome.Pair = pair.ID
		outcome.Volume = balance.Mul(one.Sub(o.settings.FeeBuffer))

		_, err := o.sellWithRetry(r, pair, outcome.Volume)
		switch {
		case err == nil:
			outcome.Status = models.LiquidationSold
			sold++
		case errors.Is(err, kraken.ErrAuth):
			return sold, fmt.Errorf("authentication rejected during liquidation: %v", err)
		case isRejection(err):
			outcome.Status = models.LiquidationRejected
			outcome.Detail = rejectionReason(err)
			skipped++
		default:
			outcome.Status = models.LiquidationSubmitFailed
			outcome.Detail = err.Error()
			skipped++
		}
		r.report.Liquidations = append(r.report.Liquidations, outcome)
	}

	o.log.LogMetric("orchestrator", "orders_submitted", sold, "counter", nil)
	o.log.LogMetric("orchestrator", "assets_skipped", skipped, "counter", nil)
	return sold, nil
}

// acquireTarget spends the accumulated quote balance on the target
// asset. A rejected purchase aborts the workflow; sub-threshold quote
// balances skip the leg. Reports whether a buy was submitted.
func (o *Orchestrator) acquireTarget(r *run, snapshot models.BalanceSnapshot) (bool, error) {
	quoteTotal := o.quoteTotal(snapshot)
	r.report.AccumulatedQuote = quoteTotal

	if o.settings.ReferencePrice.IsZero() {
		r.log.Debug("no reference price configured; skipping target purchase")
		return false, nil
	}
	if quoteTotal.LessThan(o.settings.MinPurchaseQuote) {
		r.log.WithFields(logger.Fields{
			"quote_total": quoteTotal.String(),
			"minimum":     o.settings.MinPurchaseQuote.String(),
		}).Info("quote balance below purchase threshold; skipping target purchase")
		return false, nil
	}

	one := decimal.NewFromInt(1)
	bought := false
	for _, quote := range o.settings.QuoteAssets {
		available := snapshot.TotalOf(quote)
		if available.LessThan(o.settings.MinPurchaseQuote) {
			continue
		}
		pair, ok := o.pairs.FindPurchasePair(quote)
		if !ok {
			r.log.WithFields(logger.Fields{"quote": quote}).Warn("no purchase pair for quote asset")
			continue
		}
		spend := available.Mul(one.Sub(o.settings.FeeBuffer))
		_, err := o.buyWithRetry(r, pair, spend)
		switch {
		case err == nil:
			bought = true
		case isRejection(err):
			// A rejected target buy means the proceeds are stranded in
			// the quote currency; aborting beats withdrawing dust.
			return bought, fmt.Errorf("target purchase rejected: %s", rejectionReason(err))
		default:
			return bought, fmt.Errorf("target purchase failed: %v", err)
		}
	}
	return bought, nil
}

// awaitSettlement polls balances until observe() grows past its value
// in the pre-trade snapshot, bounded by MaxWait. On timeout the last
// snapshot wins; market orders normally settle fast, and downstream
// threshold gates catch anything that did not arrive.
func (o *Orchestrator) awaitSettlement(r *run, before models.BalanceSnapshot, observe func(models.BalanceSnapshot) decimal.Decimal) models.BalanceSnapshot {
	baseline := observe(before)
	deadline := o.clock.Now().Add(o.settings.MaxWait)
	last := before

	for {
		if err := o.clock.Sleep(r.ctx, o.settings.PollInterval); err != nil {
			return last
		}
		snapshot, err := o.snapshotWithRetry(r)
		if err != nil {
			r.log.WithError(err).Warn("balance poll failed during settlement wait")
			return last
		}
		last = snapshot
		if observe(snapshot).GreaterThan(baseline) {
			r.log.Debug("settlement observed")
			return last
		}
		if !o.clock.Now().Before(deadline) {
			r.log.Warn("settlement wait elapsed without observed balance change")
			return last
		}
	}
}

// verifyWithdrawal polls for the target balance to drop below its
// pre-withdrawal level.
func (o *Orchestrator) verifyWithdrawal(r *run, before decimal.Decimal) {
	deadline := o.clock.Now().Add(o.settings.MaxWait)
	for {
		if err := o.clock.Sleep(r.ctx, o.settings.PollInterval); err != nil {
			return
		}
		snapshot, err := o.snapshotWithRetry(r)
		if err != nil {
			r.log.WithError(err).Warn("balance poll failed during withdrawal verification")
			return
		}
		if snapshot.TotalOf(o.settings.TargetAsset).LessThan(before) {
			r.log.Info("withdrawal reflected in exchange balance")
			return
		}
		if !o.clock.Now().Before(deadline) {
			r.log.Warn("withdrawal not yet reflected in balance; exchange processing is asynchronous")
			return
		}
	}
}

func (o *Orchestrator) quoteTotal(snapshot models.BalanceSnapshot) decimal.Decimal {
	total := decimal.Zero
	for _, quote := range o.settings.QuoteAssets {
		total = total.Add(snapshot.TotalOf(quote))
	}
	return total
}

func (o *Orchestrator) minTradeSize(asset string) decimal.Decimal {
	if size, ok := o.settings.MinTradeSizes[models.NormalizeAsset(asset)]; ok {
		return size
	}
	return o.settings.DefaultMinTradeSize
}

func (o *Orchestrator) snapshotWithRetry(r *run) (models.BalanceSnapshot, error) {
	var snapshot models.BalanceSnapshot
	err := o.withRetry(r, func() error {
		var err error
		snapshot, err = o.balances.Snapshot(r.ctx)
		return err
	})
	return snapshot, err
}

func (o *Orchestrator) sellWithRetry(r *run, pair models.TradingPair, volume decimal.Decimal) (models.OrderResult, error) {
	var result models.OrderResult
	err := o.withRetry(r, func() error {
		var err error
		result, err = o.orders.Sell(r.ctx, pair, volume)
		return err
	})
	return result, err
}

func (o *Orchestrator) buyWithRetry(r *run, pair models.TradingPair, spend decimal.Decimal) (models.OrderResult, error) {
	var result models.OrderResult
	err := o.withRetry(r, func() error {
		var err error
		result, err = o.orders.Buy(r.ctx, pair, spend, o.settings.ReferencePrice)
		return err
	})
	return result, err
}

// withRetry runs op with exponential backoff for retryable failures.
// Auth errors and order rejections surface immediately.
func (o *Orchestrator) withRetry(r *run, op func() error) error {
	b := &backoff.Backoff{
		Min:    o.settings.RetryBaseDelay,
		Max:    o.settings.RetryMaxDelay,
		Factor: 2,
		Jitter: true,
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !isRetryable(err) || attempt >= o.settings.RetryAttempts {
			return err
		}
		delay := b.Duration()
		r.log.WithError(err).WithFields(logger.Fields{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Warn("retryable failure, backing off")
		if sleepErr := o.clock.Sleep(r.ctx, delay); sleepErr != nil {
			return err
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, kraken.ErrAuth) {
		return false
	}
	if errors.Is(err, kraken.ErrRateLimited) {
		return true
	}
	var transport *kraken.TransportError
	if errors.As(err, &transport) {
		return true
	}
	var unavailable *account.BalanceUnavailableError
	if errors.As(err, &unavailable) {
		// Unwraps to the transport/rate-limit cause when present; a
		// malformed payload is retryable too, it may be transient.
		return true
	}
	return false
}

func isRejection(err error) bool {
	var rejected *orders.OrderRejectedError
	return errors.As(err, &rejected)
}

func rejectionReason(err error) string {
	var rejected *orders.OrderRejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return err.Error()
}

func amountFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

var _ WithdrawalManager = (*withdraw.Manager)(nil)
var _ BalanceReader = (*account.Reader)(nil)
var _ OrderExecutor = (*orders.Executor)(nil)
