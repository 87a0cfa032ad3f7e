package models

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BALANCES //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BalanceSnapshot maps asset symbols to positive amounts. Assets the
// account never held are absent rather than zero; readers must filter
// non-positive entries at construction time.
type BalanceSnapshot map[string]decimal.Decimal

// Assets returns the held asset symbols in sorted order so iteration
// over a snapshot is reproducible across runs.
func (s BalanceSnapshot) Assets() []string {
	assets := make([]string, 0, len(s))
	for a := range s {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Get returns the held amount for an asset, zero when absent.
func (s BalanceSnapshot) Get(asset string) decimal.Decimal {
	if v, ok := s[asset]; ok {
		return v
	}
	return decimal.Zero
}

// TotalOf sums every entry whose normalized symbol matches the given
// asset. Kraken reports staked and earn balances under suffixed
// variants (SOL.F, DOT.S); a consolidation total has to include them.
func (s BalanceSnapshot) TotalOf(asset string) decimal.Decimal {
	want := NormalizeAsset(asset)
	total := decimal.Zero
	for sym, amount := range s {
		if NormalizeAsset(sym) == want {
			total = total.Add(amount)
		}
	}
	return total
}

// NormalizeAsset converts exchange-specific asset spellings to a
// canonical uppercase symbol. Suffixed variants (SOL.F, ETH2.S) and
// Kraken's legacy X/Z prefixes (XXBT, ZUSD) collapse to the plain
// symbol, with XBT mapped to BTC.
func NormalizeAsset(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if i := strings.IndexByte(sym, '.'); i > 0 {
		sym = sym[:i]
	}
	if len(sym) == 4 && (sym[0] == 'X' || sym[0] == 'Z') {
		switch sym {
		case "XXBT", "XETH", "XXRP", "XXLM", "XXMR", "XLTC", "XZEC",
			"ZUSD", "ZEUR", "ZGBP", "ZCAD", "ZJPY", "ZAUD":
			sym = sym[1:]
		}
	}
	if sym == "XBT" {
		sym = "BTC"
	}
	return sym
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// PAIRS /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// TradingPair identifies a tradable market. Base and Quote are always
// distinct; a pair qualifies for liquidation only when its quote is
// the target asset or a configured stable quote.
type TradingPair struct {
	ID    string `json:"id"`
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// ORDERS ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OrderSide is the direction of a market order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest describes a market order submission. Volume is
// denominated in the base asset and must be positive.
type OrderRequest struct {
	Pair   TradingPair     `json:"pair"`
	Side   OrderSide       `json:"side"`
	Volume decimal.Decimal `json:"volume"`
}

// OrderResult reports what the exchange acknowledged. Accepted means
// "order submitted", never "order settled"; callers must not assume an
// immediate fill.
type OrderResult struct {
	Accepted    bool     `json:"accepted"`
	TxIDs       []string `json:"txids,omitempty"`
	Description string   `json:"description,omitempty"`
	ErrorDetail string   `json:"error_detail,omitempty"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// WITHDRAWALS ///////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// ConfirmationState tracks exchange-side approval of a withdrawal
// address. Some exchanges require an out-of-band (email) confirmation
// before an address becomes usable; Pending is a valid non-fatal
// outcome, not an error.
type ConfirmationState string

const (
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationConfirmed ConfirmationState = "confirmed"
	ConfirmationRejected  ConfirmationState = "rejected"
)

// WithdrawalAddress is a registered destination for one asset.
type WithdrawalAddress struct {
	Asset        string            `json:"asset"`
	Label        string            `json:"label"`
	Address      string            `json:"address"`
	Confirmation ConfirmationState `json:"confirmation"`
}

// WithdrawalRequest asks the exchange to move funds to a previously
// registered address label.
type WithdrawalRequest struct {
	Asset  string          `json:"asset"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawalResult carries the exchange's reference for an initiated
// withdrawal. Settlement on-chain happens asynchronously.
type WithdrawalResult struct {
	ReferenceID string `json:"reference_id"`
}

// DestinationWallet is a self-custodied address supplied by the
// external wallet collaborator. Key material never enters this
// process.
type DestinationWallet struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
}
