package wallet

import (
	"context"
	"errors"
)

// BackendID names one of the wallet backends.
type BackendID string

const (
	BackendCashu BackendID = "cashu"
	BackendNWC   BackendID = "nwc"
	BackendBreez BackendID = "breez"
)

// PolicyAuto means no backend is pinned; Pick resolves one from
// balances and connection flags.
const PolicyAuto = "auto"

var ErrBackendNotFound = errors.New("backend not found")

// Backend is the contract for one wallet implementation. The actual
// Cashu/NWC/Breez protocol work lives behind this boundary; the core
// treats these operations as opaque and trusted.
type Backend interface {
	ID() BackendID

	// Pay settles a BOLT11 invoice or raw address string.
	Pay(ctx context.Context, amountSats int64, invoiceOrAddress string) error

	// ReceiveToken redeems a pasted Cashu bearer token.
	ReceiveToken(ctx context.Context, token string) error

	// Quote returns amount and fee for a BOLT11 invoice.
	Quote(ctx context.Context, bolt11 string) (amountSats, feeSats int64, err error)

	// CreateDeposit mints a new quote: an invoice for the payer plus
	// the quote id to poll.
	CreateDeposit(ctx context.Context, amountSats int64) (invoiceText, quoteID string, err error)

	// CheckDeposit reports whether the quote's invoice has been paid.
	CheckDeposit(ctx context.Context, quoteID string) (bool, error)

	// ConfirmDeposit finalizes a paid quote.
	ConfirmDeposit(ctx context.Context, quoteID string, amountSats int64) (bool, error)

	// Balance returns the spendable balance in sats. Never negative.
	Balance(ctx context.Context) (int64, error)

	// Connected reports backend readiness: the NWC relay connection,
	// Breez node provisioning. Cashu is always ready.
	Connected() bool

	Close() error
}

// Balances maps backend id to spendable sats. Values are advisory
// snapshots for routing decisions; settlement correctness lives in
// the backends.
type Balances map[BackendID]int64

// Flags are the connection bits Pick needs alongside balances.
type Flags struct {
	NWCConnected     bool
	BreezProvisioned bool
}

// Pick resolves which backend a send or receive should use. Pure and
// deterministic: a pinned backend wins while it has a positive
// balance, otherwise the fixed priority order applies: NWC if
// connected with funds, then Breez if provisioned with funds, then
// Cashu as the always-available fallback (even at zero balance).
func Pick(policy string, balances Balances, flags Flags) BackendID {
	if policy != "" && policy != PolicyAuto {
		id := BackendID(policy)
		if balances[id] > 0 {
			return id
		}
	}

	if flags.NWCConnected && balances[BackendNWC] > 0 {
		return BackendNWC
	}
	if flags.BreezProvisioned && balances[BackendBreez] > 0 {
		return BackendBreez
	}
	return BackendCashu
}
