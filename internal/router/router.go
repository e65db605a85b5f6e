package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"satroute/internal/intent"
	"satroute/internal/logging"
	"satroute/internal/store"
	"satroute/internal/wallet"
)

var (
	ErrEmptyRecipient    = errors.New("recipient is empty")
	ErrInvalidAmount     = errors.New("amount must be a positive number of sats")
	ErrAmountRequired    = errors.New("amount is required for a lightning address")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrResolveFailed     = errors.New("could not resolve address")
	ErrPaymentFailed     = errors.New("transaction failed")
	ErrBusy              = errors.New("another payment is already processing")
	ErrRedeemDeclined    = errors.New("token redeem declined")
)

// Resolver turns a lightning address into a payable invoice.
type Resolver interface {
	Resolve(ctx context.Context, user, domain string, amountSats int64) (string, error)
}

// ConfirmPrompt asks the user whether a pasted Cashu token in the send
// field was meant to be redeemed instead of sent. Returning false
// aborts the operation.
type ConfirmPrompt func(ctx context.Context, token string) bool

// Result describes a completed routing operation.
type Result struct {
	Redeemed   bool // token was redeemed rather than a payment sent
	Backend    wallet.BackendID
	Paid       string // the invoice or raw string actually dispatched
	AmountSats int64
	FeeSats    int64
}

// Router orchestrates a send: classify, resolve, validate, pick a
// backend, dispatch. The store is optional and only feeds the payment
// history log.
type Router struct {
	registry *wallet.Registry
	resolver Resolver
	prompt   ConfirmPrompt
	store    store.Store

	policyMu sync.RWMutex
	policy   string

	// processing blocks duplicate submission; cleared on every exit
	// path so no dangling busy state can survive a failure.
	processing atomic.Bool
}

// New creates a router. resolver and prompt may be nil; a nil prompt
// declines every token redeem.
func New(registry *wallet.Registry, resolver Resolver, prompt ConfirmPrompt, st store.Store) *Router {
	return &Router{
		registry: registry,
		resolver: resolver,
		prompt:   prompt,
		store:    st,
		policy:   wallet.PolicyAuto,
	}
}

// SetPolicy pins a backend id, or wallet.PolicyAuto for automatic
// selection.
func (r *Router) SetPolicy(policy string) {
	r.policyMu.Lock()
	r.policy = policy
	r.policyMu.Unlock()
}

// Policy returns the current preference.
func (r *Router) Policy() string {
	r.policyMu.RLock()
	defer r.policyMu.RUnlock()
	return r.policy
}

// PickBackend re-evaluates preferred-wallet selection against fresh
// balances. Called on every send/receive initiation, never cached.
func (r *Router) PickBackend(ctx context.Context) (wallet.Backend, wallet.Balances, error) {
	balances := r.registry.RefreshBalances(ctx)
	id := wallet.Pick(r.Policy(), balances, r.registry.Flags())
	b, err := r.registry.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return b, balances, nil
}

// Send routes raw recipient input plus an amount to the right backend
// operation. amountSats may be zero when the input is an invoice the
// user expects to carry its own amount; it must be positive for
// lightning addresses.
func (r *Router) Send(ctx context.Context, raw string, amountSats int64) (*Result, error) {
	return r.SendWithPrompt(ctx, raw, amountSats, r.prompt)
}

// SendWithPrompt is Send with a per-call redeem prompt, for callers
// that collect the confirmation ahead of time (the HTTP API).
func (r *Router) SendWithPrompt(ctx context.Context, raw string, amountSats int64, prompt ConfirmPrompt) (*Result, error) {
	in := intent.Classify(raw)
	if !in.IsSendable() {
		return nil, ErrEmptyRecipient
	}

	if !r.processing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.processing.Store(false)

	if in.Kind == intent.KindCashuToken {
		return r.redeemToken(ctx, in, prompt)
	}

	if amountSats <= 0 {
		if in.Kind == intent.KindLnurlAddress {
			return nil, ErrAmountRequired
		}
		return nil, ErrInvalidAmount
	}

	target := in.Raw
	if in.Kind == intent.KindLnurlAddress {
		if r.resolver == nil {
			return nil, ErrResolveFailed
		}
		invoice, err := r.resolver.Resolve(ctx, in.User, in.Domain, amountSats)
		if err != nil {
			logging.Router.Printf("resolution failed for %s: %v", in.Raw, err)
			return nil, fmt.Errorf("%w: %w", ErrResolveFailed, err)
		}
		target = invoice
	}

	backend, balances, err := r.PickBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	var feeSats int64
	if in.Kind == intent.KindBolt11 {
		// Best effort: a quote failure falls back to checking the
		// bare amount rather than blocking the send.
		if _, fee, err := backend.Quote(ctx, target); err == nil {
			feeSats = fee
		}
	}
	if balances[backend.ID()] < amountSats+feeSats {
		return nil, ErrInsufficientFunds
	}

	if err := backend.Pay(ctx, amountSats, target); err != nil {
		logging.Router.Printf("pay failed via %s: %v", backend.ID(), err)
		r.record(in, backend.ID(), amountSats, feeSats, store.PaymentFailed)
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	logging.Router.Printf("sent %d sats via %s (%s)", amountSats, backend.ID(), in.Kind)
	r.record(in, backend.ID(), amountSats, feeSats, store.PaymentSent)

	return &Result{
		Backend:    backend.ID(),
		Paid:       target,
		AmountSats: amountSats,
		FeeSats:    feeSats,
	}, nil
}

// redeemToken handles the receive-intent conflict: a Cashu token in
// the send field is redeemed only after the user confirms that is
// what they meant.
func (r *Router) redeemToken(ctx context.Context, in intent.Intent, prompt ConfirmPrompt) (*Result, error) {
	if prompt == nil || !prompt(ctx, in.Raw) {
		return nil, ErrRedeemDeclined
	}

	backend, _, err := r.PickBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	if err := backend.ReceiveToken(ctx, in.Raw); err != nil {
		logging.Router.Printf("token redeem failed via %s: %v", backend.ID(), err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	logging.Router.Printf("redeemed token via %s", backend.ID())
	return &Result{Redeemed: true, Backend: backend.ID()}, nil
}

func (r *Router) record(in intent.Intent, backend wallet.BackendID, amountSats, feeSats int64, status string) {
	if r.store == nil {
		return
	}
	rec := &store.PaymentRecord{
		ID:         uuid.NewString(),
		Recipient:  in.Raw,
		Kind:       string(in.Kind),
		Backend:    string(backend),
		AmountSats: amountSats,
		FeeSats:    feeSats,
		Status:     status,
		CreatedAt:  time.Now(),
	}
	if err := r.store.SavePayment(context.Background(), rec); err != nil {
		logging.Router.Printf("failed to record payment: %v", err)
	}
}
