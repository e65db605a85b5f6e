package deposit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"satroute/internal/logging"
	"satroute/internal/store"
)

var ErrQuoteNotFound = errors.New("deposit quote not found")

// MintFunc creates a new deposit quote at the backend: an invoice for
// the payer plus the quote id to poll.
type MintFunc func(ctx context.Context, amountSats int64) (invoiceText, quoteID string, err error)

// Manager owns the single live deposit poll sequence and persists
// quote records so open deposits survive a restart. Requesting a new
// deposit cancels the poller for the previous one.
type Manager struct {
	mint    MintFunc
	check   CheckFunc
	confirm ConfirmFunc
	store   store.Store
	tiers   []Tier

	mu     sync.Mutex
	poller *Poller
}

// NewManager creates a deposit manager. The store may be nil, in which
// case nothing is persisted (tests).
func NewManager(mint MintFunc, check CheckFunc, confirm ConfirmFunc, st store.Store) *Manager {
	return NewManagerWithTiers(mint, check, confirm, st, DefaultTiers)
}

// NewManagerWithTiers is NewManager with custom poll tiers.
func NewManagerWithTiers(mint MintFunc, check CheckFunc, confirm ConfirmFunc, st store.Store, tiers []Tier) *Manager {
	return &Manager{
		mint:    mint,
		check:   check,
		confirm: confirm,
		store:   st,
		tiers:   tiers,
	}
}

// NewDeposit creates a quote for the given amount and starts polling
// it. Any previously outstanding deposit is cancelled first.
func (m *Manager) NewDeposit(ctx context.Context, amountSats int64) (*Quote, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", amountSats)
	}

	invoice, quoteID, err := m.mint(ctx, amountSats)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit quote: %w", err)
	}

	quote := &Quote{
		InvoiceText: invoice,
		QuoteID:     quoteID,
		AmountSats:  amountSats,
		CreatedAt:   time.Now(),
	}

	if m.store != nil {
		rec := &store.DepositRecord{
			ID:          quote.QuoteID,
			InvoiceText: quote.InvoiceText,
			AmountSats:  quote.AmountSats,
			State:       store.DepositPending,
			CreatedAt:   quote.CreatedAt,
		}
		if err := m.store.SaveDeposit(ctx, rec); err != nil {
			logging.Poller.Printf("failed to persist deposit %s: %v", quote.QuoteID, err)
		}
	}

	m.startPolling(quote)
	logging.Poller.Printf("deposit %s created for %d sats", quoteID, amountSats)
	return quote, nil
}

func (m *Manager) startPolling(quote *Quote) {
	m.mu.Lock()
	if m.poller != nil {
		m.poller.Cancel()
	}
	p := NewPollerWithTiers(m.check, m.confirm, m.onState, m.tiers)
	m.poller = p
	m.mu.Unlock()

	p.Start(quote)
}

// onState persists terminal transitions.
func (m *Manager) onState(quoteID string, s State) {
	if m.store == nil || quoteID == "" {
		return
	}

	var dbState string
	switch s {
	case StateConfirmed:
		dbState = store.DepositConfirmed
	case StateFailed:
		dbState = store.DepositFailed
	case StateCancelled:
		dbState = store.DepositCancelled
	default:
		return
	}

	if err := m.store.UpdateDepositState(context.Background(), quoteID, dbState); err != nil {
		logging.Poller.Printf("failed to persist state %s for deposit %s: %v", dbState, quoteID, err)
	}
}

// Status returns the state of a deposit by quote id: the live poller
// state for the active quote, otherwise the persisted record.
func (m *Manager) Status(ctx context.Context, quoteID string) (State, error) {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()

	if p != nil {
		if q := p.Quote(); q != nil && q.QuoteID == quoteID {
			return p.State(), nil
		}
	}

	if m.store == nil {
		return StateIdle, ErrQuoteNotFound
	}
	rec, err := m.store.GetDeposit(ctx, quoteID)
	if err == store.ErrNotFound {
		return StateIdle, ErrQuoteNotFound
	}
	if err != nil {
		return StateIdle, err
	}

	switch rec.State {
	case store.DepositConfirmed:
		return StateConfirmed, nil
	case store.DepositFailed:
		return StateFailed, nil
	case store.DepositCancelled:
		return StateCancelled, nil
	default:
		// A pending record with no live poller is one that was
		// abandoned by a previous run.
		return StateCancelled, nil
	}
}

// Cancel stops polling the active deposit, if it matches quoteID.
func (m *Manager) Cancel(quoteID string) error {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()

	if p == nil {
		return ErrQuoteNotFound
	}
	q := p.Quote()
	if q == nil || q.QuoteID != quoteID {
		return ErrQuoteNotFound
	}
	p.Cancel()
	return nil
}

// Close cancels any active poll sequence.
func (m *Manager) Close() {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
}

// Recover resumes polling for the most recent open deposit from a
// previous run and marks any older open ones cancelled (there is only
// ever one live sequence).
func (m *Manager) Recover(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	open, err := m.store.ListOpenDeposits(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open deposits: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	for _, rec := range open[:len(open)-1] {
		if err := m.store.UpdateDepositState(ctx, rec.ID, store.DepositCancelled); err != nil {
			logging.Poller.Printf("failed to cancel stale deposit %s: %v", rec.ID, err)
		}
	}

	latest := open[len(open)-1]
	m.startPolling(&Quote{
		InvoiceText: latest.InvoiceText,
		QuoteID:     latest.ID,
		AmountSats:  latest.AmountSats,
		CreatedAt:   latest.CreatedAt,
	})
	logging.Poller.Printf("recovered open deposit %s (%d sats)", latest.ID, latest.AmountSats)
	return nil
}
