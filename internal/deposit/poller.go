package deposit

import (
	"context"
	"sync"
	"time"

	"satroute/internal/logging"
)

// State is the lifecycle of one deposit poll sequence.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateConfirmed State = "confirmed"
	// StateFailed means payment was detected but the confirm call did
	// not succeed. Terminal; the confirm is never retried.
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further polling will happen.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateCancelled
}

// Quote is an outstanding mint invoice waiting to be paid.
type Quote struct {
	InvoiceText string
	QuoteID     string
	AmountSats  int64
	CreatedAt   time.Time
}

// CheckFunc asks the backend whether the invoice behind a quote has
// been paid.
type CheckFunc func(ctx context.Context, quoteID string) (bool, error)

// ConfirmFunc finalizes a paid deposit (e.g. minting the tokens).
type ConfirmFunc func(ctx context.Context, quoteID string, amountSats int64) (bool, error)

// Tier maps a stretch of elapsed polling time to a poll interval. A
// zero Until means the tier applies forever.
type Tier struct {
	Until    time.Duration
	Interval time.Duration
}

// DefaultTiers trades latency against server load: poll aggressively
// while the payer is likely still looking at the invoice, then back
// off for abandoned ones. Elapsed time is measured from poll-sequence
// start, so a fresh deposit always begins at the fastest tier.
var DefaultTiers = []Tier{
	{Until: 30 * time.Second, Interval: 2 * time.Second},
	{Until: 2 * time.Minute, Interval: 3 * time.Second},
	{Until: 0, Interval: 5 * time.Second},
}

func intervalFor(elapsed time.Duration, tiers []Tier) time.Duration {
	for _, t := range tiers {
		if t.Until == 0 || elapsed < t.Until {
			return t.Interval
		}
	}
	return tiers[len(tiers)-1].Interval
}

// Poller watches a single outstanding deposit quote for settlement.
// There is never more than one scheduled timer per poller; starting a
// new sequence invalidates the previous one via the epoch counter.
type Poller struct {
	check   CheckFunc
	confirm ConfirmFunc
	tiers   []Tier
	onState func(quoteID string, s State)

	mu      sync.Mutex
	state   State
	quote   *Quote
	timer   *time.Timer
	started time.Time
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPoller creates a poller with the default backoff tiers. onState
// may be nil; when set it is invoked on every state transition.
func NewPoller(check CheckFunc, confirm ConfirmFunc, onState func(quoteID string, s State)) *Poller {
	return NewPollerWithTiers(check, confirm, onState, DefaultTiers)
}

// NewPollerWithTiers creates a poller with custom backoff tiers, used
// by tests to compress time.
func NewPollerWithTiers(check CheckFunc, confirm ConfirmFunc, onState func(quoteID string, s State), tiers []Tier) *Poller {
	return &Poller{
		check:   check,
		confirm: confirm,
		tiers:   tiers,
		onState: onState,
		state:   StateIdle,
	}
}

// Start begins polling the given quote. Any previous sequence is
// cancelled first; the new sequence starts back at the fastest tier.
func (p *Poller) Start(quote *Quote) {
	p.mu.Lock()
	p.cancelLocked()
	p.epoch++
	epoch := p.epoch
	p.quote = quote
	p.state = StatePolling
	p.started = time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	p.ctx = ctx
	p.cancel = cancel
	p.scheduleLocked(epoch)
	p.mu.Unlock()

	p.emit(quote.QuoteID, StatePolling)
}

// scheduleLocked arms the single timer for the next poll step. Caller
// holds the mutex.
func (p *Poller) scheduleLocked(epoch uint64) {
	interval := intervalFor(time.Since(p.started), p.tiers)
	p.timer = time.AfterFunc(interval, func() {
		p.step(epoch)
	})
}

func (p *Poller) step(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	quote := p.quote
	ctx := p.ctx
	p.mu.Unlock()

	paid, err := p.check(ctx, quote.QuoteID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient backend failure: keep polling, the cadence
		// already bounds request volume.
		logging.Poller.Printf("check failed for quote %s: %v", quote.QuoteID, err)
	}

	p.mu.Lock()
	if epoch != p.epoch || p.state != StatePolling {
		p.mu.Unlock()
		return
	}

	if !paid {
		p.scheduleLocked(epoch)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// Payment detected: confirm exactly once. Either outcome is
	// terminal for this sequence.
	ok, err := p.confirm(ctx, quote.QuoteID, quote.AmountSats)

	p.mu.Lock()
	if epoch != p.epoch || p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	final := StateConfirmed
	if err != nil || !ok {
		logging.Poller.Printf("confirm failed for quote %s: ok=%v err=%v", quote.QuoteID, ok, err)
		final = StateFailed
	}
	p.state = final
	p.mu.Unlock()

	p.emit(quote.QuoteID, final)
}

// Cancel stops the sequence. Idempotent; safe to call from teardown
// paths regardless of current state.
func (p *Poller) Cancel() {
	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	quoteID := ""
	if p.quote != nil {
		quoteID = p.quote.QuoteID
	}
	p.cancelLocked()
	p.epoch++
	p.state = StateCancelled
	p.mu.Unlock()

	p.emit(quoteID, StateCancelled)
}

func (p *Poller) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// State returns the current sequence state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Quote returns the quote being watched, or nil when idle.
func (p *Poller) Quote() *Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote
}

func (p *Poller) emit(quoteID string, s State) {
	if p.onState != nil {
		p.onState(quoteID, s)
	}
}
