package quote

import (
	"context"
	"sync"
	"time"

	"satroute/internal/intent"
	"satroute/internal/logging"
)

// DefaultDebounce is how long the engine waits after the last input
// change before asking the backend for a quote. Keystroke-driven input
// would otherwise flood the quote service.
const DefaultDebounce = 700 * time.Millisecond

// Quote is a transient amount+fee pair for one specific invoice.
type Quote struct {
	AmountSats int64
	FeeSats    int64
	ForInput   string
}

// Func fetches amount and fee for a BOLT11 invoice. Supplied by the
// wallet backend; treated as an opaque trusted operation.
type Func func(ctx context.Context, bolt11 string) (amountSats, feeSats int64, err error)

// UpdateFunc receives the new quote whenever it changes. A nil quote
// means the state was cleared (input changed away from an invoice, or
// the fetch failed and the caller should fall back to freeform amount
// entry).
type UpdateFunc func(q *Quote)

// Engine debounces quote fetches for a changing recipient input and
// guards against out-of-order async results. Only inputs that classify
// as bolt11 trigger a fetch; any other input clears the quote
// immediately so no stale fee or amount survives an input change.
type Engine struct {
	fetch    Func
	debounce time.Duration
	onUpdate UpdateFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64 // incremented on every input change; stale results are discarded
	input string
	quote *Quote
}

// NewEngine creates an engine with the default debounce window.
func NewEngine(fetch Func, onUpdate UpdateFunc) *Engine {
	return NewEngineWithDebounce(fetch, onUpdate, DefaultDebounce)
}

// NewEngineWithDebounce creates an engine with a custom debounce
// window. Tests use short windows to avoid wall-clock waits.
func NewEngineWithDebounce(fetch Func, onUpdate UpdateFunc, debounce time.Duration) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		fetch:    fetch,
		debounce: debounce,
		onUpdate: onUpdate,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetInput feeds the engine the current recipient string. Each call
// cancels any pending debounce timer; a fetch is only issued if the
// input survives unchanged for the full debounce window.
func (e *Engine) SetInput(raw string) {
	in := intent.Classify(raw)

	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.input = in.Raw
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	if in.Kind != intent.KindBolt11 {
		cleared := e.quote != nil
		e.quote = nil
		e.mu.Unlock()
		if cleared {
			e.notify(nil)
		}
		return
	}

	bolt11 := in.Raw
	e.timer = time.AfterFunc(e.debounce, func() {
		e.fire(bolt11, seq)
	})
	e.mu.Unlock()
}

func (e *Engine) fire(bolt11 string, seq uint64) {
	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	amount, fee, err := e.fetch(e.ctx, bolt11)

	e.mu.Lock()
	// The input may have changed while the fetch was in flight; a
	// stale result must never populate the quote.
	if seq != e.seq || e.input != bolt11 {
		e.mu.Unlock()
		return
	}
	if err != nil {
		logging.Internal.Printf("quote fetch failed: %v", err)
		e.quote = nil
		e.mu.Unlock()
		e.notify(nil)
		return
	}
	q := &Quote{AmountSats: amount, FeeSats: fee, ForInput: bolt11}
	e.quote = q
	e.mu.Unlock()
	e.notify(q)
}

func (e *Engine) notify(q *Quote) {
	if e.onUpdate != nil {
		e.onUpdate(q)
	}
}

// Current returns the latest quote, or nil if none is valid.
func (e *Engine) Current() *Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote
}

// Insufficient reports whether the given balance cannot cover the
// current quote's amount plus fee. With no quote it reports false;
// the caller validates freeform amounts itself in that case.
func (e *Engine) Insufficient(balanceSats int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quote == nil {
		return false
	}
	return balanceSats < e.quote.AmountSats+e.quote.FeeSats
}

// Close cancels any pending debounce timer and in-flight fetch;
// results still in flight are discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	e.seq++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	e.cancel()
}
