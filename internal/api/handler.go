package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"satroute/internal/deposit"
	"satroute/internal/intent"
	"satroute/internal/lnurl"
	"satroute/internal/logging"
	"satroute/internal/quote"
	"satroute/internal/router"
	"satroute/internal/wallet"
)

var validQuoteIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Handler exposes the payment core over a localhost HTTP API. It is
// the daemon's stand-in for the wallet UI: every route maps onto one
// core operation and its progress states.
type Handler struct {
	router   *router.Router
	deposits *deposit.Manager
	registry *wallet.Registry
	quotes   *quote.Engine
	mux      *http.ServeMux
}

// NewHandler creates the API handler. quotes may be nil, in which case
// the quote preview endpoints report 503.
func NewHandler(rt *router.Router, deposits *deposit.Manager, registry *wallet.Registry, quotes *quote.Engine) *Handler {
	h := &Handler{
		router:   rt,
		deposits: deposits,
		registry: registry,
		quotes:   quotes,
		mux:      http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/send", h.handleSend)
	h.mux.HandleFunc("POST /api/classify", h.handleClassify)
	h.mux.HandleFunc("POST /api/quote", h.handleQuoteInput)
	h.mux.HandleFunc("GET /api/quote", h.handleQuoteState)
	h.mux.HandleFunc("POST /api/deposit", h.handleNewDeposit)
	h.mux.HandleFunc("GET /api/deposit/{id}", h.handleDepositStatus)
	h.mux.HandleFunc("DELETE /api/deposit/{id}", h.handleCancelDeposit)
	h.mux.HandleFunc("GET /api/balances", h.handleBalances)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func isValidQuoteID(id string) bool {
	return id != "" && len(id) <= 128 && validQuoteIDPattern.MatchString(id)
}

// SendRequest is the request body for dispatching a payment.
type SendRequest struct {
	Recipient string `json:"recipient"`
	// AmountSats may be zero for invoices carrying their own amount.
	AmountSats int64 `json:"amount_sats"`
	// ConfirmRedeem acknowledges that a pasted Cashu token should be
	// redeemed rather than treated as a send target.
	ConfirmRedeem bool `json:"confirm_redeem"`
}

// SendResponse reports a completed dispatch.
type SendResponse struct {
	Redeemed   bool   `json:"redeemed"`
	Backend    string `json:"backend"`
	Paid       string `json:"paid,omitempty"`
	AmountSats int64  `json:"amount_sats,omitempty"`
	FeeSats    int64  `json:"fee_sats,omitempty"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The HTTP client answers the redeem prompt up front via the
	// confirm_redeem field.
	prompt := func(ctx context.Context, token string) bool { return req.ConfirmRedeem }
	res, err := h.router.SendWithPrompt(r.Context(), req.Recipient, req.AmountSats, prompt)
	if err != nil {
		writeSendError(w, err)
		return
	}

	writeJSON(w, SendResponse{
		Redeemed:   res.Redeemed,
		Backend:    string(res.Backend),
		Paid:       res.Paid,
		AmountSats: res.AmountSats,
		FeeSats:    res.FeeSats,
	})
}

// writeSendError maps the router's error taxonomy onto HTTP statuses
// so the UI can distinguish validation problems, missing funds, and
// backend failures.
func writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, router.ErrEmptyRecipient),
		errors.Is(err, router.ErrInvalidAmount),
		errors.Is(err, router.ErrAmountRequired),
		errors.Is(err, router.ErrRedeemDeclined):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, router.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, router.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, router.ErrResolveFailed):
		var bounds *lnurl.BoundsError
		if errors.As(err, &bounds) {
			http.Error(w, bounds.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "could not resolve address", http.StatusUnprocessableEntity)
	default:
		http.Error(w, "transaction failed", http.StatusBadGateway)
	}
}

// ClassifyRequest is the request body for a classification preview.
type ClassifyRequest struct {
	Input string `json:"input"`
}

// ClassifyResponse mirrors the intent union for the UI.
type ClassifyResponse struct {
	Kind   string `json:"kind"`
	User   string `json:"user,omitempty"`
	Domain string `json:"domain,omitempty"`
}

func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	in := intent.Classify(req.Input)
	writeJSON(w, ClassifyResponse{
		Kind:   string(in.Kind),
		User:   in.User,
		Domain: in.Domain,
	})
}

// QuoteInputRequest feeds the debounced quote engine the current
// recipient field contents. The engine answers asynchronously; the UI
// polls GET /api/quote for the result.
type QuoteInputRequest struct {
	Input string `json:"input"`
}

// QuoteStateResponse is the current quote snapshot. Valid is false
// while no quote exists (non-invoice input, fetch pending or failed).
type QuoteStateResponse struct {
	Valid      bool   `json:"valid"`
	AmountSats int64  `json:"amount_sats,omitempty"`
	FeeSats    int64  `json:"fee_sats,omitempty"`
	ForInput   string `json:"for_input,omitempty"`
}

func (h *Handler) handleQuoteInput(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		http.Error(w, "quote engine not configured", http.StatusServiceUnavailable)
		return
	}

	var req QuoteInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.quotes.SetInput(req.Input)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleQuoteState(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		http.Error(w, "quote engine not configured", http.StatusServiceUnavailable)
		return
	}

	q := h.quotes.Current()
	if q == nil {
		writeJSON(w, QuoteStateResponse{Valid: false})
		return
	}
	writeJSON(w, QuoteStateResponse{
		Valid:      true,
		AmountSats: q.AmountSats,
		FeeSats:    q.FeeSats,
		ForInput:   q.ForInput,
	})
}

// DepositRequest is the request body for creating a deposit quote.
type DepositRequest struct {
	AmountSats int64 `json:"amount_sats"`
}

// DepositResponse returns the invoice the payer must settle.
type DepositResponse struct {
	QuoteID     string `json:"quote_id"`
	InvoiceText string `json:"invoice_text"`
	AmountSats  int64  `json:"amount_sats"`
}

func (h *Handler) handleNewDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AmountSats <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	dq, err := h.deposits.NewDeposit(r.Context(), req.AmountSats)
	if err != nil {
		logging.Internal.Printf("failed to create deposit: %v", err)
		http.Error(w, "failed to create deposit", http.StatusBadGateway)
		return
	}

	writeJSON(w, DepositResponse{
		QuoteID:     dq.QuoteID,
		InvoiceText: dq.InvoiceText,
		AmountSats:  dq.AmountSats,
	})
}

// DepositStatusResponse is the poll result for a deposit quote.
type DepositStatusResponse struct {
	QuoteID string `json:"quote_id"`
	State   string `json:"state"`
}

func (h *Handler) handleDepositStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isValidQuoteID(id) {
		http.Error(w, "invalid quote id", http.StatusBadRequest)
		return
	}

	state, err := h.deposits.Status(r.Context(), id)
	if err == deposit.ErrQuoteNotFound {
		http.Error(w, "deposit not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to get status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, DepositStatusResponse{QuoteID: id, State: string(state)})
}

func (h *Handler) handleCancelDeposit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isValidQuoteID(id) {
		http.Error(w, "invalid quote id", http.StatusBadRequest)
		return
	}

	if err := h.deposits.Cancel(id); err != nil {
		http.Error(w, "deposit not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// BalancesResponse is the refreshed balance snapshot plus the backend
// a send would currently pick.
type BalancesResponse struct {
	Balances map[string]int64 `json:"balances"`
	Picked   string           `json:"picked"`
	Policy   string           `json:"policy"`
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances := h.registry.RefreshBalances(r.Context())
	picked := wallet.Pick(h.router.Policy(), balances, h.registry.Flags())

	out := make(map[string]int64, len(balances))
	for id, bal := range balances {
		out[string(id)] = bal
	}

	writeJSON(w, BalancesResponse{
		Balances: out,
		Picked:   string(picked),
		Policy:   h.router.Policy(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Internal.Printf("failed to encode response: %v", err)
	}
}
