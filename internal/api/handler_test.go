package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"satroute/internal/deposit"
	"satroute/internal/lnurl"
	"satroute/internal/quote"
	"satroute/internal/router"
	"satroute/internal/wallet"
)

var fastTiers = []deposit.Tier{
	{Until: 100 * time.Millisecond, Interval: 5 * time.Millisecond},
	{Until: 0, Interval: 10 * time.Millisecond},
}

type testEnv struct {
	handler *Handler
	backend *wallet.MockBackend
	lnurlSrv *httptest.Server
}

func newTestEnv(t *testing.T, balance int64) *testEnv {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("GET /.well-known/lnurlp/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"callback":"%s/cb","minSendable":1000,"maxSendable":1000000000}`, srv.URL)
	})
	mux.HandleFunc("GET /cb", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pr":"lnbc1papi"}`)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	backend := wallet.NewMockBackend(wallet.BackendCashu, balance)
	registry := wallet.NewRegistry(backend)
	rt := router.New(registry, lnurl.NewResolverWithBase(srv.URL), nil, nil)

	deposits := deposit.NewManagerWithTiers(
		backend.CreateDeposit, backend.CheckDeposit, backend.ConfirmDeposit, nil, fastTiers)
	t.Cleanup(deposits.Close)

	quotes := quote.NewEngineWithDebounce(backend.Quote, nil, 5*time.Millisecond)
	t.Cleanup(quotes.Close)

	return &testEnv{
		handler: NewHandler(rt, deposits, registry, quotes),
		backend: backend,
		lnurlSrv: srv,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleSend(t *testing.T) {
	env := newTestEnv(t, 100000)

	w := doJSON(t, env.handler, "POST", "/api/send", SendRequest{
		Recipient:  "alice@example.com",
		AmountSats: 500,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp SendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Paid != "lnbc1papi" {
		t.Errorf("paid = %q, want resolved invoice", resp.Paid)
	}
	if resp.Backend != "cashu" {
		t.Errorf("backend = %q, want cashu", resp.Backend)
	}
	if got := env.backend.PaidInvoices(); len(got) != 1 {
		t.Errorf("backend paid %v, want one payment", got)
	}
}

func TestHandleSendErrors(t *testing.T) {
	tests := []struct {
		name       string
		req        SendRequest
		balance    int64
		wantStatus int
	}{
		{"empty recipient", SendRequest{Recipient: ""}, 100000, http.StatusBadRequest},
		{"address without amount", SendRequest{Recipient: "alice@example.com"}, 100000, http.StatusBadRequest},
		{"invoice without amount", SendRequest{Recipient: "lnbc1x"}, 100000, http.StatusBadRequest},
		{"token without confirm", SendRequest{Recipient: "cashuAabc"}, 100000, http.StatusBadRequest},
		{"insufficient funds", SendRequest{Recipient: "lnbc1x", AmountSats: 500}, 10, http.StatusPaymentRequired},
		{"unresolvable address", SendRequest{Recipient: "bob@example.com", AmountSats: 100}, 100000, http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.balance)
			w := doJSON(t, env.handler, "POST", "/api/send", tc.req)
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleSendRedeemConfirmed(t *testing.T) {
	env := newTestEnv(t, 1000)

	w := doJSON(t, env.handler, "POST", "/api/send", SendRequest{
		Recipient:     "cashuAeyJ0b2tlbiI6",
		ConfirmRedeem: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp SendResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Redeemed {
		t.Error("expected redeemed result")
	}
	if len(env.backend.ReceivedTokens()) != 1 {
		t.Error("expected token redeemed at backend")
	}
}

func TestHandleSendBoundsMessage(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("GET /.well-known/lnurlp/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"callback":"%s/cb","minSendable":1000,"maxSendable":100000}`, srv.URL)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	backend := wallet.NewMockBackend(wallet.BackendCashu, 100000)
	registry := wallet.NewRegistry(backend)
	rt := router.New(registry, lnurl.NewResolverWithBase(srv.URL), nil, nil)
	deposits := deposit.NewManagerWithTiers(
		backend.CreateDeposit, backend.CheckDeposit, backend.ConfirmDeposit, nil, fastTiers)
	defer deposits.Close()
	h := NewHandler(rt, deposits, registry, nil)

	w := doJSON(t, h, "POST", "/api/send", SendRequest{Recipient: "alice@example.com", AmountSats: 200})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "1-100") {
		t.Errorf("bounds error must carry limits in sats, got %q", body)
	}
}

func TestHandleClassify(t *testing.T) {
	env := newTestEnv(t, 0)

	w := doJSON(t, env.handler, "POST", "/api/classify", ClassifyRequest{Input: "alice@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp ClassifyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Kind != "lnurl_address" || resp.User != "alice" || resp.Domain != "example.com" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestQuotePreviewOverAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	w := doJSON(t, env.handler, "POST", "/api/quote", QuoteInputRequest{Input: "lnbc500n1xyz"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}

	// The engine answers after its debounce window; poll until it does.
	var state QuoteStateResponse
	deadline := time.Now().Add(time.Second)
	for !state.Valid {
		if time.Now().After(deadline) {
			t.Fatal("quote never arrived")
		}
		w = doJSON(t, env.handler, "GET", "/api/quote", nil)
		json.NewDecoder(w.Body).Decode(&state)
		time.Sleep(2 * time.Millisecond)
	}
	if state.AmountSats != 1000 || state.FeeSats != 10 {
		t.Errorf("quote = %+v, want amount 1000 fee 10", state)
	}
	if state.ForInput != "lnbc500n1xyz" {
		t.Errorf("for_input = %q", state.ForInput)
	}

	// Non-invoice input clears the quote.
	doJSON(t, env.handler, "POST", "/api/quote", QuoteInputRequest{Input: "alice@example.com"})
	w = doJSON(t, env.handler, "GET", "/api/quote", nil)
	state = QuoteStateResponse{}
	json.NewDecoder(w.Body).Decode(&state)
	if state.Valid {
		t.Errorf("quote survived non-invoice input: %+v", state)
	}
}

func TestQuoteEndpointsWithoutEngine(t *testing.T) {
	backend := wallet.NewMockBackend(wallet.BackendCashu, 0)
	registry := wallet.NewRegistry(backend)
	rt := router.New(registry, lnurl.NewResolver(), nil, nil)
	deposits := deposit.NewManagerWithTiers(
		backend.CreateDeposit, backend.CheckDeposit, backend.ConfirmDeposit, nil, fastTiers)
	defer deposits.Close()
	h := NewHandler(rt, deposits, registry, nil)

	if w := doJSON(t, h, "GET", "/api/quote", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestDepositLifecycleOverAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	w := doJSON(t, env.handler, "POST", "/api/deposit", DepositRequest{AmountSats: 1000})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var dep DepositResponse
	json.NewDecoder(w.Body).Decode(&dep)
	if dep.QuoteID == "" || dep.InvoiceText == "" {
		t.Fatalf("incomplete deposit: %+v", dep)
	}

	w = doJSON(t, env.handler, "GET", "/api/deposit/"+dep.QuoteID, nil)
	var status DepositStatusResponse
	json.NewDecoder(w.Body).Decode(&status)
	if status.State != "polling" {
		t.Errorf("state = %q, want polling", status.State)
	}

	env.backend.SimulateSettle(dep.QuoteID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = doJSON(t, env.handler, "GET", "/api/deposit/"+dep.QuoteID, nil)
		json.NewDecoder(w.Body).Decode(&status)
		if status.State == "confirmed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %q, want confirmed", status.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Confirmed deposit lands on the balance.
	bal, _ := env.backend.Balance(context.Background())
	if bal != 1000 {
		t.Errorf("balance = %d, want 1000 after confirm", bal)
	}
}

func TestDepositCancelOverAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	w := doJSON(t, env.handler, "POST", "/api/deposit", DepositRequest{AmountSats: 500})
	var dep DepositResponse
	json.NewDecoder(w.Body).Decode(&dep)

	w = doJSON(t, env.handler, "DELETE", "/api/deposit/"+dep.QuoteID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}

	w = doJSON(t, env.handler, "GET", "/api/deposit/"+dep.QuoteID, nil)
	var status DepositStatusResponse
	json.NewDecoder(w.Body).Decode(&status)
	if status.State != "cancelled" {
		t.Errorf("state = %q, want cancelled", status.State)
	}
}

func TestDepositValidation(t *testing.T) {
	env := newTestEnv(t, 0)

	if w := doJSON(t, env.handler, "POST", "/api/deposit", DepositRequest{AmountSats: 0}); w.Code != http.StatusBadRequest {
		t.Errorf("zero amount status = %d", w.Code)
	}
	if w := doJSON(t, env.handler, "GET", "/api/deposit/bad..id", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad quote id status = %d", w.Code)
	}
	if w := doJSON(t, env.handler, "GET", "/api/deposit/unknownquote", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown quote status = %d", w.Code)
	}
}

func TestHandleBalances(t *testing.T) {
	env := newTestEnv(t, 4200)

	w := doJSON(t, env.handler, "GET", "/api/balances", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp BalancesResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Balances["cashu"] != 4200 {
		t.Errorf("cashu balance = %d, want 4200", resp.Balances["cashu"])
	}
	if resp.Picked != "cashu" {
		t.Errorf("picked = %q, want cashu", resp.Picked)
	}
	if resp.Policy != "auto" {
		t.Errorf("policy = %q, want auto", resp.Policy)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, 100000)

	limited := RateLimit(RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         100,
		SendsPerMinute:    60,
		SendBurstSize:     2,
	})(env.handler)

	// Burst of sends from one IP: third one must be limited.
	var last int
	for i := 0; i < 3; i++ {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(SendRequest{Recipient: "lnbc1x", AmountSats: 10})
		req := httptest.NewRequest("POST", "/api/send", &buf)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third send status = %d, want 429", last)
	}

	// Status reads use the general limiter and still pass.
	req := httptest.NewRequest("GET", "/api/balances", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("balances status = %d, want 200", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t, 0)
	wrapped := CORS(CORSConfig{AllowedOrigins: []string{"https://wallet.example"}})(env.handler)

	req := httptest.NewRequest("OPTIONS", "/api/balances", nil)
	req.Header.Set("Origin", "https://wallet.example")
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://wallet.example" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/api/balances", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got header %q", got)
	}
}
