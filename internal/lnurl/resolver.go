package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"satroute/internal/logging"
)

// payParams is the JSON body served from the .well-known discovery
// endpoint. Amount bounds are in millisatoshis per the LNURL-pay
// convention.
type payParams struct {
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Tag         string `json:"tag"`
}

// callbackResponse is the JSON body returned from the callback URL.
type callbackResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// BoundsError reports a requested amount outside the advertised
// sendable range. Limits are exposed in sats so they can be shown to
// the user directly.
type BoundsError struct {
	AmountSats int64
	MinSats    int64
	MaxSats    int64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("amount %d sats outside allowed range %d-%d sats", e.AmountSats, e.MinSats, e.MaxSats)
}

// Resolver executes the two-step LNURL-pay exchange that turns a
// lightning address (user@domain) into a payable BOLT11 invoice.
// Params are fetched fresh for every resolution; nothing is cached.
type Resolver struct {
	httpClient *http.Client

	// baseURL overrides the https://{domain} origin, for tests.
	baseURL string
}

// NewResolver creates a resolver with a bounded request timeout.
func NewResolver() *Resolver {
	return &Resolver{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewResolverWithBase creates a resolver whose discovery and callback
// requests are issued against the given origin instead of
// https://{domain}. Used by tests to point at an httptest server.
func NewResolverWithBase(base string) *Resolver {
	r := NewResolver()
	r.baseURL = base
	return r
}

// Resolve turns user@domain plus a target amount into an invoice.
// Any network failure, malformed JSON, missing callback, or
// out-of-bounds amount comes back as an error; the function never
// panics past its boundary.
func (r *Resolver) Resolve(ctx context.Context, user, domain string, amountSats int64) (string, error) {
	params, err := r.fetchParams(ctx, user, domain)
	if err != nil {
		return "", fmt.Errorf("lnurl discovery for %s@%s: %w", user, domain, err)
	}

	amountMsat := amountSats * 1000
	if amountMsat < params.MinSendable || amountMsat > params.MaxSendable {
		return "", &BoundsError{
			AmountSats: amountSats,
			MinSats:    params.MinSendable / 1000,
			MaxSats:    params.MaxSendable / 1000,
		}
	}

	invoice, err := r.fetchInvoice(ctx, params.Callback, amountMsat)
	if err != nil {
		return "", fmt.Errorf("lnurl callback for %s@%s: %w", user, domain, err)
	}

	logging.LNURL.Printf("resolved %s@%s to invoice (%d sats)", user, domain, amountSats)
	return invoice, nil
}

func (r *Resolver) fetchParams(ctx context.Context, user, domain string) (*payParams, error) {
	url := r.wellKnownURL(user, domain)

	body, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var params payParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("failed to decode pay params: %w", err)
	}
	if params.Callback == "" {
		return nil, fmt.Errorf("pay params missing callback")
	}
	return &params, nil
}

func (r *Resolver) fetchInvoice(ctx context.Context, callback string, amountMsat int64) (string, error) {
	sep := "?"
	if strings.Contains(callback, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%samount=%d", callback, sep, amountMsat)

	body, err := r.get(ctx, url)
	if err != nil {
		return "", err
	}

	var resp callbackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode callback response: %w", err)
	}
	if strings.EqualFold(resp.Status, "ERROR") {
		return "", fmt.Errorf("service rejected request: %s", resp.Reason)
	}
	if resp.PR == "" {
		return "", fmt.Errorf("callback response missing invoice")
	}
	return resp.PR, nil
}

func (r *Resolver) wellKnownURL(user, domain string) string {
	if r.baseURL != "" {
		return fmt.Sprintf("%s/.well-known/lnurlp/%s", r.baseURL, user)
	}
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, user)
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
