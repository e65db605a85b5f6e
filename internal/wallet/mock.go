package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// MockBackend implements Backend for testing and development mode.
// Deposits settle when SimulateSettle is called (or instantly with
// AutoSettle).
type MockBackend struct {
	id BackendID

	mu         sync.Mutex
	balance    int64
	connected  bool
	autoSettle bool
	paid       map[string]bool
	payErr     error
	paidOut    []string // invoices paid, for assertions
	received   []string // tokens redeemed
}

// NewMockBackend creates a connected mock with the given balance.
func NewMockBackend(id BackendID, balanceSats int64) *MockBackend {
	return &MockBackend{
		id:        id,
		balance:   balanceSats,
		connected: true,
		paid:      make(map[string]bool),
	}
}

func (m *MockBackend) ID() BackendID { return m.id }

func (m *MockBackend) Pay(ctx context.Context, amountSats int64, invoiceOrAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payErr != nil {
		return m.payErr
	}
	if amountSats > m.balance {
		return fmt.Errorf("insufficient balance: %d > %d", amountSats, m.balance)
	}
	m.balance -= amountSats
	m.paidOut = append(m.paidOut, invoiceOrAddress)
	return nil
}

func (m *MockBackend) ReceiveToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, token)
	return nil
}

func (m *MockBackend) Quote(ctx context.Context, bolt11 string) (int64, int64, error) {
	// Fixed amount and fee; real backends decode the invoice.
	return 1000, 10, nil
}

func (m *MockBackend) CreateDeposit(ctx context.Context, amountSats int64) (string, string, error) {
	id, err := randomID()
	if err != nil {
		return "", "", err
	}
	m.mu.Lock()
	if m.autoSettle {
		m.paid[id] = true
	}
	m.mu.Unlock()
	return "lnbc" + id[:20], id, nil
}

func (m *MockBackend) CheckDeposit(ctx context.Context, quoteID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paid[quoteID], nil
}

func (m *MockBackend) ConfirmDeposit(ctx context.Context, quoteID string, amountSats int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paid[quoteID] {
		return false, nil
	}
	m.balance += amountSats
	return true, nil
}

func (m *MockBackend) Balance(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *MockBackend) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBackend) Close() error { return nil }

// SimulateSettle marks a deposit quote as paid.
func (m *MockBackend) SimulateSettle(quoteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid[quoteID] = true
}

// SetAutoSettle makes every new deposit settle immediately, for dev
// mode where no payer exists.
func (m *MockBackend) SetAutoSettle(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoSettle = v
}

// SetConnected toggles the readiness flag.
func (m *MockBackend) SetConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

// SetPayError forces Pay to fail.
func (m *MockBackend) SetPayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payErr = err
}

// PaidInvoices returns what was paid, for test assertions.
func (m *MockBackend) PaidInvoices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paidOut...)
}

// ReceivedTokens returns redeemed tokens, for test assertions.
func (m *MockBackend) ReceivedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...)
}

func randomID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
