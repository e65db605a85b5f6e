package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Deposit states persisted alongside each quote record.
const (
	DepositPending   = "pending"
	DepositConfirmed = "confirmed"
	DepositFailed    = "failed"
	DepositCancelled = "cancelled"
)

// Payment outcomes.
const (
	PaymentSent   = "sent"
	PaymentFailed = "failed"
)

// DepositRecord is a persisted mint quote. Open records are recovered
// on restart so an invoice paid while the daemon was down is still
// detected.
type DepositRecord struct {
	ID          string // mint quote id
	InvoiceText string
	AmountSats  int64
	State       string
	CreatedAt   time.Time
}

// PaymentRecord is one entry in the payment history log.
type PaymentRecord struct {
	ID         string // local record id
	Recipient  string
	Kind       string // recipient classification at send time
	Backend    string
	AmountSats int64
	FeeSats    int64
	Status     string
	CreatedAt  time.Time
}

// Stats summarizes the ledger for the stats command.
type Stats struct {
	TotalPayments     int64
	SentPayments      int64
	FailedPayments    int64
	SentSats          int64
	TotalDeposits     int64
	ConfirmedDeposits int64
	DepositedSats     int64
}

// Store persists deposit quotes and payment history.
type Store interface {
	SaveDeposit(ctx context.Context, rec *DepositRecord) error
	UpdateDepositState(ctx context.Context, id, state string) error
	GetDeposit(ctx context.Context, id string) (*DepositRecord, error)
	ListOpenDeposits(ctx context.Context) ([]*DepositRecord, error)

	SavePayment(ctx context.Context, rec *PaymentRecord) error
	ListPayments(ctx context.Context, limit int) ([]*PaymentRecord, error)

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
