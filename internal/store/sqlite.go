package store

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS deposits (
			id TEXT PRIMARY KEY,
			invoice_text TEXT NOT NULL,
			amount_sats INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			recipient TEXT NOT NULL,
			kind TEXT NOT NULL,
			backend TEXT NOT NULL,
			amount_sats INTEGER NOT NULL,
			fee_sats INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	return err
}

func (s *SQLiteStore) SaveDeposit(ctx context.Context, rec *DepositRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, invoice_text, amount_sats, state, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.InvoiceText, rec.AmountSats, rec.State, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) UpdateDepositState(ctx context.Context, id, state string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE deposits SET state = ? WHERE id = ?
	`, state, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetDeposit(ctx context.Context, id string) (*DepositRecord, error) {
	rec := &DepositRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_text, amount_sats, state, created_at
		FROM deposits WHERE id = ?
	`, id).Scan(&rec.ID, &rec.InvoiceText, &rec.AmountSats, &rec.State, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListOpenDeposits(ctx context.Context) ([]*DepositRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_text, amount_sats, state, created_at
		FROM deposits WHERE state = ? ORDER BY created_at ASC
	`, DepositPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DepositRecord
	for rows.Next() {
		rec := &DepositRecord{}
		if err := rows.Scan(&rec.ID, &rec.InvoiceText, &rec.AmountSats, &rec.State, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SavePayment(ctx context.Context, rec *PaymentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, recipient, kind, backend, amount_sats, fee_sats, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Recipient, rec.Kind, rec.Backend, rec.AmountSats, rec.FeeSats, rec.Status, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) ListPayments(ctx context.Context, limit int) ([]*PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, kind, backend, amount_sats, fee_sats, status, created_at
		FROM payments ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PaymentRecord
	for rows.Next() {
		rec := &PaymentRecord{}
		if err := rows.Scan(&rec.ID, &rec.Recipient, &rec.Kind, &rec.Backend,
			&rec.AmountSats, &rec.FeeSats, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'sent' THEN amount_sats ELSE 0 END), 0)
		FROM payments
	`).Scan(&stats.TotalPayments, &stats.SentPayments, &stats.FailedPayments, &stats.SentSats)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state = 'confirmed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'confirmed' THEN amount_sats ELSE 0 END), 0)
		FROM deposits
	`).Scan(&stats.TotalDeposits, &stats.ConfirmedDeposits, &stats.DepositedSats)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
