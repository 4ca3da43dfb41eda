package payment_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/frame-booking/logger"
)

var ErrAttemptNotFound = errors.New("payment attempt not found")

// PaymentAttempt associates a booking with a settlement transaction hash
// and its terminal state. One row per submitted payment transaction; the
// unique tx_hash constraint is what prevents a settlement from being
// recorded twice.
type PaymentAttempt struct {
	ID        uuid.UUID `json:"id"`
	BookingID string    `json:"booking_id"`
	TxHash    string    `json:"tx_hash"`
	Status    string    `json:"status"` // "completed" or "failed"
	Amount    float64   `json:"amount"` // USDC
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store performs payment attempt persistence against Postgres.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Record inserts the terminal result of a payment transaction. Re-recording
// the same tx hash updates the status rather than duplicating the row.
func (s *Store) Record(ctx context.Context, bookingID, txHash, status string, amount float64) (*PaymentAttempt, error) {
	logger.InfoLogger.Infof("Recording payment attempt for booking %s (tx %s, status %s)", bookingID, txHash, status)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID: %w", err)
	}

	a := &PaymentAttempt{}
	err = s.DB.QueryRow(ctx, `
		INSERT INTO payment_attempts (id, booking_id, tx_hash, status, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (tx_hash) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING id, booking_id, tx_hash, status, amount, created_at, updated_at`,
		id, bookingID, txHash, status, amount,
	).Scan(&a.ID, &a.BookingID, &a.TxHash, &a.Status, &a.Amount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to record payment attempt for booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}
	return a, nil
}

// GetByTxHash fetches a payment attempt by its transaction hash.
func (s *Store) GetByTxHash(ctx context.Context, txHash string) (*PaymentAttempt, error) {
	a := &PaymentAttempt{}
	err := s.DB.QueryRow(ctx, `
		SELECT id, booking_id, tx_hash, status, amount, created_at, updated_at
		FROM payment_attempts WHERE tx_hash = $1`,
		txHash,
	).Scan(&a.ID, &a.BookingID, &a.TxHash, &a.Status, &a.Amount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to fetch payment attempt %s: %v", txHash, err)
		return nil, fmt.Errorf("failed to fetch payment attempt: %w", err)
	}
	return a, nil
}

// GetCompletedForBooking returns the completed attempt for a booking, if
// any. Used to refuse starting a second payment for a settled booking.
func (s *Store) GetCompletedForBooking(ctx context.Context, bookingID string) (*PaymentAttempt, error) {
	a := &PaymentAttempt{}
	err := s.DB.QueryRow(ctx, `
		SELECT id, booking_id, tx_hash, status, amount, created_at, updated_at
		FROM payment_attempts
		WHERE booking_id = $1 AND status = 'completed'
		ORDER BY created_at DESC LIMIT 1`,
		bookingID,
	).Scan(&a.ID, &a.BookingID, &a.TxHash, &a.Status, &a.Amount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to fetch completed attempt for booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("failed to fetch payment attempt: %w", err)
	}
	return a, nil
}
