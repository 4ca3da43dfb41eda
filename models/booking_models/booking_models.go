package booking_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/shared_models"
)

// Booking represents a scheduled consultation referenced by the calendar
// provider's booking id. A row may exist ownerless (created by the webhook
// before the user is known) and be claimed later; once claimed it is never
// duplicated or re-owned.
type Booking struct {
	BookingID     string     `json:"booking_id"`
	FID           *int64     `json:"fid,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	Status        string     `json:"status"`
	TxHash        *string    `json:"tx_hash,omitempty"`
	AttendeeName  string     `json:"attendee_name,omitempty"`
	AttendeeEmail string     `json:"attendee_email,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Guests        []string   `json:"guests,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Store performs booking persistence against Postgres.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const bookingColumns = `booking_id, fid, start_time, status, tx_hash, attendee_name, attendee_email, notes, guests, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	b := &Booking{}
	err := row.Scan(
		&b.BookingID, &b.FID, &b.StartTime, &b.Status, &b.TxHash,
		&b.AttendeeName, &b.AttendeeEmail, &b.Notes, &b.Guests,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpsertPending inserts a pending booking row for the provider id, or
// refreshes the metadata of an existing unclaimed row. A row that already
// has an owner is left completely untouched so replayed webhook data can
// never clobber a claimed or paid booking; the existing row is returned
// in that case.
func (s *Store) UpsertPending(ctx context.Context, b *Booking) (*Booking, error) {
	logger.InfoLogger.Infof("Upserting pending booking %s", b.BookingID)

	query := `
		INSERT INTO bookings (
			booking_id, fid, start_time, status, attendee_name, attendee_email, notes, guests, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		ON CONFLICT (booking_id) DO UPDATE SET
			fid            = COALESCE(bookings.fid, EXCLUDED.fid),
			start_time     = EXCLUDED.start_time,
			attendee_name  = EXCLUDED.attendee_name,
			attendee_email = EXCLUDED.attendee_email,
			notes          = EXCLUDED.notes,
			guests         = EXCLUDED.guests,
			updated_at     = NOW()
		WHERE bookings.fid IS NULL
		RETURNING ` + bookingColumns

	row, err := scanBooking(s.DB.QueryRow(ctx, query,
		b.BookingID, b.FID, b.StartTime, shared_models.BookingStatusPending,
		b.AttendeeName, b.AttendeeEmail, b.Notes, b.Guests,
	))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		logger.ErrorLogger.Errorf("Failed to upsert booking %s: %v", b.BookingID, err)
		return nil, fmt.Errorf("failed to upsert booking: %w", err)
	}

	// Conditional update did not fire: the row is already claimed. Return it
	// unchanged.
	existing, err := s.GetByID(ctx, b.BookingID)
	if err != nil {
		return nil, err
	}
	logger.InfoLogger.Infof("Booking %s already claimed by fid %v, upsert is a no-op", b.BookingID, existing.FID)
	return existing, nil
}

// Claim attaches an owner to an unclaimed booking row. The update is
// conditional on fid IS NULL so two near-simultaneous claim and webhook
// events cannot produce a lost update. Claiming a row you already own is a
// no-op; claiming someone else's row is a conflict. If the row does not
// exist yet (the client callback beat the webhook), a claimed pending row
// is created.
func (s *Store) Claim(ctx context.Context, bookingID string, fid int64) (*Booking, error) {
	logger.InfoLogger.Infof("Claiming booking %s for fid %d", bookingID, fid)

	query := `
		UPDATE bookings SET fid = $2, updated_at = NOW()
		WHERE booking_id = $1 AND fid IS NULL
		RETURNING ` + bookingColumns

	row, err := scanBooking(s.DB.QueryRow(ctx, query, bookingID, fid))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		logger.ErrorLogger.Errorf("Failed to claim booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("failed to claim booking: %w", err)
	}

	existing, err := s.GetByID(ctx, bookingID)
	if errors.Is(err, ErrBookingNotFound) {
		b := &Booking{
			BookingID: bookingID,
			FID:       &fid,
			Status:    shared_models.BookingStatusPending,
		}
		return s.insertClaimed(ctx, b)
	}
	if err != nil {
		return nil, err
	}

	if existing.FID != nil && *existing.FID == fid {
		return existing, nil
	}
	logger.WarnLogger.Warnf("Booking %s already claimed by fid %v, rejected claim by %d", bookingID, existing.FID, fid)
	return nil, ErrClaimConflict
}

func (s *Store) insertClaimed(ctx context.Context, b *Booking) (*Booking, error) {
	query := `
		INSERT INTO bookings (booking_id, fid, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING ` + bookingColumns

	row, err := scanBooking(s.DB.QueryRow(ctx, query, b.BookingID, b.FID, b.StartTime, b.Status))
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race with the webhook insert; retry the conditional claim.
		return s.Claim(ctx, b.BookingID, *b.FID)
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert claimed booking %s: %v", b.BookingID, err)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	return row, nil
}

// MarkConfirmed transitions a booking to confirmed and records the
// settlement transaction hash.
func (s *Store) MarkConfirmed(ctx context.Context, bookingID, txHash string) error {
	logger.InfoLogger.Infof("Marking booking %s confirmed (tx %s)", bookingID, txHash)

	cmdTag, err := s.DB.Exec(ctx, `
		UPDATE bookings SET status = $2, tx_hash = $3, updated_at = NOW()
		WHERE booking_id = $1`,
		bookingID, shared_models.BookingStatusConfirmed, txHash,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to confirm booking %s: %v", bookingID, err)
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateStatus transitions an existing booking's status. Unknown ids are an
// error, never an insert.
func (s *Store) UpdateStatus(ctx context.Context, bookingID, status string) error {
	if !shared_models.ValidBookingStatus(status) {
		return ErrInvalidStatus
	}
	logger.InfoLogger.Infof("Updating booking %s status to %s", bookingID, status)

	cmdTag, err := s.DB.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = NOW()
		WHERE booking_id = $1`,
		bookingID, status,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update booking %s status: %v", bookingID, err)
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ApplyProviderStatus records a provider-side cancellation or rejection.
// Unlike UpdateStatus this upserts: the provider may cancel a booking we
// never saw created, and its retries must not accumulate on a 404.
func (s *Store) ApplyProviderStatus(ctx context.Context, bookingID, status string) error {
	if status != shared_models.BookingStatusCanceled && status != shared_models.BookingStatusRejected {
		return ErrInvalidStatus
	}
	logger.InfoLogger.Infof("Applying provider status %s to booking %s", status, bookingID)

	_, err := s.DB.Exec(ctx, `
		INSERT INTO bookings (booking_id, status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (booking_id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`,
		bookingID, status,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to apply provider status to booking %s: %v", bookingID, err)
		return fmt.Errorf("failed to apply provider status: %w", err)
	}
	return nil
}

// GetByID fetches a booking by its provider id.
func (s *Store) GetByID(ctx context.Context, bookingID string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_id = $1`

	b, err := scanBooking(s.DB.QueryRow(ctx, query, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to fetch booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("failed to fetch booking: %w", err)
	}
	return b, nil
}

// ListByFID returns all bookings owned by fid, newest first.
func (s *Store) ListByFID(ctx context.Context, fid int64) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE fid = $1 ORDER BY created_at DESC`

	rows, err := s.DB.Query(ctx, query, fid)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list bookings for fid %d: %v", fid, err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
