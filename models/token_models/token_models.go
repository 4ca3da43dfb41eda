package token_models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/frame-booking/logger"
)

// NotificationToken is a delivery credential for push-style notifications
// to one Farcaster client. A user can hold several (one per client/device).
// A token marked invalid is never selected for delivery again.
type NotificationToken struct {
	ID         uuid.UUID  `json:"id"`
	FID        int64      `json:"fid"`
	Token      string     `json:"token"`
	URL        string     `json:"url"`
	IsValid    bool       `json:"is_valid"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Store performs notification token persistence against Postgres.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Save upserts a token for fid, re-validating it if it was previously
// invalidated. Idempotent under webhook replay.
func (s *Store) Save(ctx context.Context, fid int64, token, url string) error {
	logger.InfoLogger.Infof("Saving notification token for fid %d", fid)

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate UUID: %w", err)
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO notification_tokens (id, fid, token, url, is_valid, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (fid, token) DO UPDATE SET url = EXCLUDED.url, is_valid = TRUE`,
		id, fid, token, url,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to save notification token for fid %d: %v", fid, err)
		return fmt.Errorf("failed to save notification token: %w", err)
	}
	return nil
}

// GetAllValid returns every valid token for fid.
func (s *Store) GetAllValid(ctx context.Context, fid int64) ([]*NotificationToken, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, fid, token, url, is_valid, created_at, last_used_at
		FROM notification_tokens
		WHERE fid = $1 AND is_valid = TRUE
		ORDER BY created_at DESC`,
		fid,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to fetch tokens for fid %d: %v", fid, err)
		return nil, fmt.Errorf("failed to fetch notification tokens: %w", err)
	}
	defer rows.Close()

	var out []*NotificationToken
	for rows.Next() {
		t := &NotificationToken{}
		if err := rows.Scan(&t.ID, &t.FID, &t.Token, &t.URL, &t.IsValid, &t.CreatedAt, &t.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InvalidateAll marks every token for fid invalid. Used on frame_removed
// and notifications_disabled events.
func (s *Store) InvalidateAll(ctx context.Context, fid int64) error {
	logger.InfoLogger.Infof("Invalidating all notification tokens for fid %d", fid)

	_, err := s.DB.Exec(ctx,
		`UPDATE notification_tokens SET is_valid = FALSE WHERE fid = $1`, fid)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to invalidate tokens for fid %d: %v", fid, err)
		return fmt.Errorf("failed to invalidate notification tokens: %w", err)
	}
	return nil
}

// Invalidate marks one specific token invalid, typically after the delivery
// endpoint reported it as invalid.
func (s *Store) Invalidate(ctx context.Context, fid int64, token string) error {
	logger.InfoLogger.Infof("Invalidating notification token for fid %d", fid)

	_, err := s.DB.Exec(ctx,
		`UPDATE notification_tokens SET is_valid = FALSE WHERE fid = $1 AND token = $2`, fid, token)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to invalidate token for fid %d: %v", fid, err)
		return fmt.Errorf("failed to invalidate notification token: %w", err)
	}
	return nil
}

// Touch records a successful delivery on the token.
func (s *Store) Touch(ctx context.Context, fid int64, token string) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE notification_tokens SET last_used_at = NOW() WHERE fid = $1 AND token = $2`, fid, token)
	if err != nil {
		return fmt.Errorf("failed to touch notification token: %w", err)
	}
	return nil
}

// ListFIDsWithValidTokens returns the distinct fids currently reachable,
// used for announcement broadcasts.
func (s *Store) ListFIDsWithValidTokens(ctx context.Context) ([]int64, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT DISTINCT fid FROM notification_tokens WHERE is_valid = TRUE`)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list reachable fids: %v", err)
		return nil, fmt.Errorf("failed to list reachable fids: %w", err)
	}
	defer rows.Close()

	var fids []int64
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			return nil, fmt.Errorf("failed to scan fid: %w", err)
		}
		fids = append(fids, fid)
	}
	return fids, rows.Err()
}
