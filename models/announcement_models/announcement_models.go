package announcement_models

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/frame-booking/logger"
)

// Announcement is a broadcast message shown in the frame and pushed to
// every reachable user.
type Announcement struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CastURL   *string   `json:"cast_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Create stores a new announcement and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, title, text string, castURL *string) (*Announcement, error) {
	logger.InfoLogger.Infof("Creating announcement %q", title)

	a := &Announcement{}
	err := s.DB.QueryRow(ctx, `
		INSERT INTO announcements (title, text, cast_url, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, title, text, cast_url, created_at`,
		title, text, castURL,
	).Scan(&a.ID, &a.Title, &a.Text, &a.CastURL, &a.CreatedAt)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to create announcement: %v", err)
		return nil, fmt.Errorf("failed to create announcement: %w", err)
	}
	return a, nil
}

// ListLatest returns up to limit announcements, newest first.
func (s *Store) ListLatest(ctx context.Context, limit int) ([]*Announcement, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.DB.Query(ctx, `
		SELECT id, title, text, cast_url, created_at
		FROM announcements ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list announcements: %v", err)
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	var out []*Announcement
	for rows.Next() {
		a := &Announcement{}
		if err := rows.Scan(&a.ID, &a.Title, &a.Text, &a.CastURL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
