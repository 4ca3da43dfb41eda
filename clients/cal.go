package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joy095/frame-booking/logger"
)

// CalClientWrapper provides an interface for Cal.com booking operations.
type CalClientWrapper interface {
	GetBooking(ctx context.Context, bookingID string) (*CalBooking, error)
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
}

// Cal.com-side booking status values.
const (
	CalStatusPending  = "PENDING"
	CalStatusAccepted = "ACCEPTED"
	CalStatusRejected = "REJECTED"
	CalStatusCanceled = "CANCELED"
)

// CalBooking is the subset of the Cal.com booking object this service
// reads.
type CalBooking struct {
	UID       string    `json:"uid"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status"`
	Responses struct {
		Name   string   `json:"name"`
		Email  string   `json:"email"`
		Notes  string   `json:"notes"`
		Guests []string `json:"guests"`
	} `json:"responses"`
}

// CalClient implements CalClientWrapper against the Cal.com v2 REST API.
type CalClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewCalClient creates a CalClient. baseURL is overridable for tests; pass
// "" for the production API.
func NewCalClient(apiKey, baseURL string) *CalClient {
	if baseURL == "" {
		baseURL = "https://api.cal.com/v2"
	}
	return &CalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *CalClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal Cal.com payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build Cal.com request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.ErrorLogger.Errorf("Cal.com request %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("cal.com request failed: %w", err)
	}
	return resp, nil
}

// GetBooking fetches a booking by its uid.
func (c *CalClient) GetBooking(ctx context.Context, bookingID string) (*CalBooking, error) {
	resp, err := c.do(ctx, http.MethodGet, "/bookings/"+bookingID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		logger.ErrorLogger.Errorf("Cal.com returned %d fetching booking %s: %s", resp.StatusCode, bookingID, string(b))
		return nil, fmt.Errorf("cal.com returned status %d", resp.StatusCode)
	}

	booking := &CalBooking{}
	if err := json.NewDecoder(resp.Body).Decode(booking); err != nil {
		return nil, fmt.Errorf("invalid Cal.com booking response: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatus patches the booking's status on the Cal.com side,
// e.g. to ACCEPTED after settlement.
func (c *CalClient) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	resp, err := c.do(ctx, http.MethodPatch, "/bookings/"+bookingID, map[string]string{"status": status})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		logger.ErrorLogger.Errorf("Cal.com returned %d updating booking %s: %s", resp.StatusCode, bookingID, string(b))
		return fmt.Errorf("cal.com returned status %d", resp.StatusCode)
	}
	return nil
}
