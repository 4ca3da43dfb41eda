package webhook_controller

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/clients"
	"github.com/joy095/frame-booking/controllers/notification_controller"
	"github.com/joy095/frame-booking/logger"
)

// Farcaster frame webhook event kinds.
const (
	EventFrameAdded            = "frame_added"
	EventFrameRemoved          = "frame_removed"
	EventNotificationsEnabled  = "notifications_enabled"
	EventNotificationsDisabled = "notifications_disabled"
	EventFrameAddRejected      = "frame_add_rejected"
)

// TokenWriter is the slice of the token store the webhook consumes.
type TokenWriter interface {
	Save(ctx context.Context, fid int64, token, url string) error
	InvalidateAll(ctx context.Context, fid int64) error
}

// CacheWriter is the slice of the token cache the webhook consumes.
type CacheWriter interface {
	Put(ctx context.Context, fid int64, token, url string) error
	Invalidate(ctx context.Context, fid int64) error
}

// WebhookService processes signed Farcaster frame webhook events and
// projects them onto the notification token store.
type WebhookService struct {
	Tokens     TokenWriter
	Cache      CacheWriter
	Neynar     clients.NeynarClientWrapper
	Dispatcher *notification_controller.Dispatcher
	AppURL     string
}

func NewWebhookService(tokens TokenWriter, tokenCache CacheWriter, neynar clients.NeynarClientWrapper, dispatcher *notification_controller.Dispatcher, appURL string) *WebhookService {
	return &WebhookService{
		Tokens:     tokens,
		Cache:      tokenCache,
		Neynar:     neynar,
		Dispatcher: dispatcher,
		AppURL:     appURL,
	}
}

// eventEnvelope is the JSON Farcaster Signature format: base64url-encoded
// header and payload plus an Ed25519 signature over "header.payload".
type eventEnvelope struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type eventHeader struct {
	FID  int64  `json:"fid"`
	Type string `json:"type"` // "app_key"
	Key  string `json:"key"`  // 0x-prefixed hex Ed25519 public key
}

type notificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type eventPayload struct {
	Event               string               `json:"event"`
	NotificationDetails *notificationDetails `json:"notificationDetails"`
}

func decodeSegment(s string) ([]byte, error) {
	// Clients pad inconsistently; accept both raw and padded base64url.
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// verifyEnvelope authenticates the envelope: the Ed25519 signature must
// match the embedded app key, and Neynar must confirm the key belongs to
// the claimed fid.
func (s *WebhookService) verifyEnvelope(ctx context.Context, env *eventEnvelope) (*eventHeader, *eventPayload, error) {
	headerBytes, err := decodeSegment(env.Header)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed header encoding: %w", err)
	}
	header := &eventHeader{}
	if err := json.Unmarshal(headerBytes, header); err != nil {
		return nil, nil, fmt.Errorf("malformed header: %w", err)
	}
	if header.FID <= 0 || header.Type != "app_key" {
		return nil, nil, fmt.Errorf("unsupported header type %q", header.Type)
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(header.Key, "0x"))
	if err != nil || len(keyBytes) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("invalid app key")
	}

	sigBytes, err := decodeSegment(env.Signature)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return nil, nil, fmt.Errorf("invalid signature encoding")
	}

	signed := env.Header + "." + env.Payload
	if !ed25519.Verify(ed25519.PublicKey(keyBytes), []byte(signed), sigBytes) {
		return nil, nil, fmt.Errorf("signature verification failed")
	}

	valid, err := s.Neynar.ValidateAppKey(ctx, header.FID, header.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("app key validation failed: %w", err)
	}
	if !valid {
		return nil, nil, fmt.Errorf("app key does not belong to fid %d", header.FID)
	}

	payloadBytes, err := decodeSegment(env.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed payload encoding: %w", err)
	}
	payload := &eventPayload{}
	if err := json.Unmarshal(payloadBytes, payload); err != nil {
		return nil, nil, fmt.Errorf("malformed payload: %w", err)
	}
	return header, payload, nil
}

// HandleWebhook handles POST /api/webhook.
func (s *WebhookService) HandleWebhook(c *gin.Context) {
	var env eventEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook envelope"})
		return
	}
	if env.Header == "" || env.Payload == "" || env.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook envelope"})
		return
	}

	ctx := c.Request.Context()
	header, payload, err := s.verifyEnvelope(ctx, &env)
	if err != nil {
		logger.WarnLogger.Warnf("Webhook verification failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	fid := header.FID
	logger.InfoLogger.Infof("Frame webhook event %q for fid %d", payload.Event, fid)

	switch payload.Event {
	case EventFrameAdded, EventNotificationsEnabled:
		if payload.NotificationDetails != nil {
			s.enableNotifications(ctx, fid, payload.NotificationDetails, payload.Event == EventFrameAdded)
		}

	case EventFrameRemoved, EventNotificationsDisabled:
		if err := s.Tokens.InvalidateAll(ctx, fid); err != nil {
			logger.ErrorLogger.Errorf("Failed to invalidate tokens for fid %d: %v", fid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invalidate tokens"})
			return
		}
		if err := s.Cache.Invalidate(ctx, fid); err != nil {
			logger.ErrorLogger.Errorf("Failed to drop token cache for fid %d: %v", fid, err)
		}

	case EventFrameAddRejected:
		// Verified but unsupported: accept so the provider stops retrying.

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// enableNotifications upserts the delivery token and, on a fresh frame
// install, fires a one-time welcome message. Failures here are logged and
// swallowed: the webhook was received, and a 5xx would only make the
// provider replay it.
func (s *WebhookService) enableNotifications(ctx context.Context, fid int64, details *notificationDetails, welcome bool) {
	if err := s.Tokens.Save(ctx, fid, details.Token, details.URL); err != nil {
		logger.ErrorLogger.Errorf("Failed to save notification token for fid %d: %v", fid, err)
		return
	}
	if err := s.Cache.Put(ctx, fid, details.Token, details.URL); err != nil {
		logger.WarnLogger.Warnf("Failed to cache notification token for fid %d: %v", fid, err)
	}

	if !welcome || s.Dispatcher == nil {
		return
	}
	err := s.Dispatcher.Send(ctx, fid, notification_controller.Notification{
		ID:        fmt.Sprintf("welcome:%d:%d", fid, time.Now().Unix()),
		Title:     "Welcome to Life Advice! 👋",
		Body:      "You'll receive notifications for your bookings and updates.",
		TargetURL: s.AppURL,
	}, true)
	if err != nil {
		logger.WarnLogger.Warnf("Failed to send welcome notification to fid %d: %v", fid, err)
	}
}
