package webhook_controller

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTokenWriter struct {
	saved          map[int64][2]string // fid -> token, url
	invalidatedAll []int64
}

func newFakeTokenWriter() *fakeTokenWriter {
	return &fakeTokenWriter{saved: make(map[int64][2]string)}
}

func (f *fakeTokenWriter) Save(_ context.Context, fid int64, token, url string) error {
	f.saved[fid] = [2]string{token, url}
	return nil
}

func (f *fakeTokenWriter) InvalidateAll(_ context.Context, fid int64) error {
	f.invalidatedAll = append(f.invalidatedAll, fid)
	return nil
}

type fakeCacheWriter struct {
	entries map[int64][2]string
}

func newFakeCacheWriter() *fakeCacheWriter {
	return &fakeCacheWriter{entries: make(map[int64][2]string)}
}

func (f *fakeCacheWriter) Put(_ context.Context, fid int64, token, url string) error {
	f.entries[fid] = [2]string{token, url}
	return nil
}

func (f *fakeCacheWriter) Invalidate(_ context.Context, fid int64) error {
	delete(f.entries, fid)
	return nil
}

type fakeNeynar struct {
	valid bool
	err   error
}

func (f *fakeNeynar) ValidateAppKey(context.Context, int64, string) (bool, error) {
	return f.valid, f.err
}

// signEnvelope builds a correctly signed Farcaster webhook envelope.
func signEnvelope(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey, fid int64, event string, details *notificationDetails) []byte {
	t.Helper()

	header, err := json.Marshal(eventHeader{
		FID:  fid,
		Type: "app_key",
		Key:  "0x" + hex.EncodeToString(pub),
	})
	require.NoError(t, err)

	payload, err := json.Marshal(eventPayload{Event: event, NotificationDetails: details})
	require.NoError(t, err)

	headerB64 := base64.RawURLEncoding.EncodeToString(header)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	sig := ed25519.Sign(priv, []byte(headerB64+"."+payloadB64))

	body, err := json.Marshal(eventEnvelope{
		Header:    headerB64,
		Payload:   payloadB64,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	})
	require.NoError(t, err)
	return body
}

type webhookFixture struct {
	svc    *WebhookService
	tokens *fakeTokenWriter
	cache  *fakeCacheWriter
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	router *gin.Engine
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tokens := newFakeTokenWriter()
	cacheWriter := newFakeCacheWriter()
	svc := NewWebhookService(tokens, cacheWriter, &fakeNeynar{valid: true}, nil, "https://frame.example")

	router := gin.New()
	router.POST("/api/webhook", svc.HandleWebhook)

	return &webhookFixture{svc: svc, tokens: tokens, cache: cacheWriter, priv: priv, pub: pub, router: router}
}

func (fx *webhookFixture) post(body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	fx.router.ServeHTTP(w, req)
	return w
}

func TestWebhookFrameAddedSavesToken(t *testing.T) {
	fx := newWebhookFixture(t)

	body := signEnvelope(t, fx.priv, fx.pub, 42, EventFrameAdded, &notificationDetails{
		URL:   "https://client.example/notify",
		Token: "tok-abc",
	})
	w := fx.post(body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, fx.tokens.saved, int64(42))
	assert.Equal(t, "tok-abc", fx.tokens.saved[42][0])
	assert.Equal(t, "https://client.example/notify", fx.tokens.saved[42][1])
	assert.Contains(t, fx.cache.entries, int64(42))
}

func TestWebhookNotificationsEnabled(t *testing.T) {
	fx := newWebhookFixture(t)

	body := signEnvelope(t, fx.priv, fx.pub, 42, EventNotificationsEnabled, &notificationDetails{
		URL:   "https://client.example/notify",
		Token: "tok-new",
	})
	w := fx.post(body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-new", fx.tokens.saved[42][0])
}

func TestWebhookFrameRemovedInvalidatesTokens(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.cache.entries[42] = [2]string{"tok-abc", "https://client.example/notify"}

	body := signEnvelope(t, fx.priv, fx.pub, 42, EventFrameRemoved, nil)
	w := fx.post(body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, fx.tokens.invalidatedAll, int64(42))
	assert.NotContains(t, fx.cache.entries, int64(42))
}

func TestWebhookBadSignature(t *testing.T) {
	fx := newWebhookFixture(t)

	// Sign with a key that does not match the one in the header.
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	body := signEnvelope(t, otherPriv, fx.pub, 42, EventFrameAdded, &notificationDetails{Token: "tok", URL: "https://x"})
	w := fx.post(body)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fx.tokens.saved)
}

func TestWebhookNeynarRejectsKey(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.svc.Neynar = &fakeNeynar{valid: false}

	body := signEnvelope(t, fx.priv, fx.pub, 42, EventFrameAdded, &notificationDetails{Token: "tok", URL: "https://x"})
	w := fx.post(body)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookNeynarError(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.svc.Neynar = &fakeNeynar{err: fmt.Errorf("upstream down")}

	body := signEnvelope(t, fx.priv, fx.pub, 42, EventFrameAdded, nil)
	w := fx.post(body)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookUnknownEvent(t *testing.T) {
	fx := newWebhookFixture(t)

	body := signEnvelope(t, fx.priv, fx.pub, 42, "frame_exploded", nil)
	w := fx.post(body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookFrameAddRejectedIsAccepted(t *testing.T) {
	fx := newWebhookFixture(t)

	body := signEnvelope(t, fx.priv, fx.pub, 42, EventFrameAddRejected, nil)
	w := fx.post(body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, fx.tokens.saved)
}

func TestWebhookMalformedEnvelope(t *testing.T) {
	fx := newWebhookFixture(t)

	w := fx.post([]byte(`{"header":"###","payload":"x","signature":"y"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.post([]byte(`{"header":""}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.post([]byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
