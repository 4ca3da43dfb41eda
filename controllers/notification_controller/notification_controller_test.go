package notification_controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newControllerRouter(d *Dispatcher) *gin.Engine {
	nc := NewNotificationController(d)
	router := gin.New()
	router.POST("/api/notifications", nc.Send)
	return router
}

func postNotification(router *gin.Engine, payload any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

func validRequest() gin.H {
	return gin.H{
		"fid":            42,
		"notificationId": "n1",
		"title":          "Booking update",
		"body":           "Your booking is confirmed.",
	}
}

func TestSendEndpointValidatesLimits(t *testing.T) {
	router := newControllerRouter(newTestDispatcher(newFakeTokenStore(), newFakeTokenCache()))

	req := validRequest()
	req["title"] = strings.Repeat("x", 33)
	w := postNotification(router, req, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = validRequest()
	req["body"] = strings.Repeat("x", 129)
	w = postNotification(router, req, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = validRequest()
	delete(req, "fid")
	w = postNotification(router, req, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendEndpointNoTokens(t *testing.T) {
	router := newControllerRouter(newTestDispatcher(newFakeTokenStore(), newFakeTokenCache()))

	w := postNotification(router, validRequest(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendEndpointRateLimited(t *testing.T) {
	store := newFakeTokenStore()
	store.add(42, "tok-1", "http://unused.invalid")
	tc := newFakeTokenCache()
	tc.rateLimited = true
	router := newControllerRouter(newTestDispatcher(store, tc))

	w := postNotification(router, validRequest(), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSendEndpointSkipHeaderBypassesQuota(t *testing.T) {
	srv := deliveryServer(t, func(string) string { return "ok" })
	defer srv.Close()

	store := newFakeTokenStore()
	store.add(42, "tok-1", srv.URL)
	tc := newFakeTokenCache()
	tc.rateLimited = true
	router := newControllerRouter(newTestDispatcher(store, tc))

	w := postNotification(router, validRequest(), map[string]string{"X-Skip-Rate-Limit": "true"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, tc.checks)
}

func TestSendEndpointHighPriorityBypassesQuota(t *testing.T) {
	srv := deliveryServer(t, func(string) string { return "ok" })
	defer srv.Close()

	store := newFakeTokenStore()
	store.add(42, "tok-1", srv.URL)
	tc := newFakeTokenCache()
	tc.rateLimited = true
	router := newControllerRouter(newTestDispatcher(store, tc))

	req := validRequest()
	req["priority"] = "high"
	w := postNotification(router, req, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
