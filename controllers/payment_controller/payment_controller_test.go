package payment_controller

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/frame-booking/clients"
	"github.com/joy095/frame-booking/controllers/notification_controller"
	"github.com/joy095/frame-booking/models/booking_models"
	"github.com/joy095/frame-booking/models/payment_models"
	"github.com/joy095/frame-booking/models/shared_models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChain struct {
	allowance *big.Int
	receipts  map[string]*clients.TxReceipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{allowance: big.NewInt(0), receipts: make(map[string]*clients.TxReceipt)}
}

func (f *fakeChain) Allowance(context.Context, string) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, txHash string) (*clients.TxReceipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, clients.ErrTxNotFound
	}
	return r, nil
}

func (f *fakeChain) GetPayment(context.Context, *big.Int) (*clients.ChainPayment, error) {
	return &clients.ChainPayment{
		Name:   "Alice",
		Email:  "alice@example.com",
		Date:   big.NewInt(1767225600),
		Payer:  "0xpayer",
		Amount: big.NewInt(250_000_000),
		FID:    "42",
	}, nil
}

type fakeBookings struct {
	bookings map[string]*booking_models.Booking
}

func (f *fakeBookings) GetByID(_ context.Context, id string) (*booking_models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking_models.ErrBookingNotFound
	}
	return b, nil
}

func (f *fakeBookings) MarkConfirmed(_ context.Context, id, txHash string) error {
	b, ok := f.bookings[id]
	if !ok {
		return booking_models.ErrBookingNotFound
	}
	b.Status = shared_models.BookingStatusConfirmed
	b.TxHash = &txHash
	return nil
}

type fakeAttempts struct {
	attempts []*payment_models.PaymentAttempt
}

func (f *fakeAttempts) Record(_ context.Context, bookingID, txHash, status string, amount float64) (*payment_models.PaymentAttempt, error) {
	a := &payment_models.PaymentAttempt{BookingID: bookingID, TxHash: txHash, Status: status, Amount: amount}
	f.attempts = append(f.attempts, a)
	return a, nil
}

func (f *fakeAttempts) GetCompletedForBooking(_ context.Context, bookingID string) (*payment_models.PaymentAttempt, error) {
	for _, a := range f.attempts {
		if a.BookingID == bookingID && a.Status == shared_models.PaymentStatusCompleted {
			return a, nil
		}
	}
	return nil, payment_models.ErrAttemptNotFound
}

type fakeNotifier struct {
	sent []notification_controller.Notification
}

func (f *fakeNotifier) Send(_ context.Context, _ int64, n notification_controller.Notification, _ bool) error {
	f.sent = append(f.sent, n)
	return nil
}

type paymentFixture struct {
	pc       *PaymentController
	chain    *fakeChain
	bookings *fakeBookings
	attempts *fakeAttempts
	notifier *fakeNotifier
	router   *gin.Engine
}

func newPaymentFixture(t *testing.T, fid int64) *paymentFixture {
	t.Helper()

	chain := newFakeChain()
	bookings := &fakeBookings{bookings: make(map[string]*booking_models.Booking)}
	attempts := &fakeAttempts{}
	notifier := &fakeNotifier{}

	pc := NewPaymentController(bookings, attempts, chain, nil, notifier, nil, "https://frame.example")
	pc.PollEvery = time.Millisecond
	pc.PollMax = 50 * time.Millisecond

	router := gin.New()
	g := router.Group("/api/payments")
	g.Use(func(c *gin.Context) { c.Set("fid", fid) })
	{
		g.POST("/:booking_id/begin", pc.Begin)
		g.POST("/:booking_id/approve", pc.Approve)
		g.POST("/:booking_id/pay", pc.Pay)
		g.GET("/:booking_id/status", pc.Status)
		g.GET("/onchain/:payment_id", pc.OnChainRecord)
	}

	return &paymentFixture{pc: pc, chain: chain, bookings: bookings, attempts: attempts, notifier: notifier, router: router}
}

func (fx *paymentFixture) addBooking(id string, fid int64, status string) {
	fx.bookings.bookings[id] = &booking_models.Booking{
		BookingID:     id,
		FID:           &fid,
		Status:        status,
		AttendeeEmail: "alice@example.com",
	}
}

func (fx *paymentFixture) post(path string, payload any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	fx.router.ServeHTTP(w, req)
	return w
}

func TestBeginNeedsApproval(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Flow          Flow `json:"flow"`
		NeedsApproval bool `json:"needs_approval"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.NeedsApproval)
	assert.Equal(t, StateApproving, resp.Flow.State)
}

func TestBeginSkipsApprovalWhenAllowanceCoversFee(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)
	fx.chain.allowance = new(big.Int).Set(FeeUnits)

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Flow          Flow `json:"flow"`
		NeedsApproval bool `json:"needs_approval"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.NeedsApproval)
	assert.Equal(t, StateApproved, resp.Flow.State)
}

func TestBeginRejectsForeignBooking(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 7, shared_models.BookingStatusPending)

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBeginRejectsUnpayableBooking(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-canceled", 42, shared_models.BookingStatusCanceled)
	fx.addBooking("bk-paid", 42, shared_models.BookingStatusConfirmed)

	w := fx.post("/api/payments/bk-canceled/begin", gin.H{"payer_address": "0xpayer"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = fx.post("/api/payments/bk-paid/begin", gin.H{"payer_address": "0xpayer"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = fx.post("/api/payments/bk-ghost/begin", gin.H{"payer_address": "0xpayer"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveThenPaySettlesBooking(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)
	fx.chain.receipts["0xapprove"] = &clients.TxReceipt{TxHash: "0xapprove", Status: 1, BlockNumber: big.NewInt(100)}
	fx.chain.receipts["0xpay"] = &clients.TxReceipt{TxHash: "0xpay", Status: 1, BlockNumber: big.NewInt(101)}

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.post("/api/payments/bk-1/approve", gin.H{"tx_hash": "0xapprove"})
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xpay"})
	require.Equal(t, http.StatusOK, w.Code)

	b := fx.bookings.bookings["bk-1"]
	assert.Equal(t, shared_models.BookingStatusConfirmed, b.Status)
	require.NotNil(t, b.TxHash)
	assert.Equal(t, "0xpay", *b.TxHash)

	require.Len(t, fx.attempts.attempts, 1)
	assert.Equal(t, shared_models.PaymentStatusCompleted, fx.attempts.attempts[0].Status)

	require.Len(t, fx.notifier.sent, 1)
	assert.Equal(t, "Payment Successful! ✅", fx.notifier.sent[0].Title)

	assert.Equal(t, StateConfirmed, fx.pc.Flows.Get("bk-1").State)
}

func TestPayWithoutApprovalIsRejected(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)

	// Flow is still approving; pay must not be accepted.
	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xpay"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, fx.attempts.attempts)
}

func TestRevertedPaymentThenCleanRetry(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)
	fx.chain.allowance = new(big.Int).Set(FeeUnits)
	fx.chain.receipts["0xbad"] = &clients.TxReceipt{TxHash: "0xbad", Status: 0, BlockNumber: big.NewInt(100)}

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xbad"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// The failure was recorded, the booking stayed payable, the flow errored.
	require.Len(t, fx.attempts.attempts, 1)
	assert.Equal(t, shared_models.PaymentStatusFailed, fx.attempts.attempts[0].Status)
	assert.Equal(t, shared_models.BookingStatusPending, fx.bookings.bookings["bk-1"].Status)
	assert.Equal(t, StateError, fx.pc.Flows.Get("bk-1").State)

	// Retry runs the flow from the top.
	fx.chain.receipts["0xgood"] = &clients.TxReceipt{TxHash: "0xgood", Status: 1, BlockNumber: big.NewInt(101)}

	w = fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)
	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xgood"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, shared_models.BookingStatusConfirmed, fx.bookings.bookings["bk-1"].Status)
}

func TestNoDoublePay(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)
	fx.chain.allowance = new(big.Int).Set(FeeUnits)
	fx.chain.receipts["0xpay"] = &clients.TxReceipt{TxHash: "0xpay", Status: 1, BlockNumber: big.NewInt(100)}

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)
	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xpay"})
	require.Equal(t, http.StatusOK, w.Code)

	// A second settlement attempt is refused at every entry point.
	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xpay2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Len(t, fx.attempts.attempts, 1)
}

func TestPayTimesOutWaitingForReceipt(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)
	fx.chain.allowance = new(big.Int).Set(FeeUnits)

	w := fx.post("/api/payments/bk-1/begin", gin.H{"payer_address": "0xpayer"})
	require.Equal(t, http.StatusOK, w.Code)

	// No receipt ever appears for this hash.
	w = fx.post("/api/payments/bk-1/pay", gin.H{"tx_hash": "0xlost"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, StateError, fx.pc.Flows.Get("bk-1").State)
}

func TestOnChainRecord(t *testing.T) {
	fx := newPaymentFixture(t, 42)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/onchain/7", nil)
	fx.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Payment struct {
			Name   string `json:"name"`
			Amount string `json:"amount"`
			FID    string `json:"fid"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Alice", resp.Payment.Name)
	assert.Equal(t, "250000000", resp.Payment.Amount)
	assert.Equal(t, "42", resp.Payment.FID)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/payments/onchain/not-a-number", nil)
	fx.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	fx := newPaymentFixture(t, 42)
	fx.addBooking("bk-1", 42, shared_models.BookingStatusPending)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/bk-1/status", nil)
	fx.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Flow Flow `json:"flow"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StateIdle, resp.Flow.State)
}
