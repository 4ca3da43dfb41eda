package payment_controller

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/clients"
	"github.com/joy095/frame-booking/controllers/notification_controller"
	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/booking_models"
	"github.com/joy095/frame-booking/models/payment_models"
	"github.com/joy095/frame-booking/models/shared_models"
	"github.com/joy095/frame-booking/utils"
)

// ConsultationFeeUSDC is the flat consultation price. USDC carries six
// decimals, so the on-chain amount is the fee scaled by 1e6.
const ConsultationFeeUSDC = 250

// FeeUnits is ConsultationFeeUSDC in USDC base units.
var FeeUnits = new(big.Int).Mul(big.NewInt(ConsultationFeeUSDC), big.NewInt(1_000_000))

// BookingStore is the slice of the booking store the payment flow consumes.
type BookingStore interface {
	GetByID(ctx context.Context, bookingID string) (*booking_models.Booking, error)
	MarkConfirmed(ctx context.Context, bookingID, txHash string) error
}

// AttemptStore is the slice of the payment attempt store the flow consumes.
type AttemptStore interface {
	Record(ctx context.Context, bookingID, txHash, status string, amount float64) (*payment_models.PaymentAttempt, error)
	GetCompletedForBooking(ctx context.Context, bookingID string) (*payment_models.PaymentAttempt, error)
}

// Notifier delivers in-frame notifications after settlement.
type Notifier interface {
	Send(ctx context.Context, fid int64, n notification_controller.Notification, skipRateLimit bool) error
}

// Mailer sends the booking confirmation email after settlement.
type Mailer interface {
	SendBookingConfirmation(booking *booking_models.Booking, txHash string) error
}

// PaymentController drives the client-signed USDC payment flow: it
// validates bookings, verifies approve and payment transactions on chain,
// and settles the booking once the payment lands.
type PaymentController struct {
	Bookings  BookingStore
	Attempts  AttemptStore
	Chain     clients.ChainClientWrapper
	Cal       clients.CalClientWrapper // optional
	Notifier  Notifier                 // optional
	Mailer    Mailer                   // optional
	Flows     *FlowStore
	AppURL    string
	PollEvery time.Duration
	PollMax   time.Duration

	// Addresses the client needs to build its transactions.
	ContractAddress string
	USDCAddress     string
}

func NewPaymentController(bookings BookingStore, attempts AttemptStore, chain clients.ChainClientWrapper, cal clients.CalClientWrapper, notifier Notifier, mailer Mailer, appURL string) *PaymentController {
	return &PaymentController{
		Bookings:  bookings,
		Attempts:  attempts,
		Chain:     chain,
		Cal:       cal,
		Notifier:  notifier,
		Mailer:    mailer,
		Flows:     NewFlowStore(),
		AppURL:    appURL,
		PollEvery: 2 * time.Second,
		PollMax:   2 * time.Minute,
	}
}

// payableBooking loads the booking and verifies it belongs to fid and can
// still be paid for. Returns a gin-ready status and message on failure.
func (pc *PaymentController) payableBooking(ctx context.Context, bookingID string, fid int64) (*booking_models.Booking, int, string) {
	booking, err := pc.Bookings.GetByID(ctx, bookingID)
	if errors.Is(err, booking_models.ErrBookingNotFound) {
		return nil, http.StatusNotFound, "Booking not found"
	}
	if err != nil {
		return nil, http.StatusInternalServerError, "Failed to fetch booking"
	}
	if booking.FID == nil || *booking.FID != fid {
		return nil, http.StatusForbidden, "Booking belongs to another user"
	}

	switch booking.Status {
	case shared_models.BookingStatusConfirmed:
		return nil, http.StatusConflict, "Booking is already paid"
	case shared_models.BookingStatusCanceled, shared_models.BookingStatusRejected:
		return nil, http.StatusConflict, "Booking is no longer payable"
	}

	if _, err := pc.Attempts.GetCompletedForBooking(ctx, bookingID); err == nil {
		return nil, http.StatusConflict, "Booking is already paid"
	} else if !errors.Is(err, payment_models.ErrAttemptNotFound) {
		return nil, http.StatusInternalServerError, "Failed to check payment history"
	}

	return booking, 0, ""
}

type beginPaymentRequest struct {
	PayerAddress string `json:"payer_address" binding:"required"`
}

// Begin handles POST /api/payments/:booking_id/begin. It validates the
// booking, reads the payer's current USDC allowance and tells the client
// whether an approve transaction is needed before paying.
func (pc *PaymentController) Begin(c *gin.Context) {
	fid, err := utils.GetFIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req beginPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payer_address is required"})
		return
	}

	bookingID := c.Param("booking_id")
	ctx := c.Request.Context()

	if _, status, msg := pc.payableBooking(ctx, bookingID, fid); status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	allowance, err := pc.Chain.Allowance(ctx, req.PayerAddress)
	if err != nil {
		logger.ErrorLogger.Errorf("Allowance check for booking %s failed: %v", bookingID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read on-chain allowance"})
		return
	}

	state := StateApproving
	needsApproval := true
	if allowance.Cmp(FeeUnits) >= 0 {
		state = StateApproved
		needsApproval = false
	}

	flow, err := pc.Flows.Begin(bookingID, req.PayerAddress, state)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment already confirmed"})
		return
	}

	logger.InfoLogger.Infof("Payment flow for booking %s began in state %s (allowance %s)", bookingID, state, allowance.String())
	c.JSON(http.StatusOK, gin.H{
		"flow":             flow,
		"needs_approval":   needsApproval,
		"fee_usdc":         ConsultationFeeUSDC,
		"fee_units":        FeeUnits.String(),
		"contract_address": pc.ContractAddress,
		"usdc_address":     pc.USDCAddress,
	})
}

type txRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// Approve handles POST /api/payments/:booking_id/approve. The client has
// submitted the ERC-20 approve transaction; the server waits for its
// receipt and advances the flow.
func (pc *PaymentController) Approve(c *gin.Context) {
	if _, err := utils.GetFIDFromContext(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_hash is required"})
		return
	}

	bookingID := c.Param("booking_id")
	flow := pc.Flows.Get(bookingID)
	if flow.State != StateApproving {
		c.JSON(http.StatusConflict, gin.H{"error": "No approval pending", "flow": flow})
		return
	}

	receipt, err := pc.waitForReceipt(c.Request.Context(), req.TxHash)
	if err != nil || receipt.Status != 1 {
		reason := "approve transaction failed"
		if err != nil {
			reason = "approve transaction not confirmed: " + err.Error()
		}
		logger.WarnLogger.Warnf("Approval for booking %s failed: %s", bookingID, reason)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Approval failed", "flow": pc.Flows.Fail(bookingID, reason)})
		return
	}

	flow, err = pc.Flows.Transition(bookingID, StateApproved, func(f *Flow) {
		f.ApproveTxHash = req.TxHash
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": flow})
}

// Pay handles POST /api/payments/:booking_id/pay. The client has submitted
// the makeUSDCPayment transaction; the server waits for its receipt,
// settles the booking and fans out the confirmation side effects.
func (pc *PaymentController) Pay(c *gin.Context) {
	fid, err := utils.GetFIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_hash is required"})
		return
	}

	bookingID := c.Param("booking_id")
	ctx := c.Request.Context()

	booking, status, msg := pc.payableBooking(ctx, bookingID, fid)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	if _, err := pc.Flows.Transition(bookingID, StatePaying, func(f *Flow) {
		f.PayTxHash = req.TxHash
	}); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment is not ready to submit", "flow": pc.Flows.Get(bookingID)})
		return
	}
	if _, err := pc.Flows.Transition(bookingID, StateConfirming, nil); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	receipt, err := pc.waitForReceipt(ctx, req.TxHash)
	if err != nil || receipt.Status != 1 {
		reason := "payment transaction reverted"
		if err != nil {
			reason = "payment transaction not confirmed: " + err.Error()
		}
		logger.WarnLogger.Warnf("Payment for booking %s failed: %s", bookingID, reason)
		if _, recErr := pc.Attempts.Record(ctx, bookingID, req.TxHash, shared_models.PaymentStatusFailed, ConsultationFeeUSDC); recErr != nil {
			logger.ErrorLogger.Errorf("Failed to record failed payment for booking %s: %v", bookingID, recErr)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment failed", "flow": pc.Flows.Fail(bookingID, reason)})
		return
	}

	if err := pc.Bookings.MarkConfirmed(ctx, bookingID, req.TxHash); err != nil {
		logger.ErrorLogger.Errorf("Failed to confirm booking %s after payment: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment landed but booking update failed", "flow": pc.Flows.Fail(bookingID, "booking update failed")})
		return
	}
	if _, err := pc.Attempts.Record(ctx, bookingID, req.TxHash, shared_models.PaymentStatusCompleted, ConsultationFeeUSDC); err != nil {
		logger.ErrorLogger.Errorf("Failed to record completed payment for booking %s: %v", bookingID, err)
	}

	flow, err := pc.Flows.Transition(bookingID, StateConfirmed, nil)
	if err != nil {
		flow = pc.Flows.Get(bookingID)
	}

	pc.settleSideEffects(ctx, booking, fid, req.TxHash)

	logger.InfoLogger.Infof("Booking %s settled by tx %s", bookingID, req.TxHash)
	c.JSON(http.StatusOK, gin.H{"success": true, "flow": flow})
}

// OnChainRecord handles GET /api/payments/onchain/:payment_id, returning
// the escrow contract's stored record for a settled payment.
func (pc *PaymentController) OnChainRecord(c *gin.Context) {
	if _, err := utils.GetFIDFromContext(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	paymentID, ok := new(big.Int).SetString(c.Param("payment_id"), 10)
	if !ok || paymentID.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment id"})
		return
	}

	payment, err := pc.Chain.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		logger.ErrorLogger.Errorf("On-chain payment lookup %s failed: %v", paymentID.String(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read payment record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment": gin.H{
			"name":         payment.Name,
			"email":        payment.Email,
			"notes":        payment.AdditionalNotes,
			"date":         payment.Date.String(),
			"payer":        payment.Payer,
			"amount":       payment.Amount.String(),
			"fid":          payment.FID,
			"guest_emails": payment.GuestEmails,
		},
	})
}

// Status handles GET /api/payments/:booking_id/status.
func (pc *PaymentController) Status(c *gin.Context) {
	if _, err := utils.GetFIDFromContext(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": pc.Flows.Get(c.Param("booking_id"))})
}

// waitForReceipt polls for the transaction receipt until it appears or
// PollMax elapses. ErrTxNotFound means still pending and keeps the loop
// going; any other RPC error is terminal.
func (pc *PaymentController) waitForReceipt(ctx context.Context, txHash string) (*clients.TxReceipt, error) {
	deadline := time.Now().Add(pc.PollMax)
	ticker := time.NewTicker(pc.PollEvery)
	defer ticker.Stop()

	for {
		receipt, err := pc.Chain.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, clients.ErrTxNotFound) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for transaction")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// settleSideEffects fans out the post-settlement notification, email and
// provider acceptance. All three are best effort: the payment already
// landed, so failures are logged and never surfaced to the client.
func (pc *PaymentController) settleSideEffects(ctx context.Context, booking *booking_models.Booking, fid int64, txHash string) {
	if pc.Notifier != nil {
		err := pc.Notifier.Send(ctx, fid, notification_controller.Notification{
			ID:        "payment:" + booking.BookingID,
			Title:     "Payment Successful! ✅",
			Body:      "Your booking is confirmed. See you soon!",
			TargetURL: pc.AppURL,
		}, true)
		if err != nil {
			logger.WarnLogger.Warnf("Failed to send payment notification for booking %s: %v", booking.BookingID, err)
		}
	}

	if pc.Mailer != nil && booking.AttendeeEmail != "" {
		if err := pc.Mailer.SendBookingConfirmation(booking, txHash); err != nil {
			logger.WarnLogger.Warnf("Failed to send confirmation email for booking %s: %v", booking.BookingID, err)
		}
	}

	if pc.Cal != nil {
		if err := pc.Cal.UpdateBookingStatus(ctx, booking.BookingID, clients.CalStatusAccepted); err != nil {
			logger.WarnLogger.Warnf("Failed to accept booking %s on provider: %v", booking.BookingID, err)
		}
	}
}
