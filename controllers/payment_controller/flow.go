package payment_controller

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Payment flow states. The flow is client-driven: the wallet signs the
// approve and payment transactions in the frame, and the server walks the
// flow forward as it verifies each transaction on chain.
const (
	StateIdle       = "idle"
	StateApproving  = "approving"
	StateApproved   = "approved"
	StatePaying     = "paying"
	StateConfirming = "confirming"
	StateConfirmed  = "confirmed"
	StateError      = "error"
)

var ErrInvalidTransition = errors.New("invalid payment flow transition")

// validTransitions encodes the flow graph. Error is reachable from every
// non-terminal state; a flow in error resets to idle on the next begin.
var validTransitions = map[string][]string{
	StateIdle:       {StateApproving, StateApproved},
	StateApproving:  {StateApproved, StateError},
	StateApproved:   {StatePaying, StateError},
	StatePaying:     {StateConfirming, StateError},
	StateConfirming: {StateConfirmed, StateError},
	StateError:      {StateIdle},
}

// Flow is the in-memory payment progress for one booking.
type Flow struct {
	BookingID     string    `json:"booking_id"`
	State         string    `json:"state"`
	PayerAddress  string    `json:"payer_address,omitempty"`
	ApproveTxHash string    `json:"approve_tx_hash,omitempty"`
	PayTxHash     string    `json:"pay_tx_hash,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FlowStore tracks in-flight payment flows keyed by booking id. Flows are
// transient coordination state; durable outcomes live in the booking and
// payment attempt tables.
type FlowStore struct {
	mu    sync.Mutex
	flows map[string]*Flow
}

func NewFlowStore() *FlowStore {
	return &FlowStore{flows: make(map[string]*Flow)}
}

// Get returns a copy of the flow for bookingID, or an idle placeholder if
// none exists.
func (fs *FlowStore) Get(bookingID string) Flow {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if f, ok := fs.flows[bookingID]; ok {
		return *f
	}
	return Flow{BookingID: bookingID, State: StateIdle}
}

// Begin resets the booking's flow to a fresh one in state. A flow stuck in
// error (or abandoned mid-flight) is replaced; a confirmed flow is final.
func (fs *FlowStore) Begin(bookingID, payerAddress, state string) (Flow, error) {
	if state != StateApproving && state != StateApproved {
		return Flow{}, fmt.Errorf("%w: cannot begin in state %q", ErrInvalidTransition, state)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if f, ok := fs.flows[bookingID]; ok && f.State == StateConfirmed {
		return *f, fmt.Errorf("%w: payment already confirmed", ErrInvalidTransition)
	}

	f := &Flow{
		BookingID:    bookingID,
		State:        state,
		PayerAddress: payerAddress,
		UpdatedAt:    time.Now(),
	}
	fs.flows[bookingID] = f
	return *f, nil
}

// Transition moves the booking's flow to next, applying mutate under the
// lock. Illegal moves (paying twice, confirming from idle) are rejected.
func (fs *FlowStore) Transition(bookingID, next string, mutate func(*Flow)) (Flow, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.flows[bookingID]
	if !ok {
		return Flow{}, fmt.Errorf("%w: no flow in progress for booking %s", ErrInvalidTransition, bookingID)
	}

	allowed := false
	for _, s := range validTransitions[f.State] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return *f, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.State, next)
	}

	f.State = next
	f.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(f)
	}
	return *f, nil
}

// Fail moves the flow to error with a reason, if it is not already
// terminal.
func (fs *FlowStore) Fail(bookingID, reason string) Flow {
	f, err := fs.Transition(bookingID, StateError, func(f *Flow) {
		f.LastError = reason
	})
	if err != nil {
		return fs.Get(bookingID)
	}
	return f
}
