package payment_controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowStoreGetDefaultsToIdle(t *testing.T) {
	fs := NewFlowStore()

	f := fs.Get("bk-1")
	assert.Equal(t, StateIdle, f.State)
	assert.Equal(t, "bk-1", f.BookingID)
}

func TestFlowHappyPath(t *testing.T) {
	fs := NewFlowStore()

	f, err := fs.Begin("bk-1", "0xpayer", StateApproving)
	require.NoError(t, err)
	assert.Equal(t, StateApproving, f.State)

	f, err = fs.Transition("bk-1", StateApproved, func(f *Flow) { f.ApproveTxHash = "0xa" })
	require.NoError(t, err)
	assert.Equal(t, "0xa", f.ApproveTxHash)

	_, err = fs.Transition("bk-1", StatePaying, func(f *Flow) { f.PayTxHash = "0xb" })
	require.NoError(t, err)
	_, err = fs.Transition("bk-1", StateConfirming, nil)
	require.NoError(t, err)
	f, err = fs.Transition("bk-1", StateConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, f.State)
}

func TestFlowSkipsApprovalWithSufficientAllowance(t *testing.T) {
	fs := NewFlowStore()

	f, err := fs.Begin("bk-1", "0xpayer", StateApproved)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, f.State)

	_, err = fs.Transition("bk-1", StatePaying, nil)
	assert.NoError(t, err)
}

func TestFlowRejectsIllegalTransitions(t *testing.T) {
	fs := NewFlowStore()

	// No flow begun at all.
	_, err := fs.Transition("bk-1", StatePaying, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fs.Begin("bk-1", "0xpayer", StateApproving)
	require.NoError(t, err)

	// Cannot pay before approval lands.
	_, err = fs.Transition("bk-1", StatePaying, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Cannot confirm out of approving.
	_, err = fs.Transition("bk-1", StateConfirmed, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFlowNoDoublePay(t *testing.T) {
	fs := NewFlowStore()

	_, err := fs.Begin("bk-1", "0xpayer", StateApproved)
	require.NoError(t, err)
	_, err = fs.Transition("bk-1", StatePaying, nil)
	require.NoError(t, err)

	// A second pay while one is in flight is rejected.
	_, err = fs.Transition("bk-1", StatePaying, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFlowErrorThenRetry(t *testing.T) {
	fs := NewFlowStore()

	_, err := fs.Begin("bk-1", "0xpayer", StateApproving)
	require.NoError(t, err)

	f := fs.Fail("bk-1", "approve transaction reverted")
	assert.Equal(t, StateError, f.State)
	assert.Equal(t, "approve transaction reverted", f.LastError)

	// Begin resets an errored flow cleanly.
	f, err = fs.Begin("bk-1", "0xpayer", StateApproved)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, f.State)
	assert.Empty(t, f.LastError)
	assert.Empty(t, f.ApproveTxHash)
}

func TestFlowConfirmedIsFinal(t *testing.T) {
	fs := NewFlowStore()

	_, err := fs.Begin("bk-1", "0xpayer", StateApproved)
	require.NoError(t, err)
	_, err = fs.Transition("bk-1", StatePaying, nil)
	require.NoError(t, err)
	_, err = fs.Transition("bk-1", StateConfirming, nil)
	require.NoError(t, err)
	_, err = fs.Transition("bk-1", StateConfirmed, nil)
	require.NoError(t, err)

	_, err = fs.Begin("bk-1", "0xpayer", StateApproving)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f := fs.Fail("bk-1", "should not apply")
	assert.Equal(t, StateConfirmed, f.State)
}
