package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ============================================================================
// Transition table
// ============================================================================

var allowed = map[[2]Status]bool{
	{StatusProcessing, StatusShipped}:             true,
	{StatusProcessing, StatusCancelled}:           true,
	{StatusShipped, StatusDelivered}:              true,
	{StatusDelivered, StatusProcessingRefund}:     true,
	{StatusProcessingRefund, StatusRefundSuccess}: true,
	{StatusProcessingRefund, StatusRefundFailed}:  true,
}

func TestCanTransition_MatchesTableForEveryPair(t *testing.T) {
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("pending", StatusShipped))
	assert.False(t, CanTransition(StatusProcessing, "pending"))
}

func TestTransitionTo_RejectedLeavesOrderUnchanged(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			if allowed[[2]Status{from, to}] {
				continue
			}
			o := &Order{Status: from, UpdatedAt: now}
			err := o.TransitionTo(to, "nope", now.Add(time.Hour))

			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
			assert.Equal(t, from, o.Status)
			assert.Empty(t, o.Reason)
			assert.Equal(t, now, o.UpdatedAt)
		}
	}
}

func TestTransitionTo_HappyPathAndRefundScenario(t *testing.T) {
	now := time.Now().UTC()
	o := &Order{Status: StatusProcessing}

	err := o.TransitionTo(StatusDelivered, "", now)
	require.Error(t, err, "must pass through Shipped first")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, StatusProcessing, o.Status)

	for _, next := range []Status{StatusShipped, StatusDelivered, StatusProcessingRefund, StatusRefundSuccess} {
		require.NoError(t, o.TransitionTo(next, "", now), "-> %s", next)
		assert.Equal(t, next, o.Status)
	}

	err = o.TransitionTo(StatusProcessing, "", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, StatusRefundSuccess, o.Status)
}

func TestTransitionTo_KeepsPreviousReasonWhenEmpty(t *testing.T) {
	o := &Order{Status: StatusDelivered, Reason: ""}
	require.NoError(t, o.TransitionTo(StatusProcessingRefund, "broken on arrival", time.Now()))
	require.NoError(t, o.TransitionTo(StatusRefundFailed, "", time.Now()))
	assert.Equal(t, "broken on arrival", o.Reason)
}

// ============================================================================
// Terminal and refund helpers
// ============================================================================

func TestIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusDelivered:     true,
		StatusCancelled:     true,
		StatusRefundSuccess: true,
		StatusRefundFailed:  true,
	}
	for _, s := range Statuses() {
		assert.Equal(t, terminal[s], IsTerminal(s), string(s))
	}
}

func TestTerminalFinality(t *testing.T) {
	for _, s := range Statuses() {
		if !IsTerminal(s) {
			continue
		}
		for _, to := range Statuses() {
			if s == StatusDelivered && to == StatusProcessingRefund {
				continue
			}
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func TestNextStatuses_ReturnsCopy(t *testing.T) {
	next := NextStatuses(StatusProcessing)
	require.Len(t, next, 2)
	next[0] = StatusRefundFailed
	assert.True(t, CanTransition(StatusProcessing, StatusShipped))
	assert.Empty(t, NextStatuses(StatusCancelled))
}

func TestIsRefundOrder(t *testing.T) {
	for _, s := range Statuses() {
		want := s == StatusProcessingRefund || s == StatusRefundSuccess || s == StatusRefundFailed
		assert.Equal(t, want, IsRefundOrder(&Order{Status: s}), string(s))
	}
	assert.False(t, IsRefundOrder(nil))
	assert.ElementsMatch(t, []Status{StatusProcessingRefund, StatusRefundSuccess, StatusRefundFailed}, RefundStatuses())
}

func TestTriggersRestock(t *testing.T) {
	for _, s := range Statuses() {
		want := s == StatusCancelled || s == StatusRefundSuccess
		assert.Equal(t, want, TriggersRestock(s), string(s))
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("Processing refund")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessingRefund, s)

	_, err = ParseStatus("processing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	assert.True(t, IsValidStatus("Refund Failed"))
	assert.False(t, IsValidStatus(""))
}
