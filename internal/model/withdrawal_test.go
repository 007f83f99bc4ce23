package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(WithdrawalStatusPending, WithdrawalStatusSent))
	assert.True(t, CanTransitionTo(WithdrawalStatusPending, WithdrawalStatusFailed))
	assert.False(t, CanTransitionTo(WithdrawalStatusSent, WithdrawalStatusFailed))
	assert.False(t, CanTransitionTo(WithdrawalStatusFailed, WithdrawalStatusSent))
	assert.False(t, CanTransitionTo(WithdrawalStatusSent, WithdrawalStatusPending))
	assert.False(t, CanTransitionTo("unknown", WithdrawalStatusSent))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleSeller))
	assert.False(t, ValidRole("seller"))
}
