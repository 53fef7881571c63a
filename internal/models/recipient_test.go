package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipientStatusCanUpgradeTo(t *testing.T) {
	assert.True(t, RecipientStatusSent.CanUpgradeTo(RecipientStatusDelivered))
	assert.True(t, RecipientStatusSent.CanUpgradeTo(RecipientStatusRead))
	assert.True(t, RecipientStatusDelivered.CanUpgradeTo(RecipientStatusRead))
	assert.True(t, RecipientStatusRead.CanUpgradeTo(RecipientStatusCompleted))

	// ladder is forward-only
	assert.False(t, RecipientStatusDelivered.CanUpgradeTo(RecipientStatusSent))
	assert.False(t, RecipientStatusRead.CanUpgradeTo(RecipientStatusDelivered))
	assert.False(t, RecipientStatusDelivered.CanUpgradeTo(RecipientStatusDelivered))

	// states outside the ladder cannot move on callbacks
	assert.False(t, RecipientStatusPending.CanUpgradeTo(RecipientStatusDelivered))
	assert.False(t, RecipientStatusFailed.CanUpgradeTo(RecipientStatusDelivered))
	assert.False(t, RecipientStatusSent.CanUpgradeTo(RecipientStatusFailed))
}

func TestRecipientStatusDeliveryDelta(t *testing.T) {
	delta := RecipientStatusSent.DeliveryDelta(RecipientStatusDelivered)
	assert.Equal(t, 1, delta.Delivered)
	assert.Equal(t, 0, delta.Read)

	// a read receipt arriving first counts both rungs
	delta = RecipientStatusSent.DeliveryDelta(RecipientStatusRead)
	assert.Equal(t, 1, delta.Delivered)
	assert.Equal(t, 1, delta.Read)

	delta = RecipientStatusDelivered.DeliveryDelta(RecipientStatusRead)
	assert.Equal(t, 0, delta.Delivered)
	assert.Equal(t, 1, delta.Read)

	delta = RecipientStatusRead.DeliveryDelta(RecipientStatusCompleted)
	assert.Equal(t, 0, delta.Delivered)
	assert.Equal(t, 0, delta.Read)
}

func TestRecipientDispatchable(t *testing.T) {
	assert.True(t, (&RecipientState{Status: RecipientStatusPending}).Dispatchable())
	assert.True(t, (&RecipientState{Status: RecipientStatusRetrying}).Dispatchable())

	for _, s := range []RecipientStatus{
		RecipientStatusSent, RecipientStatusDelivered, RecipientStatusRead,
		RecipientStatusCompleted, RecipientStatusFailed, RecipientStatusSkipped,
	} {
		assert.False(t, (&RecipientState{Status: s}).Dispatchable(), string(s))
	}
}
