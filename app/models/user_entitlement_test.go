package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 15)
	past := now.AddDate(0, 0, -1)

	tests := []struct {
		name string
		ent  UserEntitlement
		want bool
	}{
		{"no subscription", UserEntitlement{}, false},
		{"active with credits", UserEntitlement{SubscriptionExpiresAt: &future, SubscriptionCreditsRemaining: 5}, true},
		{"active without credits", UserEntitlement{SubscriptionExpiresAt: &future, SubscriptionCreditsRemaining: 0}, false},
		{"expired with credits", UserEntitlement{SubscriptionExpiresAt: &past, SubscriptionCreditsRemaining: 5}, false},
		{"expires exactly now", UserEntitlement{SubscriptionExpiresAt: &now, SubscriptionCreditsRemaining: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ent.SubscriptionActive(now))
		})
	}
}

func TestFreeUsedOn(t *testing.T) {
	morning := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC)

	t.Run("never used", func(t *testing.T) {
		e := UserEntitlement{}
		assert.False(t, e.FreeUsedOn(morning))
	})

	t.Run("same calendar day regardless of time", func(t *testing.T) {
		used := DateOnly(morning)
		e := UserEntitlement{FreeUsedDate: &used}
		assert.True(t, e.FreeUsedOn(evening))
	})

	t.Run("resets at midnight", func(t *testing.T) {
		used := DateOnly(evening)
		e := UserEntitlement{FreeUsedDate: &used}
		assert.False(t, e.FreeUsedOn(nextDay))
	})
}

func TestDateOnly(t *testing.T) {
	got := DateOnly(time.Date(2026, 3, 10, 23, 59, 59, 123, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got)
}
