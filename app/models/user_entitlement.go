package models

import "time"

// UserEntitlement is the per-user quota record: the single source of truth
// for whether an analysis request may proceed. All mutations go through
// EntitlementRepository.ApplyAtomic; nothing reads, mutates and writes back
// outside of it.
type UserEntitlement struct {
	ID                           uint       `gorm:"primaryKey" json:"id"`
	UserID                       uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	FreeUsedDate                 *time.Time `gorm:"type:date;default:null" json:"free_used_date,omitempty"`
	PurchasedCredits             int        `gorm:"not null;default:0" json:"purchased_credits"`
	SubscriptionExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"subscription_expires_at,omitempty"`
	SubscriptionCreditsRemaining int        `gorm:"not null;default:0" json:"subscription_credits_remaining"`
	CreatedAt                    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SubscriptionActive reports whether the subscription window covers now and
// credits remain.
func (e *UserEntitlement) SubscriptionActive(now time.Time) bool {
	return e.SubscriptionExpiresAt != nil && now.Before(*e.SubscriptionExpiresAt) && e.SubscriptionCreditsRemaining > 0
}

// FreeUsedOn reports whether the free allotment was already consumed on the
// given calendar day. The stored value is a plain DATE, so only the calendar
// fields are compared.
func (e *UserEntitlement) FreeUsedOn(day time.Time) bool {
	if e.FreeUsedDate == nil {
		return false
	}
	y1, m1, d1 := e.FreeUsedDate.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DateOnly truncates t to its calendar date, the form FreeUsedDate is stored in.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
