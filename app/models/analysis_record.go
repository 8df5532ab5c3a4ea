package models

import "time"

// AnalysisRecord is the append-only audit row written after each completed
// analysis. InputRef/OutputRef are opaque payload-store keys. ExpiresAt only
// governs how long the stored payloads are retained; it never feeds back
// into entitlement decisions.
type AnalysisRecord struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	Tier       string     `gorm:"type:varchar(20);not null" json:"tier"`
	InputRef   string     `gorm:"type:varchar(255);default:''" json:"input_ref"`
	OutputRef  string     `gorm:"type:varchar(255);default:''" json:"output_ref"`
	ModelUsed  string     `gorm:"type:varchar(64);default:''" json:"model_used"`
	TokensUsed int        `gorm:"not null;default:0" json:"tokens_used"`
	ExpiresAt  *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
