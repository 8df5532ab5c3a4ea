package models

import "time"

// Payment provider constants used across order-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderPayJS  = "payjs"
)

const (
	ProductTypeSingle       = "single"
	ProductTypeSubscription = "subscription"
)

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// Order records one payment attempt that reached the ledger. OrderNo is the
// provider-assigned identifier and doubles as the idempotency key: the unique
// index is what makes duplicate webhook deliveries safe. Once a row is paid
// its monetary fields never change.
type Order struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderNo     string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_orders_order_no" json:"order_no"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	ProductType string    `gorm:"type:varchar(20);not null" json:"product_type"`
	Amount      int64     `gorm:"not null;default:0" json:"amount"`
	Provider    string    `gorm:"type:varchar(20);not null" json:"provider"`
	Status      string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidProductType reports whether t names a purchasable product.
func IsValidProductType(t string) bool {
	switch t {
	case ProductTypeSingle, ProductTypeSubscription:
		return true
	default:
		return false
	}
}
