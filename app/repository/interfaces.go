package repository

import (
	"context"
	"time"

	"github.com/LinHaoYu/ContractLens/app/models"
)

// OrderUpsertResult tells the caller how UpsertIfAbsentOrPending resolved.
type OrderUpsertResult int

const (
	// OrderInserted means the order row did not exist and was created.
	OrderInserted OrderUpsertResult = iota
	// OrderUpdated means an existing non-paid row was moved to the new status.
	OrderUpdated
	// OrderAlreadyPaid means the row was already paid; the caller must treat
	// the delivery as a duplicate and apply no further effect.
	OrderAlreadyPaid
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Count() (int64, error)
}

// EntitlementRepository is the Entitlement Store: per-user quota state with
// an atomic read-modify-write primitive.
type EntitlementRepository interface {
	GetByUserID(ctx context.Context, userID uint) (*models.UserEntitlement, error)
	GetOrCreate(ctx context.Context, userID uint) (*models.UserEntitlement, error)
	// ApplyAtomic loads the entitlement row for userID under an exclusive
	// per-user lock, runs fn against it and persists the mutated row iff fn
	// returns nil. An error from fn aborts without writing and is returned
	// verbatim. No other ApplyAtomic for the same user interleaves.
	ApplyAtomic(ctx context.Context, userID uint, fn func(e *models.UserEntitlement) error) error
}

// OrderRepository is the Order Ledger.
type OrderRepository interface {
	// UpsertIfAbsentOrPending inserts the order, or transitions an existing
	// non-paid row to order.Status. A row that is already paid is never
	// touched; OrderAlreadyPaid is the idempotency signal for duplicate
	// payment notifications.
	UpsertIfAbsentOrPending(ctx context.Context, order *models.Order) (OrderUpsertResult, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.Order, int64, error)
}

// AnalysisRepository persists the append-only consumption audit trail.
type AnalysisRepository interface {
	Create(ctx context.Context, record *models.AnalysisRecord) error
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.AnalysisRecord, int64, error)
	// ListExpiredWithPayloads returns records whose retention window closed
	// before the given time and that still reference stored payloads.
	ListExpiredWithPayloads(ctx context.Context, before time.Time, limit int) ([]models.AnalysisRecord, error)
	// ClearPayloadRefs blanks the payload references after the objects were
	// deleted. The audit row itself stays.
	ClearPayloadRefs(ctx context.Context, id uint) error
}
