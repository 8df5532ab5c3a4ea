package repository

import (
	"context"

	"github.com/LinHaoYu/ContractLens/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order ledger repository backed by GORM.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// UpsertIfAbsentOrPending relies on the unique index on order_no: the insert
// is attempted first with ON CONFLICT DO NOTHING, and only when the row
// already exists is it locked and examined. Paid rows are terminal and are
// returned as OrderAlreadyPaid without modification.
func (r *orderRepository) UpsertIfAbsentOrPending(ctx context.Context, order *models.Order) (OrderUpsertResult, error) {
	result := OrderInserted
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		create := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_no"}},
			DoNothing: true,
		}).Create(order)
		if create.Error != nil {
			return create.Error
		}
		if create.RowsAffected > 0 {
			result = OrderInserted
			return nil
		}

		var stored models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_no = ?", order.OrderNo).
			First(&stored).Error; err != nil {
			return err
		}

		if stored.Status == models.OrderStatusPaid {
			*order = stored
			result = OrderAlreadyPaid
			return nil
		}

		stored.UserID = order.UserID
		stored.ProductType = order.ProductType
		stored.Amount = order.Amount
		stored.Provider = order.Provider
		stored.Status = order.Status
		if err := tx.Save(&stored).Error; err != nil {
			return err
		}
		*order = stored
		result = OrderUpdated
		return nil
	})
	return result, err
}

func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	return orders, total, err
}
