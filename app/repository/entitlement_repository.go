package repository

import (
	"context"
	"errors"

	"github.com/LinHaoYu/ContractLens/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entitlementRepository implements EntitlementRepository on GORM/MySQL.
// Per-user isolation comes from SELECT ... FOR UPDATE on the unique user_id
// index inside a transaction: two concurrent ApplyAtomic calls for the same
// user serialize on the row lock, so a check-then-debit can never race.
type entitlementRepository struct {
	db *gorm.DB
}

// NewEntitlementRepository creates an entitlement repository backed by GORM.
func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

func (r *entitlementRepository) GetByUserID(ctx context.Context, userID uint) (*models.UserEntitlement, error) {
	var ent models.UserEntitlement
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&ent).Error
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *entitlementRepository) GetOrCreate(ctx context.Context, userID uint) (*models.UserEntitlement, error) {
	ent := &models.UserEntitlement{UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(ent).Error
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

func (r *entitlementRepository) ApplyAtomic(ctx context.Context, userID uint, fn func(e *models.UserEntitlement) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ent models.UserEntitlement
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&ent).Error; err != nil {
			return err
		}

		if err := fn(&ent); err != nil {
			return err
		}

		if ent.PurchasedCredits < 0 || ent.SubscriptionCreditsRemaining < 0 {
			return errors.New("entitlement balance would go negative")
		}
		return tx.Save(&ent).Error
	})
}
