package repository

import (
	"context"
	"time"

	"github.com/LinHaoYu/ContractLens/app/models"
	"gorm.io/gorm"
)

type analysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates an analysis record repository backed by GORM.
func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) Create(ctx context.Context, record *models.AnalysisRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *analysisRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.AnalysisRecord, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AnalysisRecord{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var records []models.AnalysisRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&records).Error
	return records, total, err
}

func (r *analysisRepository) ListExpiredWithPayloads(ctx context.Context, before time.Time, limit int) ([]models.AnalysisRecord, error) {
	var records []models.AnalysisRecord
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", before).
		Where("input_ref <> '' OR output_ref <> ''").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *analysisRepository) ClearPayloadRefs(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.AnalysisRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"input_ref": "", "output_ref": ""}).Error
}
