package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/utils"
)

type ReportRepository interface {
	Insert(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, id string) (*models.Report, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkGraded(ctx context.Context, id, grade, summary string, confidence float64, processingMS int64, gradedAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Report, error)
	ListByLocation(ctx context.Context, locationID string, limit int) ([]models.Report, error)
}

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepo(db *gorm.DB) ReportRepository {
	return &reportRepo{db: db}
}

func (r *reportRepo) Insert(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepo) Get(ctx context.Context, id string) (*models.Report, error) {
	var row models.Report
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *reportRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, map[string]any{"status": "processing"})
}

func (r *reportRepo) MarkGraded(ctx context.Context, id, grade, summary string, confidence float64, processingMS int64, gradedAt time.Time) error {
	return r.setStatus(ctx, id, map[string]any{
		"status":             "done",
		"grade":              grade,
		"summary":            summary,
		"confidence":         confidence,
		"processing_time_ms": processingMS,
		"graded_at":          gradedAt,
	})
}

func (r *reportRepo) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, map[string]any{"status": "failed"})
}

func (r *reportRepo) setStatus(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *reportRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *reportRepo) ListByLocation(ctx context.Context, locationID string, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
