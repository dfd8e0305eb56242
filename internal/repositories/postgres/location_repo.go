package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/utils"
)

type LocationRepository interface {
	Get(ctx context.Context, id string) (*models.Location, error)
	Create(ctx context.Context, loc *models.Location) error
	SearchByName(ctx context.Context, query, grade string, limit int) ([]models.Location, error)
	SearchSemantic(ctx context.Context, embedding pgvector.Vector, grade string, limit int) ([]models.Location, error)
	// InBoundingBox returns candidates inside the lat/lng box; precise
	// radius filtering happens in the service layer.
	InBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, grade string) ([]models.Location, error)
	FacilitiesInBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, facilityType string) ([]models.Facility, error)
	ApplyGrading(ctx context.Context, id, grade, summary, photoURL string, embedding pgvector.Vector, gradedAt time.Time) error
}

type locationRepo struct {
	db *gorm.DB
}

func NewLocationRepo(db *gorm.DB) LocationRepository {
	return &locationRepo{db: db}
}

func (r *locationRepo) Get(ctx context.Context, id string) (*models.Location, error) {
	var loc models.Location
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &loc, err
}

func (r *locationRepo) Create(ctx context.Context, loc *models.Location) error {
	return r.db.WithContext(ctx).Create(loc).Error
}

func (r *locationRepo) SearchByName(ctx context.Context, query, grade string, limit int) ([]models.Location, error) {
	if limit <= 0 {
		limit = 5
	}

	q := r.db.WithContext(ctx).
		Where("name ILIKE ? OR address ILIKE ?", "%"+query+"%", "%"+query+"%")
	if grade != "" {
		q = q.Where("grade = ?", grade)
	}

	var rows []models.Location
	err := q.Order("report_count DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *locationRepo) SearchSemantic(ctx context.Context, embedding pgvector.Vector, grade string, limit int) ([]models.Location, error) {
	if limit <= 0 {
		limit = 5
	}

	q := r.db.WithContext(ctx).Where("embedding IS NOT NULL")
	if grade != "" {
		q = q.Where("grade = ?", grade)
	}

	var rows []models.Location
	err := q.Order(gorm.Expr("embedding <=> ?", embedding)).Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *locationRepo) InBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, grade string) ([]models.Location, error) {
	q := r.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", minLat, maxLat).
		Where("longitude BETWEEN ? AND ?", minLng, maxLng)
	if grade != "" {
		q = q.Where("grade = ?", grade)
	}

	var rows []models.Location
	err := q.Find(&rows).Error
	return rows, err
}

func (r *locationRepo) FacilitiesInBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, facilityType string) ([]models.Facility, error) {
	q := r.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", minLat, maxLat).
		Where("longitude BETWEEN ? AND ?", minLng, maxLng)
	if facilityType != "" {
		q = q.Where("type = ?", facilityType)
	}

	var rows []models.Facility
	err := q.Find(&rows).Error
	return rows, err
}

func (r *locationRepo) ApplyGrading(ctx context.Context, id, grade, summary, photoURL string, embedding pgvector.Vector, gradedAt time.Time) error {
	updates := map[string]any{
		"grade":          grade,
		"summary":        summary,
		"last_graded_at": gradedAt,
		"report_count":   gorm.Expr("report_count + 1"),
		"updated_at":     gradedAt,
	}
	if photoURL != "" {
		updates["photo_url"] = photoURL
	}
	if len(embedding.Slice()) > 0 {
		updates["embedding"] = embedding
	}

	res := r.db.WithContext(ctx).Model(&models.Location{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
