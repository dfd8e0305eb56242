package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/repositories/postgres"
	"github.com/petabersih/petabersih/internal/storage"
	"github.com/petabersih/petabersih/internal/utils"
)

const (
	GradingStream = "reports:grading"
	maxPhotoBytes = 10 << 20
)

// ReportStatusChannel is the Redis pub/sub channel carrying grading status
// updates for one report.
func ReportStatusChannel(reportID string) string {
	return "report:" + reportID + ":status"
}

type ReportService interface {
	// Submit stores the photo, inserts a pending report, and enqueues a
	// grading job.
	Submit(ctx context.Context, userID, locationID string, photo []byte, mimeType string) (*models.Report, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Report, error)
	ListByLocation(ctx context.Context, locationID string, limit int) ([]models.Report, error)
}

type reportService struct {
	reports   postgres.ReportRepository
	locations postgres.LocationRepository
	uploader  storage.Uploader
	redis     *redis.Client
}

func NewReportService(reports postgres.ReportRepository, locations postgres.LocationRepository, uploader storage.Uploader, rdb *redis.Client) ReportService {
	return &reportService{reports: reports, locations: locations, uploader: uploader, redis: rdb}
}

func (s *reportService) Submit(ctx context.Context, userID, locationID string, photo []byte, mimeType string) (*models.Report, error) {
	const op = "ReportService.Submit"

	if userID == "" || locationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and location_id are required", nil)
	}
	if len(photo) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "photo is required", nil)
	}
	if len(photo) > maxPhotoBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "photo exceeds 10MB", nil)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	// reject reports against unknown locations up front
	if _, err := s.locations.Get(ctx, locationID); err != nil {
		if err == utils.ErrNotFound {
			return nil, utils.E(utils.CodeNotFound, op, "location not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to check location", err)
	}

	reportID := uuid.NewString()
	objectName := fmt.Sprintf("reports/%s/%s.jpg", locationID, reportID)
	photoURL, err := s.uploader.Upload(ctx, objectName, mimeType, bytes.NewReader(photo))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to store photo", err)
	}

	report := &models.Report{
		ID:          reportID,
		UserID:      userID,
		LocationID:  locationID,
		PhotoURL:    photoURL,
		Status:      "pending",
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.reports.Insert(ctx, report); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert report", err)
	}

	if err := s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: GradingStream,
		Values: map[string]any{
			"report_id":   reportID,
			"location_id": locationID,
			"photo_url":   photoURL,
			"mime_type":   mimeType,
			"ts_unix":     strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Err(); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to enqueue grading job", err)
	}

	return report, nil
}

func (s *reportService) Get(ctx context.Context, id string) (*models.Report, error) {
	const op = "ReportService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "report id is required", nil)
	}
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		if err == utils.ErrNotFound {
			return nil, utils.E(utils.CodeNotFound, op, "report not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get report", err)
	}
	return report, nil
}

func (s *reportService) ListByUser(ctx context.Context, userID string, limit int) ([]models.Report, error) {
	const op = "ReportService.ListByUser"

	rows, err := s.reports.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list reports", err)
	}
	return rows, nil
}

func (s *reportService) ListByLocation(ctx context.Context, locationID string, limit int) ([]models.Report, error) {
	const op = "ReportService.ListByLocation"

	rows, err := s.reports.ListByLocation(ctx, locationID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list reports", err)
	}
	return rows, nil
}
