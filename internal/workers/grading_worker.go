package workers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/petabersih/petabersih/internal/providers/embedding"
	"github.com/petabersih/petabersih/internal/providers/grading"
	repos "github.com/petabersih/petabersih/internal/repositories/postgres"
	"github.com/petabersih/petabersih/internal/services"
)

// GradingWorkerPool consumes submitted report photos from a Redis stream,
// asks the grading oracle for a cleanliness assessment, and writes the
// result back to the report and its location. Status updates are published
// per report so clients can follow along.
type GradingWorkerPool struct {
	Redis      *redis.Client
	Reports    repos.ReportRepository
	Locations  repos.LocationRepository
	NumWorkers int

	Grader   grading.Oracle
	Embedder embedding.Provider // optional

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *GradingWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Reports == nil || p.Locations == nil || p.Grader == nil {
		return errors.New("GradingWorkerPool missing dependency: Redis/Reports/Locations/Grader must be set")
	}
	if p.Stream == "" {
		p.Stream = services.GradingStream
	}
	if p.Group == "" {
		p.Group = "grading-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "g"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *GradingWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    5,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *GradingWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	reportID := getStr("report_id")
	locationID := getStr("location_id")
	if reportID == "" || locationID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":    msg.ID,
		"report_id":   reportID,
		"location_id": locationID,
	})

	statusCh := services.ReportStatusChannel(reportID)

	// Fetch photo
	var photoBytes []byte
	if b64 := getStr("photo_base64"); b64 != "" {
		raw := b64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			log.WithError(err).Warn("base64 decode failed")
			p.fail(ctx, reportID, statusCh, "invalid photo_base64")
			return
		}
		photoBytes = decoded
	} else if url := getStr("photo_url"); url != "" {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("photo_url fetch failed")
			p.fail(ctx, reportID, statusCh, "failed to fetch photo_url")
			return
		}
		defer resp.Body.Close()

		const maxBytes = 10 << 20
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		if len(body) == 0 {
			p.fail(ctx, reportID, statusCh, "empty photo")
			return
		}
		photoBytes = body
	} else {
		return
	}

	// Grade
	start := time.Now()
	_ = p.Reports.MarkProcessing(ctx, reportID)
	p.publish(ctx, statusCh, map[string]any{"type": "status", "status": "processing", "message": "grading photo"})

	result, err := p.Grader.GradePhoto(ctx, photoBytes, getStr("mime_type"))
	if err != nil {
		log.WithError(err).Error("grading failed")
		p.fail(ctx, reportID, statusCh, "grading failed")
		return
	}

	procMS := time.Since(start).Milliseconds()
	now := time.Now().UTC()
	if err := p.Reports.MarkGraded(ctx, reportID, result.Grade, result.Summary, result.Confidence, procMS, now); err != nil {
		log.WithError(err).Error("failed to store grading result")
		p.publish(ctx, statusCh, map[string]any{"type": "status", "status": "failed", "message": "failed to store result"})
		return
	}

	// Refresh the location's grade and search embedding
	var vec pgvector.Vector
	if p.Embedder != nil {
		if v, eerr := p.Embedder.Embed(ctx, result.Summary); eerr == nil {
			vec = pgvector.NewVector(v)
		} else {
			log.WithError(eerr).Warn("summary embedding failed")
		}
	}
	if err := p.Locations.ApplyGrading(ctx, locationID, result.Grade, result.Summary, getStr("photo_url"), vec, now); err != nil {
		log.WithError(err).Warn("failed to update location grade")
	}

	p.publish(ctx, statusCh, map[string]any{
		"type":               "graded",
		"grade":              result.Grade,
		"confidence":         result.Confidence,
		"summary":            result.Summary,
		"processing_time_ms": procMS,
	})
	log.WithField("grade", result.Grade).Info("report graded")
}

func (p *GradingWorkerPool) fail(ctx context.Context, reportID, statusCh, message string) {
	_ = p.Reports.MarkFailed(ctx, reportID)
	p.publish(ctx, statusCh, map[string]any{"type": "status", "status": "failed", "message": message})
}

func (p *GradingWorkerPool) publish(ctx context.Context, channel string, payload map[string]any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = p.Redis.Publish(ctx, channel, string(b)).Err()
}
