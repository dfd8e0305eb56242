package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/petabersih/petabersih/internal/agent"
	"github.com/petabersih/petabersih/internal/cache"
	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/providers/embedding"
	"github.com/petabersih/petabersih/internal/repositories/postgres"
	"github.com/petabersih/petabersih/internal/utils"
)

const (
	defaultNearbyRadiusM  = 1000.0
	maxNearbyRadiusM      = 10000.0
	nearbyCacheTTL        = 30 * time.Second
	earthRadiusM          = 6371000.0
	metersPerDegreeLatLng = 111320.0
)

type NearbyLocation struct {
	models.Location
	DistanceM float64 `json:"distance_m"`
}

type NearbyFacility struct {
	models.Facility
	DistanceM float64 `json:"distance_m"`
}

type LocationService interface {
	Get(ctx context.Context, id string) (*models.Location, error)
	Create(ctx context.Context, loc *models.Location) (*models.Location, error)
	Search(ctx context.Context, query, grade string, limit int) ([]models.Location, error)
	Nearby(ctx context.Context, lat, lng, radiusM float64, grade string) ([]NearbyLocation, error)
	NearbyFacilities(ctx context.Context, lat, lng, radiusM float64, facilityType string) ([]NearbyFacility, error)
}

type locationService struct {
	locations postgres.LocationRepository
	embedder  embedding.Provider // optional; nil disables semantic search
	cache     cache.Cache        // optional; nil disables nearby caching
}

func NewLocationService(locations postgres.LocationRepository, embedder embedding.Provider, c cache.Cache) LocationService {
	return &locationService{locations: locations, embedder: embedder, cache: c}
}

func (s *locationService) Get(ctx context.Context, id string) (*models.Location, error) {
	const op = "LocationService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "location id is required", nil)
	}
	loc, err := s.locations.Get(ctx, id)
	if err != nil {
		if err == utils.ErrNotFound {
			return nil, utils.E(utils.CodeNotFound, op, "location not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get location", err)
	}
	return loc, nil
}

func (s *locationService) Create(ctx context.Context, loc *models.Location) (*models.Location, error) {
	const op = "LocationService.Create"

	if loc.Name == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "name is required", nil)
	}
	if err := validateLatLng(loc.Latitude, loc.Longitude); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil)
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	loc.CreatedAt = now
	loc.UpdatedAt = now

	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, loc.Name+" "+loc.Address+" "+loc.Category); err == nil {
			loc.Embedding = pgvector.NewVector(vec)
		}
		// embedding failures are non-fatal; name search still works
	}

	if err := s.locations.Create(ctx, loc); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create location", err)
	}
	return loc, nil
}

// Search prefers semantic ranking when an embedder is configured and falls
// back to name/address matching.
func (s *locationService) Search(ctx context.Context, query, grade string, limit int) ([]models.Location, error) {
	const op = "LocationService.Search"

	if query == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query is required", nil)
	}

	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, query); err == nil {
			rows, serr := s.locations.SearchSemantic(ctx, pgvector.NewVector(vec), grade, limit)
			if serr == nil && len(rows) > 0 {
				return rows, nil
			}
		}
	}

	rows, err := s.locations.SearchByName(ctx, query, grade, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "search failed", err)
	}
	return rows, nil
}

func (s *locationService) Nearby(ctx context.Context, lat, lng, radiusM float64, grade string) ([]NearbyLocation, error) {
	const op = "LocationService.Nearby"

	radiusM = clampRadius(radiusM)
	if err := validateLatLng(lat, lng); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil)
	}

	cacheKey := fmt.Sprintf("nearby:%.4f:%.4f:%.0f:%s", lat, lng, radiusM, grade)
	if s.cache != nil {
		var cached []NearbyLocation
		if hit, _ := s.cache.GetJSON(ctx, cacheKey, &cached); hit {
			return cached, nil
		}
	}

	minLat, maxLat, minLng, maxLng := boundingBox(lat, lng, radiusM)
	candidates, err := s.locations.InBoundingBox(ctx, minLat, maxLat, minLng, maxLng, grade)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "nearby query failed", err)
	}

	out := make([]NearbyLocation, 0, len(candidates))
	for _, loc := range candidates {
		d := haversineM(lat, lng, loc.Latitude, loc.Longitude)
		if d <= radiusM {
			out = append(out, NearbyLocation{Location: loc, DistanceM: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cacheKey, out, nearbyCacheTTL)
	}
	return out, nil
}

func (s *locationService) NearbyFacilities(ctx context.Context, lat, lng, radiusM float64, facilityType string) ([]NearbyFacility, error) {
	const op = "LocationService.NearbyFacilities"

	if radiusM <= 0 {
		radiusM = 2000
	}
	radiusM = clampRadius(radiusM)
	if err := validateLatLng(lat, lng); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil)
	}

	minLat, maxLat, minLng, maxLng := boundingBox(lat, lng, radiusM)
	candidates, err := s.locations.FacilitiesInBoundingBox(ctx, minLat, maxLat, minLng, maxLng, facilityType)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "facility query failed", err)
	}

	out := make([]NearbyFacility, 0, len(candidates))
	for _, f := range candidates {
		d := haversineM(lat, lng, f.Latitude, f.Longitude)
		if d <= radiusM {
			out = append(out, NearbyFacility{Facility: f, DistanceM: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	return out, nil
}

func clampRadius(radiusM float64) float64 {
	if radiusM <= 0 {
		return defaultNearbyRadiusM
	}
	if radiusM > maxNearbyRadiusM {
		return maxNearbyRadiusM
	}
	return radiusM
}

func validateLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("coordinates out of range: %f,%f", lat, lng)
	}
	return nil
}

func boundingBox(lat, lng, radiusM float64) (minLat, maxLat, minLng, maxLng float64) {
	latDelta := radiusM / metersPerDegreeLatLng
	lngDelta := latDelta
	if cos := math.Cos(lat * math.Pi / 180); cos > 0.01 {
		lngDelta = radiusM / (metersPerDegreeLatLng * cos)
	}
	return lat - latDelta, lat + latDelta, lng - lngDelta, lng + lngDelta
}

func haversineM(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// agentFinder adapts LocationService to the dispatcher's collaborator
// interface.
type agentFinder struct {
	svc LocationService
}

func NewAgentFinder(svc LocationService) agent.LocationFinder {
	return &agentFinder{svc: svc}
}

func (f *agentFinder) Search(ctx context.Context, query, grade string, limit int) ([]agent.LocationRecord, error) {
	rows, err := f.svc.Search(ctx, query, grade, limit)
	if err != nil {
		return nil, err
	}
	out := make([]agent.LocationRecord, 0, len(rows))
	for _, loc := range rows {
		out = append(out, toRecord(loc, 0))
	}
	return out, nil
}

func (f *agentFinder) Get(ctx context.Context, id string) (*agent.LocationRecord, error) {
	loc, err := f.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := toRecord(*loc, 0)
	return &rec, nil
}

func (f *agentFinder) Nearby(ctx context.Context, at agent.LatLng, radiusM float64, grade string) ([]agent.LocationRecord, error) {
	rows, err := f.svc.Nearby(ctx, at.Lat, at.Lng, radiusM, grade)
	if err != nil {
		return nil, err
	}
	out := make([]agent.LocationRecord, 0, len(rows))
	for _, loc := range rows {
		out = append(out, toRecord(loc.Location, loc.DistanceM))
	}
	return out, nil
}

func (f *agentFinder) NearbyFacilities(ctx context.Context, at agent.LatLng, facilityType string, radiusM float64) ([]agent.LocationRecord, error) {
	rows, err := f.svc.NearbyFacilities(ctx, at.Lat, at.Lng, radiusM, facilityType)
	if err != nil {
		return nil, err
	}
	out := make([]agent.LocationRecord, 0, len(rows))
	for _, fac := range rows {
		out = append(out, agent.LocationRecord{
			ID:        fac.ID,
			Name:      fac.Name,
			Address:   fac.Address,
			Lat:       fac.Latitude,
			Lng:       fac.Longitude,
			DistanceM: fac.DistanceM,
		})
	}
	return out, nil
}

func toRecord(loc models.Location, distanceM float64) agent.LocationRecord {
	return agent.LocationRecord{
		ID:        loc.ID,
		Name:      loc.Name,
		Address:   loc.Address,
		Grade:     loc.Grade,
		Lat:       loc.Latitude,
		Lng:       loc.Longitude,
		DistanceM: distanceM,
	}
}
