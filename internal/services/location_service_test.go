package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/utils"
)

type fakeLocationRepo struct {
	locations  []models.Location
	facilities []models.Facility

	boxCalls int
	created  []*models.Location
}

func (r *fakeLocationRepo) Get(ctx context.Context, id string) (*models.Location, error) {
	for i := range r.locations {
		if r.locations[i].ID == id {
			return &r.locations[i], nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeLocationRepo) Create(ctx context.Context, loc *models.Location) error {
	r.created = append(r.created, loc)
	return nil
}

func (r *fakeLocationRepo) SearchByName(ctx context.Context, query, grade string, limit int) ([]models.Location, error) {
	return r.locations, nil
}

func (r *fakeLocationRepo) SearchSemantic(ctx context.Context, embedding pgvector.Vector, grade string, limit int) ([]models.Location, error) {
	return nil, nil
}

func (r *fakeLocationRepo) InBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, grade string) ([]models.Location, error) {
	r.boxCalls++
	var out []models.Location
	for _, loc := range r.locations {
		if loc.Latitude >= minLat && loc.Latitude <= maxLat && loc.Longitude >= minLng && loc.Longitude <= maxLng {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (r *fakeLocationRepo) FacilitiesInBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, facilityType string) ([]models.Facility, error) {
	var out []models.Facility
	for _, f := range r.facilities {
		if facilityType != "" && string(f.Type) != facilityType {
			continue
		}
		if f.Latitude >= minLat && f.Latitude <= maxLat && f.Longitude >= minLng && f.Longitude <= maxLng {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeLocationRepo) ApplyGrading(ctx context.Context, id, grade, summary, photoURL string, embedding pgvector.Vector, gradedAt time.Time) error {
	return nil
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memCache) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

// Jakarta city center-ish coordinates; distances small enough that the
// bounding box approximation is exact for test purposes.
const (
	baseLat = -6.2000
	baseLng = 106.8166
)

func testLocations() []models.Location {
	return []models.Location{
		{ID: "loc-near", Name: "Taman Dekat", Latitude: baseLat + 0.001, Longitude: baseLng}, // ~111m north
		{ID: "loc-mid", Name: "Pasar Tengah", Latitude: baseLat + 0.005, Longitude: baseLng}, // ~556m north
		{ID: "loc-far", Name: "Sungai Jauh", Latitude: baseLat + 0.05, Longitude: baseLng},   // ~5.5km north
	}
}

func TestNearbySortsAndFiltersByRadius(t *testing.T) {
	repo := &fakeLocationRepo{locations: testLocations()}
	svc := NewLocationService(repo, nil, nil)

	got, err := svc.Nearby(context.Background(), baseLat, baseLng, 1000, "")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "loc-near", got[0].ID)
	assert.Equal(t, "loc-mid", got[1].ID)
	assert.InDelta(t, 111, got[0].DistanceM, 10)
	assert.InDelta(t, 556, got[1].DistanceM, 20)
}

func TestNearbyUsesCacheOnSecondCall(t *testing.T) {
	repo := &fakeLocationRepo{locations: testLocations()}
	svc := NewLocationService(repo, nil, newMemCache())

	_, err := svc.Nearby(context.Background(), baseLat, baseLng, 1000, "")
	require.NoError(t, err)
	got, err := svc.Nearby(context.Background(), baseLat, baseLng, 1000, "")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.boxCalls)
	assert.Len(t, got, 2)
}

func TestNearbyRejectsBadCoordinates(t *testing.T) {
	svc := NewLocationService(&fakeLocationRepo{}, nil, nil)

	_, err := svc.Nearby(context.Background(), 91, 0, 1000, "")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestNearbyClampsRadius(t *testing.T) {
	repo := &fakeLocationRepo{locations: []models.Location{
		{ID: "loc-20km", Latitude: baseLat + 0.18, Longitude: baseLng}, // ~20km
	}}
	svc := NewLocationService(repo, nil, nil)

	got, err := svc.Nearby(context.Background(), baseLat, baseLng, 50000, "")
	require.NoError(t, err)
	assert.Empty(t, got, "points beyond the 10km cap must not appear")
}

func TestNearbyFacilitiesFiltersByType(t *testing.T) {
	repo := &fakeLocationRepo{facilities: []models.Facility{
		{ID: "f-bin", Type: models.FacilityTrashBin, Latitude: baseLat + 0.001, Longitude: baseLng},
		{ID: "f-bank", Type: models.FacilityWasteBank, Latitude: baseLat + 0.002, Longitude: baseLng},
	}}
	svc := NewLocationService(repo, nil, nil)

	got, err := svc.NearbyFacilities(context.Background(), baseLat, baseLng, 0, string(models.FacilityTrashBin))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f-bin", got[0].ID)
}

func TestSearchFallsBackToNameWithoutEmbedder(t *testing.T) {
	repo := &fakeLocationRepo{locations: testLocations()}
	svc := NewLocationService(repo, nil, nil)

	got, err := svc.Search(context.Background(), "taman", "", 5)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCreateAssignsID(t *testing.T) {
	repo := &fakeLocationRepo{}
	svc := NewLocationService(repo, nil, nil)

	loc, err := svc.Create(context.Background(), &models.Location{
		Name:      "TPS Baru",
		Latitude:  baseLat,
		Longitude: baseLng,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, loc.ID)
	require.Len(t, repo.created, 1)
}

func TestCreateRequiresName(t *testing.T) {
	svc := NewLocationService(&fakeLocationRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), &models.Location{Latitude: baseLat, Longitude: baseLng})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestAgentFinderMapsRecords(t *testing.T) {
	repo := &fakeLocationRepo{locations: testLocations()}
	finder := NewAgentFinder(NewLocationService(repo, nil, nil))

	recs, err := finder.Search(context.Background(), "taman", "", 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "loc-near", recs[0].ID)
	assert.Equal(t, "Taman Dekat", recs[0].Name)
}
