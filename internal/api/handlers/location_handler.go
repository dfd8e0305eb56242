package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/services"
	"github.com/petabersih/petabersih/internal/utils"
)

type LocationHandler struct {
	locations services.LocationService
}

func NewLocationHandler(locations services.LocationService) *LocationHandler {
	return &LocationHandler{locations: locations}
}

func (h *LocationHandler) Get(c *gin.Context) {
	loc, err := h.locations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "location": loc})
}

func (h *LocationHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "LocationHandler.Search", "q is required", nil))
		return
	}
	locs, err := h.locations.Search(c.Request.Context(), query, c.Query("grade"), parseLimit(c, 10))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "locations": locs})
}

func (h *LocationHandler) Nearby(c *gin.Context) {
	lat, lng, ok := parseLatLng(c)
	if !ok {
		return
	}
	radius := parseFloat(c, "radius_m", 0)
	locs, err := h.locations.Nearby(c.Request.Context(), lat, lng, radius, c.Query("grade"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "locations": locs})
}

func (h *LocationHandler) NearbyFacilities(c *gin.Context) {
	lat, lng, ok := parseLatLng(c)
	if !ok {
		return
	}
	radius := parseFloat(c, "radius_m", 0)
	facilities, err := h.locations.NearbyFacilities(c.Request.Context(), lat, lng, radius, c.Query("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "facilities": facilities})
}

type createLocationRequest struct {
	Name      string   `json:"name" binding:"required"`
	Address   string   `json:"address"`
	Category  string   `json:"category"`
	Latitude  float64  `json:"latitude" binding:"required"`
	Longitude float64  `json:"longitude" binding:"required"`
	Tags      []string `json:"tags"`
}

// Create registers a new reported location. Admin only.
func (h *LocationHandler) Create(c *gin.Context) {
	var req createLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "LocationHandler.Create", "invalid request body", err))
		return
	}
	loc := &models.Location{
		Name:      req.Name,
		Address:   req.Address,
		Category:  req.Category,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Tags:      pq.StringArray(req.Tags),
	}
	created, err := h.locations.Create(c.Request.Context(), loc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "location": created})
}

func parseLatLng(c *gin.Context) (lat, lng float64, ok bool) {
	var err error
	lat, err = strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "LocationHandler", "lat is required", err))
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "LocationHandler", "lng is required", err))
		return 0, 0, false
	}
	return lat, lng, true
}

func parseFloat(c *gin.Context, key string, def float64) float64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
