package handlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/petabersih/petabersih/internal/services"
	"github.com/petabersih/petabersih/internal/utils"
)

type ReportHandler struct {
	reports services.ReportService
}

func NewReportHandler(reports services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

type submitReportJSON struct {
	LocationID    string `json:"location_id" binding:"required"`
	PhotoBase64   string `json:"photo_base64" binding:"required"`
	PhotoMimeType string `json:"photo_mime_type"`
}

// Submit accepts either multipart form data with a "photo" file or a JSON
// body with base64 photo data.
func (h *ReportHandler) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var (
		locationID string
		photo      []byte
		mimeType   string
	)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		locationID = c.PostForm("location_id")
		file, header, err := c.Request.FormFile("photo")
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "ReportHandler.Submit", "photo file is required", err))
			return
		}
		defer file.Close()
		photo, err = io.ReadAll(file)
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, "ReportHandler.Submit", "failed to read photo", err))
			return
		}
		mimeType = header.Header.Get("Content-Type")
	} else {
		var req submitReportJSON
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "ReportHandler.Submit", "invalid request body", err))
			return
		}
		data := req.PhotoBase64
		if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
			data = data[i+1:]
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "ReportHandler.Submit", "photo_base64 is not valid base64", err))
			return
		}
		locationID = req.LocationID
		photo = decoded
		mimeType = req.PhotoMimeType
	}

	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	report, err := h.reports.Submit(c.Request.Context(), userID, locationID, photo, mimeType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "report": report})
}

func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (h *ReportHandler) ListMine(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit := parseLimit(c, 20)
	reports, err := h.reports.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": reports})
}

func (h *ReportHandler) ListByLocation(c *gin.Context) {
	limit := parseLimit(c, 20)
	reports, err := h.reports.ListByLocation(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": reports})
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 100 {
		return def
	}
	return n
}
