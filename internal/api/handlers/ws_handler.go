package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/petabersih/petabersih/internal/services"
	"github.com/petabersih/petabersih/internal/utils"
)

type WSHandler struct {
	reports  services.ReportService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(reports services.ReportService, rdb *redis.Client) *WSHandler {
	return &WSHandler{
		reports: reports,
		redis:   rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// ReportStatusWS streams grading status updates for one report. The worker
// publishes JSON payloads to Redis; this handler forwards them as-is.
func (h *WSHandler) ReportStatusWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	reportID := c.Param("report_id")
	if reportID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.ReportStatusWS", "missing report_id", nil))
		return
	}

	report, err := h.reports.Get(c.Request.Context(), reportID)
	if err != nil {
		writeError(c, err)
		return
	}
	if report.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "WSHandler.ReportStatusWS", "forbidden", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, services.ReportStatusChannel(reportID))
	defer pubsub.Close()

	// if the report already finished, replay its terminal state and leave
	if report.Status == "done" || report.Status == "failed" {
		_ = wc.writeText([]byte(`{"type":"status","status":"` + report.Status + `","report_id":"` + reportID + `"}`))
		return
	}

	// reader: detect client disconnect only, clients send nothing
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
			return nil
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		default:
			m, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}
