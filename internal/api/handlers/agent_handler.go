package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/petabersih/petabersih/internal/agent"
	"github.com/petabersih/petabersih/internal/services"
	"github.com/petabersih/petabersih/internal/utils"
)

// AgentBridge runs one agent turn, emitting stream events through the sink.
// Implemented by agent.Manager.
type AgentBridge interface {
	Run(ctx context.Context, sessionID string, payload *agent.PendingPayload, sink agent.EventSink) error
}

type AgentHandler struct {
	bridge  AgentBridge
	pending *agent.PendingRequests
	logs    services.SessionLogService // optional
	log     *logrus.Logger
}

func NewAgentHandler(bridge AgentBridge, pending *agent.PendingRequests, logs services.SessionLogService, log *logrus.Logger) *AgentHandler {
	if log == nil {
		log = logrus.New()
	}
	return &AgentHandler{bridge: bridge, pending: pending, logs: logs, log: log}
}

type SubmitAgentRequest struct {
	Query            string                `json:"query" binding:"required"`
	SessionID        string                `json:"session_id"`
	ImageData        string                `json:"image_data"`
	ImageMimeType    string                `json:"image_mime_type"`
	RetrievedContext []agent.ContextRecord `json:"retrieved_context"`
	UserLocation     *[2]float64           `json:"user_location"` // [lat, lng]
}

type SubmitAgentResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// Submit stores the request payload for a later stream call and returns the
// session id immediately.
func (h *AgentHandler) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SubmitAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AgentHandler.Submit", "invalid request body", err))
		return
	}

	if req.ImageData != "" {
		if _, err := decodeProbe(req.ImageData); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "AgentHandler.Submit", "image_data is not valid base64", err))
			return
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	payload := &agent.PendingPayload{
		Query:            req.Query,
		ImageData:        req.ImageData,
		ImageMimeType:    req.ImageMimeType,
		RetrievedContext: req.RetrievedContext,
	}
	if req.UserLocation != nil {
		payload.UserLocation = &agent.LatLng{Lat: req.UserLocation[0], Lng: req.UserLocation[1]}
	}

	h.pending.Store(sessionID, payload)
	h.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID}).Info("agent request queued")

	c.JSON(http.StatusOK, SubmitAgentResponse{Success: true, SessionID: sessionID})
}

// Stream opens the SSE event stream for a previously submitted session.
func (h *AgentHandler) Stream(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AgentHandler.Stream", "session_id is required", nil))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	sink := newSSESink(c)
	defer h.pending.Remove(sessionID)

	payload, err := h.pending.Await(ctx, sessionID)
	if err != nil {
		sink.Error(errMessage(err))
		return
	}

	startedAt := time.Now().UTC()
	if h.logs != nil {
		if lerr := h.logs.Start(ctx, sessionID, userID, payload.Query, payload.ImageData != ""); lerr != nil {
			h.log.WithError(lerr).Warn("failed to record session start")
		}
	}

	runErr := h.bridge.Run(ctx, sessionID, payload, sink)

	if h.logs != nil {
		status, errMsg := "completed", ""
		if runErr != nil {
			status, errMsg = "failed", runErr.Error()
		}
		// the stream context may already be gone on disconnect
		if lerr := h.logs.Finish(context.WithoutCancel(ctx), sessionID, status, errMsg, startedAt); lerr != nil {
			h.log.WithError(lerr).Warn("failed to record session finish")
		}
	}

	if runErr != nil {
		sink.Error(errMessage(runErr))
		return
	}
	sink.Complete()
}

func errMessage(err error) string {
	var ae *utils.AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

func decodeProbe(data string) ([]byte, error) {
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}

// sseSink writes agent events as server-sent events. All writes happen on
// the request goroutine.
type sseSink struct {
	c        *gin.Context
	finished bool
}

func newSSESink(c *gin.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) send(payload any) error {
	if s.finished {
		return errors.New("stream already finished")
	}
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := s.c.Writer.WriteString("data: " + string(b) + "\n\n"); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) Connected() error {
	return s.send(gin.H{"type": "connected"})
}

func (s *sseSink) FunctionCalls(calls []agent.ToolCall) error {
	return s.send(gin.H{"type": "functionCalls", "functionCalls": calls})
}

func (s *sseSink) AudioChunk(data []byte, mimeType string) error {
	return s.send(gin.H{
		"type":     "audioChunk",
		"data":     base64.StdEncoding.EncodeToString(data),
		"mimeType": mimeType,
	})
}

func (s *sseSink) Text(text string) error {
	return s.send(gin.H{"type": "text", "text": text})
}

// Complete and Error are terminal; at most one of them is emitted per
// stream.
func (s *sseSink) Complete() {
	_ = s.send(gin.H{"type": "complete"})
	s.finished = true
}

func (s *sseSink) Error(message string) {
	_ = s.send(gin.H{"type": "error", "error": message})
	s.finished = true
}
