package agent

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petabersih/petabersih/internal/utils"
)

// UserTurn is the single user input of a session. Image is optional; when
// set, the outbound turn is multipart (text + inline image).
type UserTurn struct {
	Text          string
	Image         []byte
	ImageMimeType string
}

// SessionConfig is handed to the transport when opening a live connection.
type SessionConfig struct {
	SessionID         string
	SystemInstruction string
	Tools             []ToolDecl
}

// UpstreamSession is one open live connection. Inbound messages arrive via
// the push callback given to Dial; the callback must not block.
type UpstreamSession interface {
	SendUserTurn(ctx context.Context, turn UserTurn) error
	SendToolResponses(ctx context.Context, responses []ToolResponse) error
	Close() error
}

// Dialer opens live connections. Implemented by providers/live for the real
// transport and by test fakes.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig, onMessage func(ServerMessage)) (UpstreamSession, error)
}

type sessionState int

const (
	stateCreated sessionState = iota
	stateOpen
	stateProcessingTurn
	stateClosed
)

// Session owns one upstream connection for one conversational turn.
type Session struct {
	id       string
	dialer   Dialer
	queue    *MessageQueue
	upstream UpstreamSession

	mu        sync.Mutex
	state     sessionState
	closeOnce sync.Once
}

func NewSession(id string, dialer Dialer) *Session {
	return &Session{id: id, dialer: dialer, queue: NewMessageQueue()}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Queue() *MessageQueue { return s.queue }

// Open establishes the upstream connection. Server-pushed messages land on
// the session queue.
func (s *Session) Open(ctx context.Context, systemInstruction string) error {
	const op = "Session.Open"

	s.mu.Lock()
	if s.state != stateCreated {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "session already opened", nil)
	}
	s.mu.Unlock()

	cfg := SessionConfig{
		SessionID:         s.id,
		SystemInstruction: systemInstruction,
		Tools:             ToolDeclarations(),
	}
	upstream, err := s.dialer.Dial(ctx, cfg, s.queue.Push)
	if err != nil {
		s.setState(stateClosed)
		return utils.E(utils.CodeUnavailable, op, "failed to open live connection", err)
	}

	s.mu.Lock()
	s.upstream = upstream
	s.state = stateOpen
	s.mu.Unlock()
	return nil
}

// SendUserTurn sends the session's one user input.
func (s *Session) SendUserTurn(ctx context.Context, turn UserTurn) error {
	const op = "Session.SendUserTurn"

	up := s.currentUpstream()
	if up == nil {
		return utils.E(utils.CodeConflict, op, "session is not open", nil)
	}
	if err := up.SendUserTurn(ctx, turn); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to send user turn", err)
	}
	return nil
}

// RunTurn drains the queue through the given processor until the turn
// completes.
func (s *Session) RunTurn(ctx context.Context, proc *TurnProcessor) error {
	up := s.currentUpstream()
	if up == nil {
		return utils.E(utils.CodeConflict, "Session.RunTurn", "session is not open", nil)
	}
	s.setState(stateProcessingTurn)
	proc.Queue = s.queue
	return proc.Run(ctx, up)
}

// Close releases the upstream connection. Idempotent and safe to call
// concurrently with an in-flight RunTurn.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		up := s.currentUpstream()
		if up != nil {
			_ = up.Close()
		}
		s.setState(stateClosed)
	})
}

func (s *Session) currentUpstream() UpstreamSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream
}

func (s *Session) setState(st sessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Manager orchestrates full agent turns: pending payload in, stream events
// out. One Manager serves all sessions; each Run owns exactly one Session.
type Manager struct {
	Dialer    Dialer
	Locations LocationFinder
	UI        UIActionFunc
	Log       *logrus.Logger

	PollInterval time.Duration
	MaxAttempts  int
}

// Run executes one conversational turn end to end. The session is always
// torn down before Run returns, including on error and client cancellation.
func (m *Manager) Run(ctx context.Context, sessionID string, payload *PendingPayload, sink EventSink) error {
	const op = "Manager.Run"

	log := m.Log.WithFields(logrus.Fields{"session_id": sessionID})

	turn := UserTurn{Text: payload.Query}
	if payload.ImageData != "" {
		img, err := decodeInlineImage(payload.ImageData)
		if err != nil {
			return utils.E(utils.CodeInvalidArgument, op, "invalid image data", err)
		}
		turn.Image = img
		turn.ImageMimeType = payload.ImageMimeType
		if turn.ImageMimeType == "" {
			turn.ImageMimeType = "image/jpeg"
		}
	}

	sess := NewSession(sessionID, m.Dialer)
	if err := sess.Open(ctx, BuildSystemInstruction(payload.RetrievedContext, payload.UserLocation)); err != nil {
		return err
	}
	defer sess.Close()

	// client disconnect must also unblock the upstream transport
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-watchDone:
		}
	}()

	if err := sink.Connected(); err != nil {
		return utils.E(utils.CodeUnavailable, op, "client went away", err)
	}

	if err := sess.SendUserTurn(ctx, turn); err != nil {
		return err
	}

	dispatcher := NewDispatcher(Collaborators{
		Locations:    m.Locations,
		UI:           m.UI,
		UserLocation: payload.UserLocation,
	}, log)

	proc := &TurnProcessor{
		Dispatcher:   dispatcher,
		Sink:         sink,
		Log:          log,
		PollInterval: m.PollInterval,
		MaxAttempts:  m.MaxAttempts,
	}

	if err := sess.RunTurn(ctx, proc); err != nil {
		log.WithError(err).Error("turn ended with error")
		return err
	}
	return nil
}

// decodeInlineImage accepts raw base64 with an optional data URL prefix.
func decodeInlineImage(data string) ([]byte, error) {
	if i := strings.Index(data, ","); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}
