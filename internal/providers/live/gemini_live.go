package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/petabersih/petabersih/internal/agent"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultModel    = "models/gemini-2.0-flash-live-001"

	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

// GeminiDialer opens live websocket sessions against the Gemini
// BidiGenerateContent endpoint. It implements agent.Dialer.
type GeminiDialer struct {
	APIKey   string
	Model    string
	Endpoint string
	Log      *logrus.Logger
}

func NewGeminiDialer(apiKey, model string, log *logrus.Logger) (*GeminiDialer, error) {
	if apiKey == "" {
		return nil, errors.New("live: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	if log == nil {
		log = logrus.New()
	}
	return &GeminiDialer{APIKey: apiKey, Model: model, Log: log}, nil
}

// wire frames, client -> server

type setupFrame struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
		} `json:"generationConfig"`
		SystemInstruction *contentFrame `json:"systemInstruction,omitempty"`
		Tools             []toolsFrame  `json:"tools,omitempty"`
	} `json:"setup"`
}

type toolsFrame struct {
	FunctionDeclarations []functionDecl `json:"functionDeclarations"`
}

type functionDecl struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Parameters  *paramSchema `json:"parameters,omitempty"`
}

type paramSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]propertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

type propertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       *propertySchema `json:"items,omitempty"`
}

type contentFrame struct {
	Role  string      `json:"role,omitempty"`
	Parts []partFrame `json:"parts"`
}

type partFrame struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type clientContentFrame struct {
	ClientContent struct {
		Turns        []contentFrame `json:"turns"`
		TurnComplete bool           `json:"turnComplete"`
	} `json:"clientContent"`
}

type toolResponseFrame struct {
	ToolResponse struct {
		FunctionResponses []functionResponse `json:"functionResponses"`
	} `json:"toolResponse"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// wire frames, server -> client

type serverFrame struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		ModelTurn    *contentFrame `json:"modelTurn,omitempty"`
		TurnComplete bool          `json:"turnComplete,omitempty"`
		Interrupted  bool          `json:"interrupted,omitempty"`
	} `json:"serverContent,omitempty"`
	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall,omitempty"`
}

// Dial opens the websocket, performs the setup handshake, and starts a read
// loop that translates server frames into queue pushes via onMessage.
func (d *GeminiDialer) Dial(ctx context.Context, cfg agent.SessionConfig, onMessage func(agent.ServerMessage)) (agent.UpstreamSession, error) {
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint+"?key="+d.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	c := &geminiConn{
		conn: conn,
		log:  d.Log.WithField("session_id", cfg.SessionID),
		push: onMessage,
	}

	setup := setupFrame{}
	setup.Setup.Model = d.Model
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &contentFrame{Parts: []partFrame{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		setup.Setup.Tools = []toolsFrame{{FunctionDeclarations: declsToWire(cfg.Tools)}}
	}

	if err := c.writeJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	// the first server frame must acknowledge the setup
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var ack serverFrame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read setup ack: %w", err)
	}
	if ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, errors.New("live endpoint did not acknowledge setup")
	}
	_ = conn.SetReadDeadline(time.Time{})

	go c.readLoop()
	return c, nil
}

func declsToWire(decls []agent.ToolDecl) []functionDecl {
	out := make([]functionDecl, 0, len(decls))
	for _, d := range decls {
		fd := functionDecl{Name: d.Name, Description: d.Description}
		if len(d.Params) > 0 {
			schema := &paramSchema{Type: "OBJECT", Properties: map[string]propertySchema{}}
			for _, p := range d.Params {
				prop := propertySchema{Description: p.Description, Enum: p.Enum}
				switch p.Type {
				case "number":
					prop.Type = "NUMBER"
				case "array":
					prop.Type = "ARRAY"
					prop.Items = &propertySchema{Type: "STRING"}
				default:
					prop.Type = "STRING"
				}
				schema.Properties[p.Name] = prop
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			fd.Parameters = schema
		}
		out = append(out, fd)
	}
	return out
}

// geminiConn is one open live connection.
type geminiConn struct {
	conn *websocket.Conn
	log  logrus.FieldLogger
	push func(agent.ServerMessage)

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *geminiConn) SendUserTurn(ctx context.Context, turn agent.UserTurn) error {
	frame := clientContentFrame{}
	parts := []partFrame{{Text: turn.Text}}
	if len(turn.Image) > 0 {
		parts = append(parts, partFrame{InlineData: &inlineData{
			MimeType: turn.ImageMimeType,
			Data:     base64.StdEncoding.EncodeToString(turn.Image),
		}})
	}
	frame.ClientContent.Turns = []contentFrame{{Role: "user", Parts: parts}}
	frame.ClientContent.TurnComplete = true
	return c.writeJSON(frame)
}

func (c *geminiConn) SendToolResponses(ctx context.Context, responses []agent.ToolResponse) error {
	frame := toolResponseFrame{}
	for _, r := range responses {
		frame.ToolResponse.FunctionResponses = append(frame.ToolResponse.FunctionResponses, functionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Result,
		})
	}
	return c.writeJSON(frame)
}

func (c *geminiConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}

func (c *geminiConn) writeJSON(v any) error {
	if c.closed.Load() {
		return errors.New("live connection is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// readLoop translates server frames into agent queue pushes. The push
// callback must not block; the agent queue guarantees that.
func (c *geminiConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("live read loop ended")
			}
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.WithError(err).Warn("undecodable live frame, skipping")
			continue
		}

		if frame.ToolCall != nil && len(frame.ToolCall.FunctionCalls) > 0 {
			calls := make([]agent.ToolCall, 0, len(frame.ToolCall.FunctionCalls))
			for _, fc := range frame.ToolCall.FunctionCalls {
				calls = append(calls, agent.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
			}
			c.push(agent.ToolCallMessage{Calls: calls})
		}

		if sc := frame.ServerContent; sc != nil {
			if sc.ModelTurn != nil {
				for _, part := range sc.ModelTurn.Parts {
					msg := agent.ContentMessage{Text: part.Text}
					if part.InlineData != nil {
						audio, derr := base64.StdEncoding.DecodeString(part.InlineData.Data)
						if derr != nil {
							c.log.WithError(derr).Warn("bad audio payload, dropping part")
							continue
						}
						msg.Audio = audio
						msg.MimeType = part.InlineData.MimeType
					}
					if msg.Text != "" || len(msg.Audio) > 0 {
						c.push(msg)
					}
				}
			}
			if sc.TurnComplete {
				c.push(agent.TurnCompleteMessage{})
			}
		}
	}
}
