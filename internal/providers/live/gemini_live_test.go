package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/petabersih/petabersih/internal/agent"
)

// fakeLiveServer speaks just enough of the bidi protocol for the dialer.
type fakeLiveServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	setup  chan json.RawMessage
	client chan json.RawMessage
	conn   chan *websocket.Conn
}

func newFakeLiveServer(t *testing.T) (*fakeLiveServer, *httptest.Server) {
	f := &fakeLiveServer{
		t:      t,
		setup:  make(chan json.RawMessage, 1),
		client: make(chan json.RawMessage, 16),
		conn:   make(chan *websocket.Conn, 1),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conn <- conn

		// first frame is the setup; acknowledge it
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.setup <- json.RawMessage(data)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.client <- json.RawMessage(data)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testDial(t *testing.T, f *fakeLiveServer, srv *httptest.Server, push func(agent.ServerMessage)) agent.UpstreamSession {
	d, err := NewGeminiDialer("test-key", "gemini-test", logrus.New())
	require.NoError(t, err)
	d.Endpoint = wsURL(srv)

	up, err := d.Dial(context.Background(), agent.SessionConfig{
		SessionID:         "sess-1",
		SystemInstruction: "be helpful",
		Tools:             agent.ToolDeclarations(),
	}, push)
	require.NoError(t, err)
	t.Cleanup(func() { _ = up.Close() })
	return up
}

func TestDialSendsSetupWithTools(t *testing.T) {
	f, srv := newFakeLiveServer(t)
	testDial(t, f, srv, func(agent.ServerMessage) {})

	raw := <-f.setup
	var frame setupFrame
	require.NoError(t, json.Unmarshal(raw, &frame))

	require.Equal(t, "models/gemini-test", frame.Setup.Model)
	require.Equal(t, []string{"AUDIO"}, frame.Setup.GenerationConfig.ResponseModalities)
	require.NotNil(t, frame.Setup.SystemInstruction)
	require.Equal(t, "be helpful", frame.Setup.SystemInstruction.Parts[0].Text)

	require.Len(t, frame.Setup.Tools, 1)
	decls := frame.Setup.Tools[0].FunctionDeclarations
	require.Len(t, decls, len(agent.ToolDeclarations()))

	byName := map[string]functionDecl{}
	for _, d := range decls {
		byName[d.Name] = d
	}
	search, ok := byName["search_locations"]
	require.True(t, ok)
	require.Equal(t, []string{"query"}, search.Parameters.Required)
	require.Equal(t, "STRING", search.Parameters.Properties["query"].Type)

	highlight := byName["highlight_locations"]
	require.Equal(t, "ARRAY", highlight.Parameters.Properties["location_ids"].Type)
}

func TestSendUserTurnMultipart(t *testing.T) {
	f, srv := newFakeLiveServer(t)
	up := testDial(t, f, srv, func(agent.ServerMessage) {})

	require.NoError(t, up.SendUserTurn(context.Background(), agent.UserTurn{
		Text:          "seberapa bersih?",
		Image:         []byte("jpeg"),
		ImageMimeType: "image/jpeg",
	}))

	var frame clientContentFrame
	require.NoError(t, json.Unmarshal(<-f.client, &frame))
	require.True(t, frame.ClientContent.TurnComplete)

	parts := frame.ClientContent.Turns[0].Parts
	require.Len(t, parts, 2)
	require.Equal(t, "seberapa bersih?", parts[0].Text)
	require.Equal(t, "image/jpeg", parts[1].InlineData.MimeType)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), parts[1].InlineData.Data)
}

func TestServerFramesBecomeQueueMessages(t *testing.T) {
	f, srv := newFakeLiveServer(t)

	msgs := make(chan agent.ServerMessage, 16)
	testDial(t, f, srv, func(m agent.ServerMessage) { msgs <- m })

	conn := <-f.conn
	audio := base64.StdEncoding.EncodeToString([]byte("pcm"))
	_ = conn.WriteJSON(json.RawMessage(`{"serverContent":{"modelTurn":{"parts":[{"text":"halo"},{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + audio + `"}}]}}}`))
	_ = conn.WriteJSON(json.RawMessage(`{"toolCall":{"functionCalls":[{"id":"fc-1","name":"search_locations","args":{"query":"pasar"}}]}}`))
	_ = conn.WriteJSON(json.RawMessage(`{"serverContent":{"turnComplete":true}}`))

	expect := func() agent.ServerMessage {
		select {
		case m := <-msgs:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for pushed message")
			return nil
		}
	}

	text := expect().(agent.ContentMessage)
	require.Equal(t, "halo", text.Text)

	chunk := expect().(agent.ContentMessage)
	require.Equal(t, []byte("pcm"), chunk.Audio)
	require.Equal(t, "audio/pcm;rate=24000", chunk.MimeType)

	call := expect().(agent.ToolCallMessage)
	require.Equal(t, "fc-1", call.Calls[0].ID)
	require.Equal(t, "search_locations", call.Calls[0].Name)
	require.Equal(t, "pasar", call.Calls[0].Args["query"])

	require.IsType(t, agent.TurnCompleteMessage{}, expect())
}

func TestSendToolResponsesFrame(t *testing.T) {
	f, srv := newFakeLiveServer(t)
	up := testDial(t, f, srv, func(agent.ServerMessage) {})

	require.NoError(t, up.SendToolResponses(context.Background(), []agent.ToolResponse{
		{ID: "fc-1", Name: "search_locations", Result: map[string]any{"success": true}},
	}))

	var frame toolResponseFrame
	require.NoError(t, json.Unmarshal(<-f.client, &frame))
	require.Len(t, frame.ToolResponse.FunctionResponses, 1)
	require.Equal(t, "fc-1", frame.ToolResponse.FunctionResponses[0].ID)
	require.Equal(t, true, frame.ToolResponse.FunctionResponses[0].Response["success"])
}

func TestCloseIsIdempotent(t *testing.T) {
	f, srv := newFakeLiveServer(t)
	up := testDial(t, f, srv, func(agent.ServerMessage) {})

	require.NoError(t, up.Close())
	require.NoError(t, up.Close())

	err := up.SendUserTurn(context.Background(), agent.UserTurn{Text: "halo"})
	require.Error(t, err, "writes after close must fail fast")
}
