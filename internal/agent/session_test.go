package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/petabersih/petabersih/internal/utils"
)

// scriptedDialer hands out a fakeUpstream and replays a scripted set of
// server messages once the user turn arrives.
type scriptedDialer struct {
	mu       sync.Mutex
	dialErr  error
	script   []ServerMessage
	lastCfg  SessionConfig
	upstream *scriptedUpstream
}

type scriptedUpstream struct {
	fakeUpstream
	push   func(ServerMessage)
	script []ServerMessage
}

func (d *scriptedDialer) Dial(ctx context.Context, cfg SessionConfig, onMessage func(ServerMessage)) (UpstreamSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.lastCfg = cfg
	d.upstream = &scriptedUpstream{push: onMessage, script: d.script}
	return d.upstream, nil
}

func (u *scriptedUpstream) SendUserTurn(ctx context.Context, turn UserTurn) error {
	if err := u.fakeUpstream.SendUserTurn(ctx, turn); err != nil {
		return err
	}
	// deliver the scripted server response asynchronously, like a transport
	// read loop would
	go func() {
		for _, m := range u.script {
			u.push(m)
		}
	}()
	return nil
}

func newTestManager(d Dialer) *Manager {
	return &Manager{
		Dialer:       d,
		Locations:    &fakeFinder{},
		Log:          logrus.New(),
		PollInterval: time.Millisecond,
		MaxAttempts:  200,
	}
}

func TestManagerFullScenario(t *testing.T) {
	dialer := &scriptedDialer{script: []ServerMessage{
		ContentMessage{Text: "Sebentar, saya carikan."},
		ContentMessage{Audio: []byte("pcm-1"), MimeType: "audio/pcm;rate=24000"},
		ToolCallMessage{Calls: []ToolCall{{
			ID:   "fc-1",
			Name: ToolShowLocationDetails,
			Args: map[string]any{"location_id": "loc-tasik"},
		}}},
		ContentMessage{Audio: []byte("pcm-2"), MimeType: "audio/pcm;rate=24000"},
		TurnCompleteMessage{},
	}}

	sink := &recordingSink{}
	payload := &PendingPayload{
		Query: "Tampilkan detail Tasik",
		RetrievedContext: []ContextRecord{
			{ID: "loc-tasik", Name: "Alun-Alun Tasikmalaya", Grade: "C", DistanceM: 230},
		},
	}

	err := newTestManager(dialer).Run(context.Background(), "sess-1", payload, sink)
	require.NoError(t, err)

	require.Equal(t, []string{"connected", "text", "audio", "functionCalls", "audio"}, sink.kinds())
	require.Equal(t, ToolShowLocationDetails, sink.events[3].text)

	// capability list and retrieved context made it into the session setup
	require.Len(t, dialer.lastCfg.Tools, len(ToolDeclarations()))
	require.Contains(t, dialer.lastCfg.SystemInstruction, "loc-tasik")
	require.Contains(t, dialer.lastCfg.SystemInstruction, "Alun-Alun Tasikmalaya")

	// the batch was answered upstream
	require.Len(t, dialer.upstream.responses, 1)
	require.Equal(t, "fc-1", dialer.upstream.responses[0][0].ID)

	// session torn down exactly once
	require.Equal(t, 1, dialer.upstream.closed)
}

func TestManagerMultipartUserTurn(t *testing.T) {
	dialer := &scriptedDialer{script: []ServerMessage{TurnCompleteMessage{}}}
	img := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	err := newTestManager(dialer).Run(context.Background(), "sess-1", &PendingPayload{
		Query:     "Seberapa bersih tempat ini?",
		ImageData: "data:image/jpeg;base64," + img,
	}, &recordingSink{})
	require.NoError(t, err)

	require.Len(t, dialer.upstream.turns, 1)
	turn := dialer.upstream.turns[0]
	require.Equal(t, "Seberapa bersih tempat ini?", turn.Text)
	require.Equal(t, []byte("jpeg-bytes"), turn.Image)
	require.Equal(t, "image/jpeg", turn.ImageMimeType)
}

func TestManagerTextOnlyUserTurn(t *testing.T) {
	dialer := &scriptedDialer{script: []ServerMessage{TurnCompleteMessage{}}}

	err := newTestManager(dialer).Run(context.Background(), "sess-1", &PendingPayload{Query: "halo"}, &recordingSink{})
	require.NoError(t, err)

	turn := dialer.upstream.turns[0]
	require.Empty(t, turn.Image)
	require.Empty(t, turn.ImageMimeType)
}

func TestManagerInvalidImageData(t *testing.T) {
	dialer := &scriptedDialer{}
	err := newTestManager(dialer).Run(context.Background(), "sess-1", &PendingPayload{
		Query:     "cek",
		ImageData: "!!!not-base64!!!",
	}, &recordingSink{})

	require.Error(t, err)
	require.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	require.Nil(t, dialer.upstream, "no session should be opened for a bad payload")
}

func TestManagerDialFailure(t *testing.T) {
	dialer := &scriptedDialer{dialErr: errors.New("endpoint unreachable")}
	sink := &recordingSink{}

	err := newTestManager(dialer).Run(context.Background(), "sess-1", &PendingPayload{Query: "halo"}, sink)
	require.Error(t, err)
	require.True(t, utils.IsCode(err, utils.CodeUnavailable))
	require.Empty(t, sink.kinds(), "connected must not be emitted when open fails")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	dialer := &scriptedDialer{script: []ServerMessage{TurnCompleteMessage{}}}

	sess := NewSession("sess-1", dialer)
	require.NoError(t, sess.Open(context.Background(), "instr"))

	require.NotPanics(t, func() {
		sess.Close()
		sess.Close()
	})
	require.Equal(t, 1, dialer.upstream.closed)
}

func TestSessionOpenTwiceFails(t *testing.T) {
	dialer := &scriptedDialer{}
	sess := NewSession("sess-1", dialer)
	require.NoError(t, sess.Open(context.Background(), "instr"))

	err := sess.Open(context.Background(), "instr")
	require.Error(t, err)
	require.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestManagerClientCancellationTearsDown(t *testing.T) {
	// script never completes the turn, so only cancellation can end it
	dialer := &scriptedDialer{script: []ServerMessage{ContentMessage{Text: "..."}}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- newTestManager(dialer).Run(ctx, "sess-1", &PendingPayload{Query: "halo"}, &recordingSink{})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after client cancellation")
	}
	require.Equal(t, 1, dialer.upstream.closed)
}
