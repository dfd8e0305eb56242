package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	kind string // connected|functionCalls|audio|text
	text string
	mime string
}

type recordingSink struct {
	mu       sync.Mutex
	events   []recordedEvent
	failText bool
}

func (s *recordingSink) record(e recordedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Connected() error { return s.record(recordedEvent{kind: "connected"}) }

func (s *recordingSink) FunctionCalls(calls []ToolCall) error {
	return s.record(recordedEvent{kind: "functionCalls", text: calls[0].Name})
}

func (s *recordingSink) AudioChunk(data []byte, mimeType string) error {
	return s.record(recordedEvent{kind: "audio", text: string(data), mime: mimeType})
}

func (s *recordingSink) Text(text string) error {
	if s.failText {
		return errors.New("client gone")
	}
	return s.record(recordedEvent{kind: "text", text: text})
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.kind
	}
	return out
}

type fakeUpstream struct {
	mu        sync.Mutex
	turns     []UserTurn
	responses [][]ToolResponse
	sendErr   error
	closed    int
}

func (f *fakeUpstream) SendUserTurn(ctx context.Context, turn UserTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeUpstream) SendToolResponses(ctx context.Context, responses []ToolResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.responses = append(f.responses, responses)
	return nil
}

func (f *fakeUpstream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func newTestProcessor(q *MessageQueue, sink EventSink) *TurnProcessor {
	return &TurnProcessor{
		Queue:        q,
		Dispatcher:   testDispatcher(&fakeFinder{}),
		Sink:         sink,
		Log:          logrus.New(),
		PollInterval: time.Millisecond,
		MaxAttempts:  10,
	}
}

func TestTurnStreamsChunksInOrder(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{}
	up := &fakeUpstream{}

	for i := 0; i < 10; i++ {
		q.Push(ContentMessage{Audio: []byte{byte('a' + i)}, MimeType: "audio/pcm"})
	}
	q.Push(TurnCompleteMessage{})

	err := newTestProcessor(q, sink).Run(context.Background(), up)
	require.NoError(t, err)

	require.Len(t, sink.events, 10)
	for i, e := range sink.events {
		require.Equal(t, "audio", e.kind)
		require.Equal(t, string(rune('a'+i)), e.text)
		require.Equal(t, "audio/pcm", e.mime)
	}
}

func TestTurnMixedContentAndCompletion(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{}

	q.Push(ContentMessage{Text: "halo"})
	q.Push(ContentMessage{Audio: []byte("pcm"), MimeType: "audio/pcm", Text: "dan teks"})
	q.Push(TurnCompleteMessage{})

	err := newTestProcessor(q, sink).Run(context.Background(), &fakeUpstream{})
	require.NoError(t, err)
	require.Equal(t, []string{"text", "audio", "text"}, sink.kinds())
}

func TestTurnToolBatchObserverBeforeDispatch(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{}
	up := &fakeUpstream{}

	var order []string
	var mu sync.Mutex
	slow := &fakeFinder{}
	proc := newTestProcessor(q, sink)
	proc.Dispatcher = NewDispatcher(Collaborators{
		Locations: slow,
		UI: func(name string, args map[string]any) {
			mu.Lock()
			order = append(order, "dispatch:"+name)
			mu.Unlock()
		},
	}, logrus.New())

	obsSink := &observerOrderSink{inner: sink, order: &order, mu: &mu}
	proc.Sink = obsSink

	q.Push(ToolCallMessage{Calls: []ToolCall{
		{ID: "c1", Name: ToolShowLocationDetails, Args: map[string]any{"location_id": "loc-1"}},
		{ID: "c2", Name: ToolSetMapFilter, Args: map[string]any{"category": "reports"}},
	}})
	q.Push(TurnCompleteMessage{})

	err := proc.Run(context.Background(), up)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "observer", order[0], "observer must be notified before any dispatch")

	// every call in the batch got a response, in one upstream send
	require.Len(t, up.responses, 1)
	require.Len(t, up.responses[0], 2)
	require.Equal(t, "c1", up.responses[0][0].ID)
	require.Equal(t, "c2", up.responses[0][1].ID)
}

type observerOrderSink struct {
	inner *recordingSink
	order *[]string
	mu    *sync.Mutex
}

func (s *observerOrderSink) Connected() error { return s.inner.Connected() }

func (s *observerOrderSink) FunctionCalls(calls []ToolCall) error {
	s.mu.Lock()
	*s.order = append(*s.order, "observer")
	s.mu.Unlock()
	return s.inner.FunctionCalls(calls)
}

func (s *observerOrderSink) AudioChunk(data []byte, mimeType string) error {
	return s.inner.AudioChunk(data, mimeType)
}

func (s *observerOrderSink) Text(text string) error { return s.inner.Text(text) }

func TestTurnPartialToolFailureStillAnswersAll(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{}
	up := &fakeUpstream{}

	q.Push(ToolCallMessage{Calls: []ToolCall{
		{ID: "good", Name: ToolSearchLocations, Args: map[string]any{"query": "pasar"}},
		{ID: "bad", Name: "not_a_tool"},
		{ID: "invalid", Name: ToolShowLocationDetails, Args: map[string]any{}},
	}})
	q.Push(TurnCompleteMessage{})

	err := newTestProcessor(q, sink).Run(context.Background(), up)
	require.NoError(t, err)

	require.Len(t, up.responses, 1)
	batch := up.responses[0]
	require.Len(t, batch, 3)
	require.Equal(t, true, batch[0].Result["success"])
	require.Equal(t, "UNRECOGNIZED_FUNCTION", batch[1].Result["code"])
	require.Equal(t, "INVALID_ARGUMENT", batch[2].Result["code"])
}

func TestTurnBoundedAttemptsSoftStop(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{}

	proc := newTestProcessor(q, sink)
	proc.MaxAttempts = 5

	start := time.Now()
	err := proc.Run(context.Background(), &fakeUpstream{})
	require.NoError(t, err, "attempt exhaustion is a soft stop")
	require.Less(t, time.Since(start), time.Second)
	require.Empty(t, sink.events)
}

func TestTurnSinkErrorStopsProcessing(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{failText: true}
	up := &fakeUpstream{}

	q.Push(ContentMessage{Text: "halo"})
	q.Push(ContentMessage{Audio: []byte("never"), MimeType: "audio/pcm"})
	q.Push(TurnCompleteMessage{})

	err := newTestProcessor(q, sink).Run(context.Background(), up)
	require.Error(t, err)
	require.Empty(t, sink.events, "nothing after the failing entry should reach the sink")
}

func TestTurnUpstreamSendFailureIsTerminal(t *testing.T) {
	q := NewMessageQueue()
	up := &fakeUpstream{sendErr: errors.New("connection dropped")}

	q.Push(ToolCallMessage{Calls: []ToolCall{{ID: "c", Name: ToolSetMapFilter, Args: map[string]any{"category": "all"}}}})

	err := newTestProcessor(q, &recordingSink{}).Run(context.Background(), up)
	require.Error(t, err)
}

func TestTurnContextCancellation(t *testing.T) {
	q := NewMessageQueue()
	ctx, cancel := context.WithCancel(context.Background())

	proc := newTestProcessor(q, &recordingSink{})
	proc.MaxAttempts = 1000

	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx, &fakeUpstream{}) }()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestTurnNotifyWakeupBeatsInterval(t *testing.T) {
	q := NewMessageQueue()
	sink := &recordingSink{}

	proc := newTestProcessor(q, sink)
	proc.PollInterval = time.Second // interval alone would exceed the test deadline
	proc.MaxAttempts = 3

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(ContentMessage{Text: "cepat"})
		q.Push(TurnCompleteMessage{})
	}()

	start := time.Now()
	err := proc.Run(context.Background(), &fakeUpstream{})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second, "notify should wake the poll loop early")
	require.Equal(t, []string{"text"}, sink.kinds())
}
