package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petabersih/petabersih/internal/utils"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	defaultMaxAttempts  = 100
)

// TurnProcessor drains one session's queue until TurnComplete, dispatching
// tool calls and flushing content chunks to the sink as they arrive.
type TurnProcessor struct {
	Queue      *MessageQueue
	Dispatcher *Dispatcher
	Sink       EventSink
	Log        logrus.FieldLogger

	// PollInterval and MaxAttempts bound the empty-queue wait; exhaustion is
	// a soft stop, not an error.
	PollInterval time.Duration
	MaxAttempts  int
}

// Run processes queue entries in strict arrival order. A failure while
// handling one entry stops the turn and is returned to the caller; the soft
// no-more-messages stop returns nil.
func (p *TurnProcessor) Run(ctx context.Context, upstream UpstreamSession) error {
	const op = "TurnProcessor.Run"

	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return utils.E(utils.CodeUnavailable, op, "session cancelled", err)
		}

		msg, ok := p.Queue.TryPop()
		if !ok {
			if attempts >= maxAttempts {
				p.Log.Warn("no more messages from upstream, ending turn")
				return nil
			}
			attempts++
			select {
			case <-ctx.Done():
				return utils.E(utils.CodeUnavailable, op, "session cancelled", ctx.Err())
			case <-p.Queue.Notify():
			case <-time.After(interval):
			}
			continue
		}
		attempts = 0

		switch m := msg.(type) {
		case ToolCallMessage:
			// observer first, so a slow tool does not delay the client
			if err := p.Sink.FunctionCalls(m.Calls); err != nil {
				return utils.E(utils.CodeUnavailable, op, "sink rejected function calls", err)
			}
			responses := make([]ToolResponse, 0, len(m.Calls))
			for _, call := range m.Calls {
				responses = append(responses, p.Dispatcher.Dispatch(ctx, call))
			}
			if err := upstream.SendToolResponses(ctx, responses); err != nil {
				return utils.E(utils.CodeUnavailable, op, "failed to send tool responses", err)
			}

		case ContentMessage:
			if len(m.Audio) > 0 {
				if err := p.Sink.AudioChunk(m.Audio, m.MimeType); err != nil {
					return utils.E(utils.CodeUnavailable, op, "sink rejected audio chunk", err)
				}
			}
			if m.Text != "" {
				if err := p.Sink.Text(m.Text); err != nil {
					return utils.E(utils.CodeUnavailable, op, "sink rejected text", err)
				}
			}

		case TurnCompleteMessage:
			return nil

		default:
			p.Log.WithField("type", msg).Warn("unknown queue entry, skipping")
		}
	}
}
