package agent

import (
	"context"
	"sync"
	"time"

	"github.com/petabersih/petabersih/internal/utils"
)

// ContextRecord is one retrieved-context row handed to the model as part of
// its system instruction (typically the user's nearby locations).
type ContextRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Grade     string  `json:"grade,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
	DistanceM float64 `json:"distance_m,omitempty"`
}

// PendingPayload is what the submit endpoint hands to the stream endpoint.
type PendingPayload struct {
	Query            string          `json:"query"`
	ImageData        string          `json:"image_data,omitempty"` // base64, optional data: prefix
	ImageMimeType    string          `json:"image_mime_type,omitempty"`
	RetrievedContext []ContextRecord `json:"retrieved_context,omitempty"`
	UserLocation     *LatLng         `json:"user_location,omitempty"`
}

// PendingRequests bridges the submit call and the later stream call. It is
// an in-memory, process-local handoff; a restart loses entries and callers
// re-submit.
type PendingRequests struct {
	mu      sync.Mutex
	entries map[string]*PendingPayload

	pollInterval time.Duration
	maxAttempts  int
}

func NewPendingRequests() *PendingRequests {
	return NewPendingRequestsWithWindow(100*time.Millisecond, 50)
}

// NewPendingRequestsWithWindow sets a custom wait window for Await.
func NewPendingRequestsWithWindow(pollInterval time.Duration, maxAttempts int) *PendingRequests {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 50
	}
	return &PendingRequests{
		entries:      make(map[string]*PendingPayload),
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Store saves the payload for sessionID, overwriting any previous entry.
func (p *PendingRequests) Store(sessionID string, payload *PendingPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[sessionID] = payload
}

// Take removes and returns the entry for sessionID (read-once).
func (p *PendingRequests) Take(sessionID string) (*PendingPayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, ok := p.entries[sessionID]
	if ok {
		delete(p.entries, sessionID)
	}
	return payload, ok
}

// Await polls Take until the payload arrives or the wait window (poll
// interval x attempts, ~5s by default) is exhausted.
func (p *PendingRequests) Await(ctx context.Context, sessionID string) (*PendingPayload, error) {
	const op = "PendingRequests.Await"

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if payload, ok := p.Take(sessionID); ok {
			return payload, nil
		}
		select {
		case <-ctx.Done():
			return nil, utils.E(utils.CodeUnavailable, op, "stream closed while waiting for request data", ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
	return nil, utils.E(utils.CodeTimeout, op, "no request data received for session", nil)
}

// Remove discards any entry for sessionID. Safe to call for unknown ids.
func (p *PendingRequests) Remove(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, sessionID)
}

func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
