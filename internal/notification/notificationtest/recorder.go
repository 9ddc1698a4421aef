// Package notificationtest records notifications instead of queueing them.
package notificationtest

import (
	"context"
	"sync"

	"github.com/smallbiznis/subkit/internal/notification/domain"
)

type Sent struct {
	Kind      domain.Kind
	Recipient string
	Args      map[string]any
}

// Recorder is a domain.Dispatcher that keeps every Send in memory. Setting
// Err makes Send fail without recording.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

var _ domain.Dispatcher = (*Recorder)(nil)

func (r *Recorder) Send(_ context.Context, kind domain.Kind, recipient string, args map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Sent{Kind: kind, Recipient: recipient, Args: args})
	return nil
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// OfKind returns only the recorded sends of kind.
func (r *Recorder) OfKind(kind domain.Kind) []Sent {
	out := []Sent{}
	for _, s := range r.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
