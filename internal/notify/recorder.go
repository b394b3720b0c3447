package notify

import (
	"context"
	"sync"
)

// Recorder is a Sink that remembers every request it receives. Used by
// tests to assert on the offline-notification path.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
	fail     error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the request, or returns the configured failure.
func (r *Recorder) Send(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.requests = append(r.requests, req)
	return nil
}

// FailWith makes subsequent Sends return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Requests returns a copy of everything recorded so far.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// ForRecipient returns recorded requests addressed to userID.
func (r *Recorder) ForRecipient(userID int64) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for _, req := range r.requests {
		if req.RecipientID == userID {
			out = append(out, req)
		}
	}
	return out
}

var _ Sink = (*Recorder)(nil)
