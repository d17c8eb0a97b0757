package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds emitted over the lifecycle stream.
const (
	EventDocumentUploaded = "document.uploaded"
	EventDocumentSigned   = "document.signed"
	EventDocumentDeleted  = "document.deleted"
)

// Event describes one document lifecycle change for live dashboards.
// UploaderID and SignerID let subscribers filter to their own documents.
type Event struct {
	Kind       string    `json:"kind"`
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status,omitempty"`
	UploaderID string    `json:"uploader_id,omitempty"`
	SignerID   string    `json:"signer_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs lifecycle events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
