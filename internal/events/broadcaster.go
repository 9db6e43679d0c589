// Package events provides an in-process change feed for the upload queue
// and the folder navigator.
package events

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	EventUploadQueued    = "upload.queued"
	EventUploadProgress  = "upload.progress"
	EventUploadCompleted = "upload.completed"
	EventUploadFailed    = "upload.failed"
	EventUploadRemoved   = "upload.removed"
	EventListingLoaded   = "listing.loaded"
	EventListingFailed   = "listing.failed"
)

const defaultBuffer = 64

// Event is a state change a view should redraw for.
type Event struct {
	Type     string
	ItemID   string
	FileName string
	Progress int
	FolderID string
	Error    string
	At       time.Time
}

// IsUpload reports whether the event concerns the upload queue.
func (e Event) IsUpload() bool {
	return strings.HasPrefix(e.Type, "upload.")
}

// Publisher is the sending half of a Broadcaster.
type Publisher interface {
	Publish(Event)
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithClock stamps events from c instead of the wall clock.
func WithClock(c clock.Clock) Option {
	return func(b *Broadcaster) { b.clock = c }
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Broadcaster fans events out to subscribers. A subscriber whose buffer is
// full misses the event; views re-read state on the next one anyway.
type Broadcaster struct {
	clock  clock.Clock
	buffer int

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	dropped     atomic.Int64
}

func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		clock:       clock.New(),
		buffer:      defaultBuffer,
		subscribers: make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a new event channel. The caller must call Unsubscribe
// when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown or
// already removed channels are ignored.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish never blocks.
func (b *Broadcaster) Publish(event Event) {
	if event.At.IsZero() {
		event.At = b.clock.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
