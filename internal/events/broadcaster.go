// Package events fans controller state changes out to presentation
// subscribers over channels.
package events

import (
	"sync"
	"time"

	"github.com/awss/awss/internal/access"
	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/browser"
	"github.com/awss/awss/internal/metrics"
)

const (
	EventTreeChildren = "tree_children"
	EventRows         = "rows"
	EventHistory      = "history"
	EventProfile      = "profile"
	EventProgress     = "progress"
	EventPreview      = "preview"
	EventNotify       = "notify"
)

// Event is one controller state change. Only the fields matching Type
// are populated.
type Event struct {
	Type      string
	View      browser.Context
	Children  []browser.Context
	Rows      []browser.Row
	CanBack   bool
	CanFwd    bool
	Bucket    string
	Profile   awsconfig.Profile
	Access    access.Level
	Done      int
	Total     int
	Preview   browser.Preview
	Message   string
	Severity  browser.Severity
	Timestamp int64
}

// Broadcaster distributes events to all subscribers. It implements
// browser.Emitter.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetUISubscribersActive(int64(b.Count()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
	metrics.SetUISubscribersActive(int64(b.Count()))
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordUIEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broadcaster) TreeChildrenUpdated(parent browser.Context, children []browser.Context) {
	b.Publish(Event{Type: EventTreeChildren, View: parent, Children: children})
}

func (b *Broadcaster) RowsUpdated(view browser.Context, rows []browser.Row) {
	b.Publish(Event{Type: EventRows, View: view, Rows: rows})
}

func (b *Broadcaster) HistoryState(canBack, canForward bool) {
	b.Publish(Event{Type: EventHistory, CanBack: canBack, CanFwd: canForward})
}

func (b *Broadcaster) ProfileIndicator(bucket string, profile awsconfig.Profile, level access.Level) {
	b.Publish(Event{Type: EventProfile, Bucket: bucket, Profile: profile, Access: level})
}

func (b *Broadcaster) ResolutionProgress(done, total int) {
	b.Publish(Event{Type: EventProgress, Done: done, Total: total})
}

func (b *Broadcaster) PreviewUpdated(preview browser.Preview) {
	b.Publish(Event{Type: EventPreview, Preview: preview})
}

func (b *Broadcaster) Notify(message string, severity browser.Severity) {
	b.Publish(Event{Type: EventNotify, Message: message, Severity: severity})
}
