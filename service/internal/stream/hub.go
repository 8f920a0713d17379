// internal/stream/hub.go
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ScavieFae/autonomous-world-model/service/internal/match"
)

// DefaultBuffer is the per-subscriber queue length. About four seconds of
// frames at 60 fps.
const DefaultBuffer = 256

// publishTimeout bounds each external publish so a stalled broker cannot
// hold up frame pacing.
const publishTimeout = 100 * time.Millisecond

// Subscriber receives every message published after it joined. C is closed
// when the subscriber is dropped for falling behind or the hub shuts down.
type Subscriber struct {
	ID     uuid.UUID
	Viewer string
	C      <-chan []byte

	ch chan []byte
}

// Hub fans messages out to websocket viewers and an optional external
// publisher.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	joined  chan struct{} // closed and replaced whenever a subscriber joins
	bufSize int
	closed  bool

	publisher Publisher
	log       *logrus.Entry
}

// NewHub returns a hub with bufSize-deep subscriber queues.
func NewHub(bufSize int, log *logrus.Entry) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		subs:    make(map[*Subscriber]struct{}),
		joined:  make(chan struct{}),
		bufSize: bufSize,
		log:     log,
	}
}

// SetPublisher attaches an external publisher that receives every broadcast.
func (h *Hub) SetPublisher(p Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
}

// Subscribe registers a viewer.
func (h *Hub) Subscribe(viewer string) *Subscriber {
	ch := make(chan []byte, h.bufSize)
	s := &Subscriber{ID: uuid.New(), Viewer: viewer, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s] = struct{}{}
	close(h.joined)
	h.joined = make(chan struct{})
	h.log.WithFields(logrus.Fields{"viewer": viewer, "subscriber": s.ID}).Infof("Viewer connected (%d total)", len(h.subs))
	return s
}

// Unsubscribe removes s. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	h.log.WithField("subscriber", s.ID).Infof("Viewer disconnected (%d remaining)", len(h.subs))
}

// Count is the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish queues msg for every subscriber without blocking. A subscriber
// whose queue is full is dropped.
func (h *Hub) Publish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			delete(h.subs, s)
			close(s.ch)
			h.log.WithField("subscriber", s.ID).Warn("Dropping slow viewer")
		}
	}
}

// Broadcast encodes ev and publishes it to viewers and the external
// publisher. It matches match.Match.BroadcastFn.
func (h *Hub) Broadcast(ev match.MatchEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Errorf("Failed to encode %s event", ev.Type)
		return
	}
	h.Publish(msg)

	h.mu.Lock()
	p := h.publisher
	h.mu.Unlock()
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, msg); err != nil {
		h.log.WithError(err).Warnf("External publish of %s event failed", ev.Type)
	}
}

// WaitForViewer blocks until at least one subscriber is connected.
func (h *Hub) WaitForViewer(ctx context.Context) error {
	for {
		h.mu.Lock()
		n, joined := len(h.subs), h.joined
		h.mu.Unlock()
		if n > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-joined:
		}
	}
}

// Close drops every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}
