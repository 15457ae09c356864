package realtime

import (
	"context"

	"go.uber.org/zap"

	"collab-playlist/internal/playlist"
)

const defaultBufferSize = 256

// Subscriber is one push connection. Its channel is closed by the hub when
// the subscriber is unsubscribed, dropped for being too slow, or the hub stops.
type Subscriber struct {
	send chan playlist.Event
}

// Events delivers stamped events in sequence order.
func (s *Subscriber) Events() <-chan playlist.Event { return s.send }

type broadcastRequest struct {
	ev    playlist.Event
	reply chan playlist.Event
}

// Hub owns the subscriber set and the event sequence counter. All state is
// confined to the Run goroutine.
type Hub struct {
	// Registered subscribers.
	subscribers map[*Subscriber]bool

	// Events to stamp and fan out.
	broadcast chan broadcastRequest

	register   chan *Subscriber
	unregister chan *Subscriber
	count      chan chan int

	// Last sequence number handed out. The first broadcast gets 1.
	seq int64

	bufferSize int
	stopped    chan struct{}
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		broadcast:   make(chan broadcastRequest),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		count:       make(chan chan int),
		bufferSize:  defaultBufferSize,
		stopped:     make(chan struct{}),
		log:         log.Named("hub"),
	}
}

// Run serves the hub until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for sub := range h.subscribers {
			delete(h.subscribers, sub)
			close(sub.send)
		}
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.subscribers[sub] = true

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.send)
			}

		case reply := <-h.count:
			reply <- len(h.subscribers)

		case req := <-h.broadcast:
			ev := req.ev
			if ev.Sequenced() {
				h.seq++
				ev.EventID = h.seq
			}
			for sub := range h.subscribers {
				select {
				case sub.send <- ev:
				default:
					// Slow subscriber: drop it, it resyncs on reconnect.
					delete(h.subscribers, sub)
					close(sub.send)
					h.log.Warn("dropped slow subscriber", zap.Int64("event_id", ev.EventID))
				}
			}
			req.reply <- ev
		}
	}
}

// Subscribe registers a new subscriber. After the hub has stopped the
// returned subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{send: make(chan playlist.Event, h.bufferSize)}
	select {
	case h.register <- sub:
	case <-h.stopped:
		close(sub.send)
	}
	return sub
}

// Unsubscribe removes sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.stopped:
	}
}

// Broadcast stamps ev with the next sequence number, queues it for every
// subscriber and returns the stamped event. Pings are never stamped.
func (h *Hub) Broadcast(ev playlist.Event) playlist.Event {
	req := broadcastRequest{ev: ev, reply: make(chan playlist.Event, 1)}
	select {
	case h.broadcast <- req:
	case <-h.stopped:
		return ev
	}
	return <-req.reply
}

// Publish implements playlist.Publisher for single-process fan-out.
func (h *Hub) Publish(ctx context.Context, ev playlist.Event) {
	h.Broadcast(ev)
}

// Subscribers reports how many subscribers are connected.
func (h *Hub) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.stopped:
		return 0
	}
	return <-reply
}
