package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collab-playlist/internal/playlist"
)

// DefaultChannel is the Redis pub/sub channel events travel on.
const DefaultChannel = "playlist.events"

const (
	outboxSize     = 1024
	publishTimeout = 2 * time.Second
)

// RedisRelay fans events out through Redis so every process attached to the
// channel broadcasts them to its own subscribers. Each hub stamps its own
// sequence numbers.
//
// Publish never waits on Redis: events go through an outbox drained in order
// by Run.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
	ready   chan struct{}
	outbox  chan playlist.Event
	timeout time.Duration
}

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		log:     log.Named("redis"),
		ready:   make(chan struct{}),
		outbox:  make(chan playlist.Event, outboxSize),
		timeout: publishTimeout,
	}
}

// Ready is closed once the relay's subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Publish queues ev for the channel. A full outbox means Redis has stalled,
// so the event is broadcast locally instead.
func (r *RedisRelay) Publish(_ context.Context, ev playlist.Event) {
	ev.EventID = 0
	select {
	case r.outbox <- ev:
	default:
		r.log.Warn("outbox full, broadcasting locally", zap.String("type", ev.Type))
		r.hub.Broadcast(ev)
	}
}

// drain sends queued events in order. If Redis is unreachable or slower than
// the publish timeout, the event is broadcast locally so this process's
// subscribers still see it.
func (r *RedisRelay) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.outbox:
			r.send(ctx, ev)
		}
	}
}

func (r *RedisRelay) send(ctx context.Context, ev playlist.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.rdb.Publish(pctx, r.channel, data).Err(); err != nil {
		r.log.Warn("publish failed, broadcasting locally", zap.String("type", ev.Type), zap.Error(err))
		r.hub.Broadcast(ev)
	}
}

// Run drains the outbox and feeds the hub from the channel until ctx is
// cancelled. The outbox keeps draining even if the subscription fails.
func (r *RedisRelay) Run(ctx context.Context) error {
	go r.drain(ctx)

	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev playlist.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("discarding malformed event", zap.Error(err))
				continue
			}
			ev.EventID = 0
			r.hub.Broadcast(ev)
		}
	}
}
