package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
)

// eventQueueSize buffers events between producers and the hub goroutine.
const eventQueueSize = 256

// ErrHubStopped is returned by hub operations after Run has returned.
var ErrHubStopped = errors.New("gateway: hub stopped")

// Subscriber is a client session registered with the hub.
type Subscriber interface {
	// ID identifies the subscriber in logs.
	ID() string

	// Deliver queues frames for the client without blocking. Frames passed
	// in one call must be queued together and in order. An error means
	// nothing was queued; the subscriber is responsible for its own teardown.
	Deliver(frames ...[]byte) error
}

// Sink observes every property the hub stores, after subscribers are served.
// Observe is called from the hub goroutine and must not block.
type Sink interface {
	Observe(p indi.Property)
}

type eventKind int

const (
	eventPublish eventKind = iota
	eventConnected
	eventDisconnected
	eventSubscribe
	eventUnsubscribe
	eventSnapshot
)

type event struct {
	kind     eventKind
	prop     indi.Property
	sub      Subscriber
	errReply chan error
	snapshot chan []indi.Property
}

// Hub owns the Store and the subscriber set and fans out every change.
//
// Thread Safety: all exported methods are safe for concurrent use. They
// hand work to the goroutine running Run.
type Hub struct {
	logger *logging.Logger
	sinks  []Sink

	events   chan event
	stopped  chan struct{}
	stopOnce sync.Once

	// Owned by the Run goroutine.
	store       *Store
	subscribers map[string]Subscriber

	subscriberCount atomic.Int64
	published       atomic.Uint64
	dropped         atomic.Uint64
}

// Stats holds hub counters.
type Stats struct {
	Subscribers int64  `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// NewHub creates a hub with an empty store. Sinks receive every stored property.
func NewHub(logger *logging.Logger, sinks ...Sink) *Hub {
	return &Hub{
		logger:      logger,
		sinks:       sinks,
		events:      make(chan event, eventQueueSize),
		stopped:     make(chan struct{}),
		store:       NewStore(),
		subscribers: make(map[string]Subscriber),
	}
}

// AddSink registers another sink. It must be called before Run.
func (h *Hub) AddSink(sink Sink) {
	h.sinks = append(h.sinks, sink)
}

// Run processes events until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.stopped) })

	h.logger.Info("broadcast hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("broadcast hub stopped", "subscribers", len(h.subscribers))
			return nil
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case eventPublish:
		p := ev.prop
		if p.Device == indi.ProxyDevice && p.Name == indi.ConnectionProperty {
			h.logger.Warn("ignoring upstream property that shadows the link status", "property", p.ID())
			return
		}
		h.broadcast(h.store.Upsert(p))

	case eventConnected:
		h.broadcast(h.store.SetConnected(true))

	case eventDisconnected:
		dropped := h.store.Len() - 1
		h.store.Reset()
		h.logger.Info("device model cleared", "properties", dropped)
		h.broadcast(h.store.SetConnected(false))

	case eventSubscribe:
		ev.errReply <- h.subscribe(ev.sub)

	case eventUnsubscribe:
		if _, ok := h.subscribers[ev.sub.ID()]; ok {
			delete(h.subscribers, ev.sub.ID())
			h.subscriberCount.Store(int64(len(h.subscribers)))
			h.logger.Debug("session unsubscribed", "session", ev.sub.ID())
		}

	case eventSnapshot:
		ev.snapshot <- slices.Collect(h.store.All())
	}
}

// subscribe hands the subscriber the whole snapshot in a single delivery,
// then registers it for live updates.
func (h *Hub) subscribe(sub Subscriber) error {
	frames := make([][]byte, 0, h.store.Len())
	for p := range h.store.All() {
		frame, err := json.Marshal(p)
		if err != nil {
			h.logger.Error("encoding property", "property", p.ID(), "error", err)
			continue
		}
		frames = append(frames, frame)
	}

	if err := h.deliver(sub, frames...); err != nil {
		return fmt.Errorf("delivering snapshot: %w", err)
	}

	h.subscribers[sub.ID()] = sub
	h.subscriberCount.Store(int64(len(h.subscribers)))
	h.logger.Debug("session subscribed", "session", sub.ID(), "snapshot", len(frames))
	return nil
}

// broadcast sends p to every subscriber and sink. A failing subscriber is
// logged and skipped.
func (h *Hub) broadcast(p indi.Property) {
	h.published.Add(1)

	frame, err := json.Marshal(p)
	if err != nil {
		h.logger.Error("encoding property", "property", p.ID(), "error", err)
		return
	}

	for id, sub := range h.subscribers {
		if err := h.deliver(sub, frame); err != nil {
			h.dropped.Add(1)
			h.logger.Warn("update not delivered", "session", id, "property", p.ID(), "error", err)
		}
	}

	for _, sink := range h.sinks {
		h.observe(sink, p)
	}
}

func (h *Hub) deliver(sub Subscriber, frames ...[]byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub.Deliver(frames...)
}

func (h *Hub) observe(sink Sink, p indi.Property) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("sink panicked", "property", p.ID(), "panic", r)
		}
	}()
	sink.Observe(p)
}

// send queues ev for the hub goroutine unless the hub has stopped.
func (h *Hub) send(ev event) bool {
	select {
	case <-h.stopped:
		return false
	default:
	}
	select {
	case h.events <- ev:
		return true
	case <-h.stopped:
		return false
	}
}

// Publish stores p and broadcasts it. Implements indi.Publisher.
func (h *Hub) Publish(p indi.Property) {
	h.send(event{kind: eventPublish, prop: p})
}

// Connected marks the upstream link as connected. Implements indi.Publisher.
func (h *Hub) Connected() {
	h.send(event{kind: eventConnected})
}

// Disconnected drops every upstream device and marks the link as
// disconnected. Implements indi.Publisher.
func (h *Hub) Disconnected() {
	h.send(event{kind: eventDisconnected})
}

// Subscribe delivers the current snapshot to sub and registers it for live
// updates. It returns once both have happened.
//
// Returns:
//   - error: ErrHubStopped, ctx.Err(), or the snapshot delivery error
//     (in which case sub is not registered)
func (h *Hub) Subscribe(ctx context.Context, sub Subscriber) error {
	reply := make(chan error, 1)
	if !h.send(event{kind: eventSubscribe, sub: sub, errReply: reply}) {
		return ErrHubStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		// The hub may still register sub; the caller's Unsubscribe undoes it.
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Unsubscribe removes sub. Calling it more than once, or for a subscriber
// that never registered, is harmless.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.send(event{kind: eventUnsubscribe, sub: sub})
}

// Snapshot returns a copy of every stored property in store order.
func (h *Hub) Snapshot(ctx context.Context) ([]indi.Property, error) {
	reply := make(chan []indi.Property, 1)
	if !h.send(event{kind: eventSnapshot, snapshot: reply}) {
		return nil, ErrHubStopped
	}
	select {
	case props := <-reply:
		return props, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.stopped:
		return nil, ErrHubStopped
	}
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.subscriberCount.Load(),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}
