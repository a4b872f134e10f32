// Package engine fans reconstructed telemetry events out to ground-side
// consumers (event log, visualization bridge).
package engine

import (
	"context"

	"novafc/pkg/stream"
)

// Hub broadcasts events to any number of subscribers. A slow subscriber
// drops events rather than stalling the decode pass; the authoritative
// record is the raw capture, not a subscriber's view.
type Hub struct {
	broadcast  chan stream.Event
	register   chan chan stream.Event
	unregister chan chan stream.Event
	clients    map[chan stream.Event]struct{}
	clientBuf  int
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan stream.Event, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan stream.Event, 256),
		register:   make(chan chan stream.Event),
		unregister: make(chan chan stream.Event),
		clients:    make(map[chan stream.Event]struct{}),
		clientBuf:  100,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case ev := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan stream.Event {
	return h.SubscribeWithBuffer(h.clientBuf)
}

func (h *Hub) SubscribeWithBuffer(size int) chan stream.Event {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan stream.Event, size)
	h.register <- ch
	return ch
}

func (h *Hub) Unsubscribe(ch chan stream.Event) {
	h.unregister <- ch
}

func (h *Hub) Publish(ev stream.Event) {
	h.broadcast <- ev
}
