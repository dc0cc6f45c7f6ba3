// Package notify relays bus events to the people and tools watching a
// session: notices go to the user, every event can be mirrored as JSON.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"go-storefront-session/internal/event"
)

type sink struct {
	w    io.Writer
	json bool
}

// Relay fans events out to registered writers. Sinks are only touched by
// the Run goroutine.
type Relay struct {
	log         *slog.Logger
	events      <-chan event.Event
	unsubscribe func()

	sinks      map[*sink]bool
	register   chan *sink
	unregister chan *sink
	idle       chan chan struct{}
}

// NewRelay subscribes right away so nothing published before Run starts
// is missed.
func NewRelay(bus event.Bus, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	events, unsubscribe := bus.Subscribe()
	return &Relay{
		log:         log.With("component", "notify"),
		events:      events,
		unsubscribe: unsubscribe,
		sinks:      make(map[*sink]bool),
		register:   make(chan *sink),
		unregister: make(chan *sink),
		idle:       make(chan chan struct{}),
	}
}

// Notices attaches w to receive user-facing notices as plain lines.
func (r *Relay) Notices(w io.Writer) func() {
	return r.attach(&sink{w: w})
}

// Events attaches w to receive every event as one JSON document per line.
func (r *Relay) Events(w io.Writer) func() {
	return r.attach(&sink{w: w, json: true})
}

func (r *Relay) attach(s *sink) func() {
	r.register <- s
	return func() { r.unregister <- s }
}

// Drain returns once every event already buffered for the relay has been
// written, or ctx ends.
func (r *Relay) Drain(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.idle <- done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers events until ctx ends. Notices, Events and Drain need Run
// to be running.
func (r *Relay) Run(ctx context.Context) {
	defer r.unsubscribe()
	events := r.events

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-r.register:
			r.sinks[s] = true
		case s := <-r.unregister:
			delete(r.sinks, s)
		case done := <-r.idle:
			r.flush(events)
			close(done)
		case e, ok := <-events:
			if !ok {
				return
			}
			r.deliver(e)
		}
	}
}

func (r *Relay) flush(events <-chan event.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			r.deliver(e)
		default:
			return
		}
	}
}

func (r *Relay) deliver(e event.Event) {
	var message []byte
	for s := range r.sinks {
		if s.json {
			if message == nil {
				var err error
				message, err = json.Marshal(e)
				if err != nil {
					r.log.Error("failed to marshal event", "type", e.Type, "error", err)
					continue
				}
				message = append(message, '\n')
			}
			r.write(s, message)
			continue
		}

		if notice, ok := e.Payload.(event.Notice); ok {
			r.write(s, []byte(fmt.Sprintf("[%s] %s: %s\n", notice.Level, notice.Title, notice.Message)))
		}
	}
}

func (r *Relay) write(s *sink, line []byte) {
	if _, err := s.w.Write(line); err != nil {
		r.log.Warn("dropping event sink after write failure", "error", err)
		delete(r.sinks, s)
	}
}
