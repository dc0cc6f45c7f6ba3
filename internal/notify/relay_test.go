package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"go-storefront-session/internal/event"
)

type failingWriter struct{ calls int }

func (f *failingWriter) Write([]byte) (int, error) {
	f.calls++
	return 0, errors.New("closed pipe")
}

func startRelay(t *testing.T) (*Relay, *event.InMemoryBus) {
	t.Helper()

	bus := event.NewBus()
	relay := NewRelay(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return relay, bus
}

func TestRelayWritesNoticesAndEvents(t *testing.T) {
	t.Parallel()

	relay, bus := startRelay(t)

	var notices, events bytes.Buffer
	relay.Notices(&notices)
	relay.Events(&events)

	event.NewBusNotifier(bus).Warning("Session Expired", "Your session has expired. Please log in again.")
	bus.Publish(event.Event{Type: event.TypeCartSynced, UserID: "u1", Payload: map[string]any{"items": 2}})
	require.NoError(t, relay.Drain(context.Background()))

	require.Equal(t, "[warning] Session Expired: Your session has expired. Please log in again.\n", notices.String())

	lines := strings.Split(strings.TrimSpace(events.String()), "\n")
	require.Len(t, lines, 2)

	var synced event.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &synced))
	require.Equal(t, event.TypeCartSynced, synced.Type)
	require.Equal(t, "u1", synced.UserID)
	require.NotEmpty(t, synced.ID)
}

func TestRelayDetachAndFailingSinks(t *testing.T) {
	t.Parallel()

	relay, bus := startRelay(t)

	var kept bytes.Buffer
	broken := &failingWriter{}
	detach := relay.Events(&kept)
	relay.Events(broken)

	bus.Publish(event.Event{Type: event.TypeLoggedIn})
	require.NoError(t, relay.Drain(context.Background()))
	detach()

	bus.Publish(event.Event{Type: event.TypeLoggedOut})
	require.NoError(t, relay.Drain(context.Background()))

	require.Equal(t, 1, broken.calls)
	require.Equal(t, 1, strings.Count(kept.String(), "\n"))
	require.Contains(t, kept.String(), string(event.TypeLoggedIn))
}
