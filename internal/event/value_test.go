package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	t.Parallel()

	t.Run("notifies subscribers in order and stops after unsubscribe", func(t *testing.T) {
		v := NewValue(0)

		var seen []string
		unsubA := v.Subscribe(func(n int) { seen = append(seen, "a") })
		v.Subscribe(func(n int) { seen = append(seen, "b") })

		v.Set(1)
		unsubA()
		unsubA()
		v.Set(2)

		require.Equal(t, []string{"a", "b", "b"}, seen)
		require.Equal(t, 2, v.Get())
	})

	t.Run("subscriber may set the value again", func(t *testing.T) {
		v := NewValue("")
		v.Subscribe(func(s string) {
			if s == "first" {
				v.Set("second")
			}
		})

		v.Set("first")

		require.Equal(t, "second", v.Get())
	})
}

func TestBusNotifier(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	NewBusNotifier(bus).Warning("Session Expired", "Please log in again.")

	select {
	case e := <-events:
		require.Equal(t, TypeSessionExpired, e.Type)
		require.NotEmpty(t, e.ID)
		notice, ok := e.Payload.(Notice)
		require.True(t, ok)
		require.Equal(t, "Session Expired", notice.Title)
	case <-time.After(time.Second):
		t.Fatal("expected a session expired event")
	}
}
