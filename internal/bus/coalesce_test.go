package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Payload) Payload {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestCoalesceDeliversSinglePayload(t *testing.T) {
	in := make(chan Payload)
	out := Coalesce(in)

	in <- Payload{"MaxHDDRPM": 5400}
	assert.Equal(t, Payload{"MaxHDDRPM": 5400}, receive(t, out))

	close(in)
	_, ok := <-out
	assert.False(t, ok)
}

func TestCoalesceKeepsLatest(t *testing.T) {
	in := make(chan Payload)
	out := Coalesce(in)

	// The consumer is not reading, so every send after the first replaces
	// the held payload.
	in <- Payload{"MaxHDDRPM": 1000}
	in <- Payload{"MaxHDDRPM": 2000}
	in <- Payload{"MaxHDDRPM": 3000}

	assert.Equal(t, Payload{"MaxHDDRPM": 3000}, receive(t, out))

	select {
	case p := <-out:
		t.Fatalf("unexpected extra payload %v", p)
	case <-time.After(50 * time.Millisecond):
	}

	close(in)
}
