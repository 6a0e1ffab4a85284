package eventsink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kiliankoe/buzzer/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

func TestSubject(t *testing.T) {
	ev := game.Event{Room: "ABC123", Name: game.EventFirstBuzz}
	assert.Equal(t, "buzzer.rooms.ABC123.first_buzz", Subject("buzzer.rooms", ev))
}

func TestEnvelopeJSON(t *testing.T) {
	ev := game.Event{Room: "ABC123", Name: game.EventFirstBuzz, Epoch: 3, Payload: game.FirstBuzz{Player: "Bob"}, At: at}
	env := NewEnvelope(ev)
	assert.NotEmpty(t, env.ID)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ABC123", got["room"])
	assert.Equal(t, "first_buzz", got["event"])
	assert.Equal(t, float64(3), got["epoch"])
	assert.Equal(t, map[string]any{"player": "Bob"}, got["payload"])
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.txt")
	sink, err := NewFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	events := []game.Event{
		{Room: "ABC123", Name: game.EventLobbyUpdate, Payload: game.LobbyUpdate{Players: []string{"Alice"}}, At: at},
		{Room: "ABC123", Name: game.EventGameStarted, Epoch: 1, Payload: game.GameStarted{}, At: at},
		{Room: "ABC123", Name: game.EventFirstBuzz, Epoch: 1, Payload: game.FirstBuzz{Player: "Alice"}, At: at},
		{Room: "ABC123", Name: game.EventRoundReset, Epoch: 2, Payload: game.RoundReset{}, At: at},
	}
	for _, ev := range events {
		require.NoError(t, sink.Publish(ctx, ev))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "round started")
	assert.Contains(t, lines[1], "winner Alice")
	assert.Contains(t, lines[1], "ABC123")
	assert.Contains(t, lines[2], "round 2")
}

func TestFileSinkHonorsContext(t *testing.T) {
	sink, err := NewFile(filepath.Join(t.TempDir(), "results.txt"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sink.Publish(ctx, game.Event{Room: "A", Name: game.EventFirstBuzz, Payload: game.FirstBuzz{Player: "Bob"}, At: at})
	assert.ErrorIs(t, err, context.Canceled)
}
