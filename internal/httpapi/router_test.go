package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/buzzer/internal/config"
	"github.com/kiliankoe/buzzer/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T, cfg config.Config) (*gin.Engine, *game.Registry) {
	t.Helper()
	rooms := game.NewRegistry(game.Options{})
	t.Cleanup(rooms.Stop)
	r := gin.New()
	Register(r, rooms, cfg)
	return r, rooms
}

func do(r http.Handler, method, path string, auth ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	r, _ := setup(t, config.Config{})
	w := do(r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
}

func TestCreateAndInspectRoom(t *testing.T) {
	r, rooms := setup(t, config.Config{})

	w := do(r, http.MethodPost, "/api/rooms")
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode(t, w)["roomCode"].(string)
	assert.Len(t, code, 6)

	_, _, err := rooms.Join(code, "Alice", nil)
	require.NoError(t, err)

	w = do(r, http.MethodGet, "/api/rooms/"+code)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Lobby", body["phase"])
	assert.Equal(t, []any{"Alice"}, body["players"])

	w = do(r, http.MethodGet, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["rooms"], 1)
}

func TestStartAndReset(t *testing.T) {
	r, rooms := setup(t, config.Config{})
	room, _, err := rooms.Join("abc123", "Alice", nil)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/rooms/ABC123/reset")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "phase_invalid", decode(t, w)["error"])

	w = do(r, http.MethodPost, "/api/rooms/abc123/start")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["epoch"])

	_, err = room.SubmitBuzz("Alice", 1)
	require.NoError(t, err)

	w = do(r, http.MethodPost, "/api/rooms/ABC123/reset")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["epoch"])
	assert.Equal(t, game.PhaseActive, room.Phase())
}

func TestUnknownRoom(t *testing.T) {
	r, _ := setup(t, config.Config{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/rooms/NOPE"},
		{http.MethodPost, "/api/rooms/NOPE/start"},
		{http.MethodPost, "/api/rooms/NOPE/reset"},
	} {
		w := do(r, tc.method, tc.path)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
		assert.Equal(t, "room_not_found", decode(t, w)["error"], tc.path)
	}
}

func TestHostRoutesRequireAuth(t *testing.T) {
	r, rooms := setup(t, config.Config{Host: config.Host{User: "host", Pass: "secret"}})
	rooms.Join("ROOM", "Alice", nil)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/rooms/ROOM/start").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/rooms", "host", "nope").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/rooms/ROOM/start", "host", "secret").Code)

	// room state stays public
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/rooms/ROOM").Code)
}
