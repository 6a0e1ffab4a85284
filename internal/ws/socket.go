package ws

import (
	"crypto/subtle"
	"errors"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/buzzer/internal/config"
	"github.com/kiliankoe/buzzer/internal/game"
	"github.com/rs/zerolog/log"
)

var ErrNotHost = errors.New("not host")

// ConnCtx binds a socket to at most one room membership.
type ConnCtx struct {
	Code   string
	Name   string
	handle *handle
}

type Server struct {
	Rooms   *game.Registry
	hostKey string
}

type joinPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

// buzzPayload may carry a legacy playerName; it is ignored in favour of the
// name bound to the connection.
type buzzPayload struct {
	RoomCode   string  `json:"roomCode"`
	Epoch      *uint64 `json:"epoch,omitempty"`
	PlayerName string  `json:"playerName,omitempty"`
}

type hostPayload struct {
	RoomCode string `json:"roomCode"`
	HostKey  string `json:"hostKey"`
}

func New(rooms *game.Registry, cfg config.Config) *Server {
	return &Server{Rooms: rooms, hostKey: cfg.Host.Key}
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", srv.onConnect)
	io.OnEvent("/", "join_room", srv.onJoin)
	io.OnEvent("/", "leave_room", srv.onLeave)
	io.OnEvent("/", "buzz", srv.onBuzz)
	io.OnEvent("/", "start_game", srv.onStart)
	io.OnEvent("/", "reset_round", srv.onReset)
	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", srv.onDisconnect)

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))
	return io
}

func (srv *Server) onConnect(s socketio.Conn) error {
	s.SetContext(&ConnCtx{})
	log.Info().Str("sid", s.ID()).Msg("socket connected")
	return nil
}

func (srv *Server) onJoin(s socketio.Conn, payload joinPayload) map[string]any {
	if ctx := connCtx(s); ctx.Code != "" {
		srv.leave(s, ctx)
		s.SetContext(&ConnCtx{})
	}
	h := newHandle(s)
	room, m, err := srv.Rooms.Join(payload.RoomCode, payload.PlayerName, h)
	if err != nil {
		return srv.err(s, "join_room", err)
	}
	snap := room.Snapshot()
	h.observe(snap.Epoch)
	s.SetContext(&ConnCtx{Code: room.Code(), Name: m.Name, handle: h})
	log.Info().Str("sid", s.ID()).Str("code", room.Code()).Str("player", m.Name).Msg("join_room")
	return map[string]any{
		"ok":       true,
		"roomCode": snap.Code,
		"player":   m.Name,
		"phase":    snap.Phase,
		"epoch":    snap.Epoch,
		"players":  snap.Players,
	}
}

func (srv *Server) onLeave(s socketio.Conn) map[string]any {
	ctx := connCtx(s)
	if ctx.Code != "" {
		srv.leave(s, ctx)
		log.Info().Str("sid", s.ID()).Str("code", ctx.Code).Str("player", ctx.Name).Msg("leave_room")
	}
	s.SetContext(&ConnCtx{})
	return map[string]any{"ok": true}
}

func (srv *Server) onBuzz(s socketio.Conn, payload buzzPayload) map[string]any {
	ctx := connCtx(s)
	if ctx.Code == "" {
		return srv.err(s, "buzz", game.ErrUnknownMember)
	}
	if payload.RoomCode != "" {
		if code, err := game.NormalizeCode(payload.RoomCode); err != nil || code != ctx.Code {
			return srv.err(s, "buzz", game.ErrUnknownMember)
		}
	}
	epoch := ctx.handle.lastEpoch()
	if payload.Epoch != nil {
		epoch = *payload.Epoch
	}
	out, err := srv.Rooms.SubmitBuzzFrom(ctx.Code, ctx.Name, ctx.handle, epoch)
	if err != nil {
		return srv.err(s, "buzz", err)
	}
	return map[string]any{"ok": true, "won": out.Won, "epoch": out.Epoch}
}

func (srv *Server) onStart(s socketio.Conn, payload hostPayload) map[string]any {
	code, err := srv.hostRoom(s, payload)
	if err != nil {
		return srv.err(s, "start_game", err)
	}
	epoch, err := srv.Rooms.StartRound(code)
	if err != nil {
		return srv.err(s, "start_game", err)
	}
	return map[string]any{"ok": true, "epoch": epoch}
}

func (srv *Server) onReset(s socketio.Conn, payload hostPayload) map[string]any {
	code, err := srv.hostRoom(s, payload)
	if err != nil {
		return srv.err(s, "reset_round", err)
	}
	epoch, err := srv.Rooms.ResetRound(code)
	if err != nil {
		return srv.err(s, "reset_round", err)
	}
	return map[string]any{"ok": true, "epoch": epoch}
}

func (srv *Server) onDisconnect(s socketio.Conn, reason string) {
	ctx := connCtx(s)
	if ctx.handle != nil {
		ctx.handle.close()
	}
	if ctx.Code != "" {
		srv.leave(s, ctx)
	}
	s.SetContext(&ConnCtx{})
	log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
}

// hostRoom authorizes a host event and picks its room: the payload code, or
// the room the host socket itself joined.
func (srv *Server) hostRoom(s socketio.Conn, payload hostPayload) (string, error) {
	if srv.hostKey != "" && subtle.ConstantTimeCompare([]byte(payload.HostKey), []byte(srv.hostKey)) != 1 {
		return "", ErrNotHost
	}
	if payload.RoomCode != "" {
		return payload.RoomCode, nil
	}
	if ctx := connCtx(s); ctx.Code != "" {
		return ctx.Code, nil
	}
	return "", game.ErrInvalidRoomCode
}

func (srv *Server) leave(s socketio.Conn, ctx *ConnCtx) {
	room, err := srv.Rooms.Get(ctx.Code)
	if err != nil {
		return
	}
	room.LeaveConn(ctx.handle)
}

func (srv *Server) err(s socketio.Conn, op string, err error) map[string]any {
	code := game.Kind(err)
	if errors.Is(err, ErrNotHost) {
		code = "not_host"
	}
	ev := log.Info()
	if code == "internal" {
		ev = log.Error()
	}
	ev.Str("sid", s.ID()).Str("op", op).Str("kind", code).Err(err).Msg("request failed")
	s.Emit(game.EventError, map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": err.Error()}
}

func connCtx(s socketio.Conn) *ConnCtx {
	if ctx, ok := s.Context().(*ConnCtx); ok && ctx != nil {
		return ctx
	}
	return &ConnCtx{}
}
