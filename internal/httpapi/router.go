package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/buzzer/internal/config"
	"github.com/kiliankoe/buzzer/internal/game"
	"github.com/rs/zerolog/log"
)

type roomSummary struct {
	Code    string     `json:"code"`
	Phase   game.Phase `json:"phase"`
	Epoch   uint64     `json:"epoch"`
	Players int        `json:"players"`
}

// Register wires health, logging and the host API onto r.
func Register(r *gin.Engine, rooms *game.Registry, cfg config.Config) {
	r.Use(accessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "rooms": rooms.Len(), "time": time.Now().UTC()})
	})

	api := r.Group("/api/rooms")
	api.GET("/:code", func(c *gin.Context) {
		room, err := rooms.Get(c.Param("code"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, room.Snapshot())
	})

	host := api.Group("")
	if cfg.HostAuth() {
		host.Use(gin.BasicAuth(gin.Accounts{cfg.Host.User: cfg.Host.Pass}))
	}
	host.GET("", func(c *gin.Context) {
		list := rooms.Rooms()
		out := make([]roomSummary, 0, len(list))
		for _, room := range list {
			s := room.Snapshot()
			out = append(out, roomSummary{Code: s.Code, Phase: s.Phase, Epoch: s.Epoch, Players: len(s.Players)})
		}
		c.JSON(http.StatusOK, gin.H{"rooms": out})
	})
	host.POST("", func(c *gin.Context) {
		room, err := rooms.Create()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"roomCode": room.Code()})
	})
	host.POST("/:code/start", func(c *gin.Context) {
		epoch, err := rooms.StartRound(c.Param("code"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "epoch": epoch})
	})
	host.POST("/:code/reset", func(c *gin.Context) {
		epoch, err := rooms.ResetRound(c.Param("code"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "epoch": epoch})
	})
}

func fail(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, game.ErrRoomNotFound), errors.Is(err, game.ErrRoomClosed):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrPhaseInvalid):
		status = http.StatusConflict
	case errors.Is(err, game.ErrCapacity):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": game.Kind(err), "message": err.Error()})
}

// accessLog skips /socket.io polling noise.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	}
}
