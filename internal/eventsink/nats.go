package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiliankoe/buzzer/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	natsReconnectWait = 2 * time.Second
	natsDrainTimeout  = 5 * time.Second
)

// NATS mirrors room events to <prefix>.<ROOM>.<event>.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

func ConnectNATS(url, prefix string) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("buzzer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
		nats.DrainTimeout(natsDrainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", prefix).Msg("NATS event mirror connected")
	return &NATS{nc: nc, prefix: prefix}, nil
}

func (n *NATS) Publish(ctx context.Context, ev game.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewEnvelope(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(Subject(n.prefix, ev), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

func (n *NATS) Close() error {
	return n.nc.Drain()
}

func Subject(prefix string, ev game.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, ev.Room, ev.Name)
}
