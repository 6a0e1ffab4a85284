package eventsink

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/buzzer/internal/game"
)

// Envelope is the wire shape of a mirrored room event.
type Envelope struct {
	ID      string    `json:"id"`
	Room    string    `json:"room"`
	Event   string    `json:"event"`
	Epoch   uint64    `json:"epoch"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

func NewEnvelope(ev game.Event) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Room:    ev.Room,
		Event:   ev.Name,
		Epoch:   ev.Epoch,
		Payload: ev.Payload,
		At:      ev.At,
	}
}
