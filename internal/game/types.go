package game

import (
	"time"
)

type Phase string

const (
	PhaseLobby    Phase = "Lobby"
	PhaseActive   Phase = "Active"
	PhaseRoundWon Phase = "RoundWon"
)

// Outbound event names, shared with every client revision.
const (
	EventLobbyUpdate = "lobby_update"
	EventGameStarted = "game_started"
	EventFirstBuzz   = "first_buzz"
	EventRoundReset  = "round_reset"
	EventError       = "error"
)

// Conn is the transport handle of a member. The core never looks inside it.
type Conn interface {
	ID() string
	Send(ev Event) error
}

type Member struct {
	Name         string `json:"name"`
	JoinSequence int    `json:"joinSequence"`

	conn Conn
}

type LobbyUpdate struct {
	Players []string `json:"players"`
}

type GameStarted struct{}

type FirstBuzz struct {
	Player string `json:"player"`
}

type RoundReset struct{}

// Event is one state-change notification produced by a room.
type Event struct {
	Room    string
	Name    string
	Epoch   uint64
	Payload any
	At      time.Time
}

type Snapshot struct {
	Code    string   `json:"code"`
	Phase   Phase    `json:"phase"`
	Epoch   uint64   `json:"epoch"`
	Winner  string   `json:"winner,omitempty"`
	Players []string `json:"players"`
}

// BuzzOutcome is the arbitration result seen by one caller.
type BuzzOutcome struct {
	Won    bool   `json:"won"`
	Winner string `json:"winner,omitempty"`
	Epoch  uint64 `json:"epoch"`
}
