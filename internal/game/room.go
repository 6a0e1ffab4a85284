package game

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const maxNameLen = 32

// Room is one buzzer session. All state below mu is only touched with mu held.
type Room struct {
	code string

	mu      sync.Mutex
	phase   Phase
	members map[string]*Member
	nextSeq int
	winner  string
	epoch   uint64
	closed  bool

	dispatch *dispatcher
	onEmpty  func(*Room)
}

func newRoom(code string, sinks []Sink, onEmpty func(*Room)) *Room {
	return &Room{
		code:     code,
		phase:    PhaseLobby,
		members:  make(map[string]*Member),
		dispatch: newDispatcher(code, sinks),
		onEmpty:  onEmpty,
	}
}

func (r *Room) Code() string { return r.code }

// Join admits name into the room. Allowed in any phase.
func (r *Room) Join(name string, conn Conn) (*Member, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomClosed
	}
	if _, ok := r.members[name]; ok {
		return nil, newNameTakenError(name)
	}
	r.nextSeq++
	m := &Member{Name: name, JoinSequence: r.nextSeq, conn: conn}
	r.members[name] = m
	r.emitLobbyLocked()
	r.catchUpLocked(m)

	log.Info().Str("code", r.code).Str("player", name).Int("members", len(r.members)).Msg("player joined")
	return m, nil
}

// Leave removes name if present. Returns false when it was not a member.
func (r *Room) Leave(name string) bool {
	return r.leave(func(m *Member) bool { return m.Name == name })
}

// LeaveConn removes whichever member is bound to c.
func (r *Room) LeaveConn(c Conn) bool {
	if c == nil {
		return false
	}
	id := c.ID()
	return r.leave(func(m *Member) bool { return m.conn != nil && m.conn.ID() == id })
}

func (r *Room) leave(match func(*Member) bool) bool {
	r.mu.Lock()
	var gone *Member
	for _, m := range r.members {
		if match(m) {
			gone = m
			break
		}
	}
	if gone == nil {
		r.mu.Unlock()
		return false
	}
	// winner is left as is; a departed winner's round stands until reset
	delete(r.members, gone.Name)
	r.emitLobbyLocked()
	empty := len(r.members) == 0
	r.mu.Unlock()

	log.Info().Str("code", r.code).Str("player", gone.Name).Bool("empty", empty).Msg("player left")
	if empty && r.onEmpty != nil {
		r.onEmpty(r)
	}
	return true
}

// StartRound moves Lobby or RoundWon to Active. A no-op while Active.
func (r *Room) StartRound() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrRoomClosed
	}
	if r.phase == PhaseActive {
		return r.epoch, nil
	}
	r.beginRoundLocked()
	r.emitLocked(EventGameStarted, GameStarted{})
	log.Info().Str("code", r.code).Uint64("epoch", r.epoch).Msg("round started")
	return r.epoch, nil
}

// ResetRound moves RoundWon back to Active. A no-op while Active.
func (r *Room) ResetRound() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrRoomClosed
	}
	switch r.phase {
	case PhaseActive:
		return r.epoch, nil
	case PhaseLobby:
		return r.epoch, newPhaseError("reset", r.phase)
	}
	r.beginRoundLocked()
	r.emitLocked(EventRoundReset, RoundReset{})
	log.Info().Str("code", r.code).Uint64("epoch", r.epoch).Msg("round reset")
	return r.epoch, nil
}

func (r *Room) beginRoundLocked() {
	r.phase = PhaseActive
	r.winner = ""
	r.epoch++
}

// SubmitBuzz arbitrates one buzz. Exactly one caller per epoch gets Won.
func (r *Room) SubmitBuzz(name string, epoch uint64) (BuzzOutcome, error) {
	return r.buzz(name, nil, epoch)
}

// SubmitBuzzFrom is SubmitBuzz for a buzz arriving on conn. It fails with
// ErrUnknownMember unless name is currently held by that same connection.
func (r *Room) SubmitBuzzFrom(name string, conn Conn, epoch uint64) (BuzzOutcome, error) {
	if conn == nil {
		return BuzzOutcome{}, ErrUnknownMember
	}
	return r.buzz(name, conn, epoch)
}

func (r *Room) buzz(name string, conn Conn, epoch uint64) (BuzzOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[name]
	if !ok || (conn != nil && (m.conn == nil || m.conn.ID() != conn.ID())) {
		return BuzzOutcome{Epoch: r.epoch}, ErrUnknownMember
	}
	if epoch != r.epoch {
		return BuzzOutcome{Epoch: r.epoch}, newStaleRoundError(epoch, r.epoch)
	}
	switch r.phase {
	case PhaseLobby:
		return BuzzOutcome{Epoch: r.epoch}, newPhaseError("buzz", r.phase)
	case PhaseRoundWon:
		return BuzzOutcome{Winner: r.winner, Epoch: r.epoch}, ErrAlreadyDecided
	}

	r.winner = name
	r.phase = PhaseRoundWon
	r.emitLocked(EventFirstBuzz, FirstBuzz{Player: name})
	log.Info().Str("code", r.code).Str("player", name).Uint64("epoch", r.epoch).Msg("first buzz")
	return BuzzOutcome{Won: true, Winner: name, Epoch: r.epoch}, nil
}

func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Room) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

func (r *Room) Winner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winner
}

func (r *Room) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[name]
	return ok
}

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Players returns member names in join order.
func (r *Room) Players() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playersLocked()
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Code:    r.code,
		Phase:   r.phase,
		Epoch:   r.epoch,
		Winner:  r.winner,
		Players: r.playersLocked(),
	}
}

// Flush waits until every event produced so far reached its members.
func (r *Room) Flush() {
	r.dispatch.flush()
}

func (r *Room) orderedLocked() []*Member {
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinSequence < out[j].JoinSequence })
	return out
}

func (r *Room) playersLocked() []string {
	ms := r.orderedLocked()
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	return names
}

func (r *Room) emitLobbyLocked() {
	r.emitLocked(EventLobbyUpdate, LobbyUpdate{Players: r.playersLocked()})
}

func (r *Room) emitLocked(name string, payload any) {
	r.dispatch.enqueue(r.eventLocked(name, payload), r.orderedLocked(), true)
}

// catchUpLocked replays the running round to a late joiner only.
func (r *Room) catchUpLocked(m *Member) {
	if r.phase == PhaseLobby {
		return
	}
	to := []*Member{m}
	r.dispatch.enqueue(r.eventLocked(EventGameStarted, GameStarted{}), to, false)
	if r.phase == PhaseRoundWon {
		r.dispatch.enqueue(r.eventLocked(EventFirstBuzz, FirstBuzz{Player: r.winner}), to, false)
	}
}

func (r *Room) eventLocked(name string, payload any) Event {
	return Event{
		Room:    r.code,
		Name:    name,
		Epoch:   r.epoch,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

// closeIfEmpty marks the room closed when nobody is in it.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return false
	}
	r.closed = true
	return true
}
