package game

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	maxCodeLen    = 6
	generatedLen  = 6
	joinAttempts  = 3
	createRetries = 32

	// unclaimedTTL bounds how long a host-created room waits for its first member.
	unclaimedTTL = 5 * time.Minute
)

type Options struct {
	// EvictGrace delays removal of an empty room so a quick reconnect keeps
	// its state. Zero removes it as soon as the last member leaves.
	EvictGrace time.Duration
	// MaxRooms caps live rooms. Zero means unlimited.
	MaxRooms int
	Clock    clockwork.Clock
	Sinks    []Sink
}

// Registry owns the live rooms keyed by normalized code.
type Registry struct {
	opts Options

	mu      sync.Mutex
	rooms   map[string]*Room
	timers  map[string]clockwork.Timer
	stopped bool
}

func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		opts:   opts,
		rooms:  make(map[string]*Room),
		timers: make(map[string]clockwork.Timer),
	}
}

// NormalizeCode trims and uppercases a room code and checks its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > maxCodeLen {
		return "", ErrInvalidRoomCode
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", ErrInvalidRoomCode
		}
	}
	return code, nil
}

// GetOrCreate returns the room for code, creating it in Lobby if unseen.
func (rg *Registry) GetOrCreate(code string) (*Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if r := rg.rooms[code]; r != nil {
		return r, nil
	}
	return rg.createLocked(code)
}

// Create opens a room under a fresh random code.
func (rg *Registry) Create() (*Room, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	for i := 0; i < createRetries; i++ {
		code := randomCode(generatedLen)
		if rg.rooms[code] != nil {
			continue
		}
		r, err := rg.createLocked(code)
		if err != nil {
			return nil, err
		}
		rg.armLocked(r, max(rg.opts.EvictGrace, unclaimedTTL))
		return r, nil
	}
	log.Error().Int("rooms", len(rg.rooms)).Msg("no free room code")
	return nil, ErrCapacity
}

func (rg *Registry) createLocked(code string) (*Room, error) {
	if rg.stopped {
		return nil, ErrRoomClosed
	}
	if rg.opts.MaxRooms > 0 && len(rg.rooms) >= rg.opts.MaxRooms {
		log.Error().Int("max", rg.opts.MaxRooms).Str("code", code).Msg("room capacity exhausted")
		return nil, ErrCapacity
	}
	r := newRoom(code, rg.opts.Sinks, rg.scheduleEviction)
	rg.rooms[code] = r
	log.Info().Str("code", code).Int("rooms", len(rg.rooms)).Msg("room created")
	return r, nil
}

func (rg *Registry) Get(code string) (*Room, error) {
	norm, err := NormalizeCode(code)
	if err != nil {
		return nil, newRoomNotFoundError(code)
	}
	rg.mu.Lock()
	defer rg.mu.Unlock()
	r := rg.rooms[norm]
	if r == nil {
		return nil, newRoomNotFoundError(norm)
	}
	return r, nil
}

// Remove deletes an empty room. Non-empty or unknown codes are left alone.
func (rg *Registry) Remove(code string) bool {
	norm, err := NormalizeCode(code)
	if err != nil {
		return false
	}
	rg.mu.Lock()
	r := rg.rooms[norm]
	rg.mu.Unlock()
	if r == nil {
		return false
	}
	return rg.removeRoom(r)
}

func (rg *Registry) removeRoom(r *Room) bool {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if rg.rooms[r.code] != r {
		return false
	}
	// lock order is registry then room
	if !r.closeIfEmpty() {
		return false
	}
	delete(rg.rooms, r.code)
	if t := rg.timers[r.code]; t != nil {
		t.Stop()
		delete(rg.timers, r.code)
	}
	r.dispatch.close()
	log.Info().Str("code", r.code).Int("rooms", len(rg.rooms)).Msg("room evicted")
	return true
}

func (rg *Registry) scheduleEviction(r *Room) {
	if rg.opts.EvictGrace <= 0 {
		rg.removeRoom(r)
		return
	}
	rg.mu.Lock()
	defer rg.mu.Unlock()
	rg.armLocked(r, rg.opts.EvictGrace)
}

func (rg *Registry) armLocked(r *Room, d time.Duration) {
	if rg.stopped || rg.rooms[r.code] != r {
		return
	}
	if t := rg.timers[r.code]; t != nil {
		t.Stop()
	}
	rg.timers[r.code] = rg.opts.Clock.AfterFunc(d, func() {
		rg.removeRoom(r)
	})
	log.Debug().Str("code", r.code).Dur("after", d).Msg("room eviction scheduled")
}

// Join resolves or creates the room and admits name. A room evicted between
// lookup and admission is replaced by a fresh one.
func (rg *Registry) Join(code, name string, conn Conn) (*Room, *Member, error) {
	var lastErr error
	for i := 0; i < joinAttempts; i++ {
		r, err := rg.GetOrCreate(code)
		if err != nil {
			return nil, nil, err
		}
		m, err := r.Join(name, conn)
		if errors.Is(err, ErrRoomClosed) {
			lastErr = err
			continue
		}
		if err != nil {
			if r.Len() == 0 {
				rg.scheduleEviction(r)
			}
			return nil, nil, err
		}
		return r, m, nil
	}
	return nil, nil, lastErr
}

func (rg *Registry) Leave(code, name string) error {
	r, err := rg.Get(code)
	if err != nil {
		return err
	}
	r.Leave(name)
	return nil
}

func (rg *Registry) StartRound(code string) (uint64, error) {
	r, err := rg.Get(code)
	if err != nil {
		return 0, err
	}
	return r.StartRound()
}

func (rg *Registry) ResetRound(code string) (uint64, error) {
	r, err := rg.Get(code)
	if err != nil {
		return 0, err
	}
	return r.ResetRound()
}

func (rg *Registry) SubmitBuzz(code, name string, epoch uint64) (BuzzOutcome, error) {
	r, err := rg.Get(code)
	if err != nil {
		return BuzzOutcome{}, err
	}
	return r.SubmitBuzz(name, epoch)
}

func (rg *Registry) SubmitBuzzFrom(code, name string, conn Conn, epoch uint64) (BuzzOutcome, error) {
	r, err := rg.Get(code)
	if err != nil {
		return BuzzOutcome{}, err
	}
	return r.SubmitBuzzFrom(name, conn, epoch)
}

// Rooms lists live rooms sorted by code.
func (rg *Registry) Rooms() []*Room {
	rg.mu.Lock()
	out := make([]*Room, 0, len(rg.rooms))
	for _, r := range rg.rooms {
		out = append(out, r)
	}
	rg.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}

func (rg *Registry) Len() int {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	return len(rg.rooms)
}

// Stop cancels pending evictions and drains every room's queue.
func (rg *Registry) Stop() {
	rg.mu.Lock()
	if rg.stopped {
		rg.mu.Unlock()
		return
	}
	rg.stopped = true
	for code, t := range rg.timers {
		t.Stop()
		delete(rg.timers, code)
	}
	rooms := make([]*Room, 0, len(rg.rooms))
	for _, r := range rg.rooms {
		rooms = append(rooms, r)
	}
	rg.mu.Unlock()

	for _, r := range rooms {
		r.dispatch.close()
	}
	for _, r := range rooms {
		r.dispatch.wait()
	}
	log.Info().Int("rooms", len(rooms)).Msg("registry stopped")
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
