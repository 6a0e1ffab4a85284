package game

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNameTaken     = errors.New("name already taken")
	ErrPhaseInvalid  = errors.New("invalid phase for action")
	ErrStaleRound    = errors.New("stale round")
	ErrUnknownMember = errors.New("not a member of this room")

	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrInvalidName     = errors.New("invalid player name")

	// ErrAlreadyDecided is the "not first" outcome of a buzz.
	ErrAlreadyDecided = fmt.Errorf("%w: round already decided", ErrPhaseInvalid)

	ErrRoomClosed = errors.New("room closed")
	ErrCapacity   = errors.New("room capacity exhausted")
)

// Kind maps an error to the stable code sent to clients.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrRoomClosed):
		return "room_not_found"
	case errors.Is(err, ErrNameTaken):
		return "name_taken"
	case errors.Is(err, ErrStaleRound):
		return "stale_round"
	case errors.Is(err, ErrPhaseInvalid):
		return "phase_invalid"
	case errors.Is(err, ErrUnknownMember):
		return "unknown_member"
	case errors.Is(err, ErrInvalidRoomCode), errors.Is(err, ErrInvalidName):
		return "invalid_input"
	default:
		return "internal"
	}
}

func newRoomNotFoundError(code string) error {
	return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
}

func newNameTakenError(name string) error {
	return fmt.Errorf("%w: %s", ErrNameTaken, name)
}

func newStaleRoundError(got, want uint64) error {
	return fmt.Errorf("%w: epoch %d, current %d", ErrStaleRound, got, want)
}

func newPhaseError(op string, phase Phase) error {
	return fmt.Errorf("%w: %s in %s", ErrPhaseInvalid, op, phase)
}
