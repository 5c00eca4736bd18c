package domain

import "errors"

var (
	// ErrBattleNotFound is returned when no live room exists for a battle id.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrCodeNotFound is returned when an invite code resolves to no live room.
	ErrCodeNotFound = errors.New("invite code not found")
	// ErrParticipantNotFound is returned when a user acts in a room they never joined.
	ErrParticipantNotFound = errors.New("participant not found in battle")
	// ErrInvalidAction is returned when an operation is illegal in the room's
	// current state, or when joining would exceed the mode's capacity.
	ErrInvalidAction = errors.New("invalid action for battle state")
	// ErrAlreadyMember is returned on a duplicate join for the same user.
	ErrAlreadyMember = errors.New("user already joined this battle")
	// ErrForbidden is returned when a non-leader attempts a leader-only action.
	ErrForbidden = errors.New("action restricted to battle leader")
	// ErrQuizNotFound indicates the quiz catalog has no entry for the id.
	ErrQuizNotFound = errors.New("quiz not found")
)
