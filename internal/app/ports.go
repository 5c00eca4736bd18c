package app

import (
	"context"

	"quiz-battle-service/internal/domain"
)

// RoomDirectory is the process-wide registry of live rooms, indexed by battle
// id and by invite code. Both keys must always resolve to the same instance.
type RoomDirectory interface {
	// Insert registers the room under both keys. It fails with
	// domain.ErrAlreadyMember semantics only on key collision; callers retry
	// with a fresh invite code.
	Insert(room *Room) error
	Get(battleID string) (*Room, bool)
	GetByCode(code string) (*Room, bool)
	// Remove drops the room from both indices atomically.
	Remove(battleID string)
	// Rooms snapshots the live room set (used for waiting-list queries and sweeps).
	Rooms() []*Room
}

// QuizCatalog resolves quiz display names. Failures are swallowed at the call
// site and replaced with a synthesized name.
type QuizCatalog interface {
	GetQuizName(ctx context.Context, quizID string) (string, error)
}

// AnswerOracle reports whether a submitted option is the correct one.
// Failures (including unknown option ids) are treated as incorrect.
type AnswerOracle interface {
	IsOptionCorrect(ctx context.Context, optionID string) (bool, error)
}

// UserDirectory enriches outbound participant views. Best-effort: failures
// leave display fields empty.
type UserDirectory interface {
	GetDisplayInfo(ctx context.Context, userID string) (domain.DisplayInfo, error)
}

// BattleStore persists room and participant state. A persist failure aborts
// the in-progress mutation before anything is broadcast.
type BattleStore interface {
	SaveBattle(ctx context.Context, battle *domain.Battle) error
	SaveParticipant(ctx context.Context, participant *domain.Participant) error
	DeleteParticipant(ctx context.Context, battleID, userID string) error
	DeleteBattle(ctx context.Context, battleID string) error
}

// BroadcastPort fans room events out beyond in-process subscribers
// (e.g. to a pub/sub channel shared by other instances). Fire-and-forget.
type BroadcastPort interface {
	Publish(ctx context.Context, event domain.Event)
}
