package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"quiz-battle-service/internal/domain"
)

const inviteCodeAttempts = 10

// BattleService contains the battle room use cases. It routes commands to the
// right room through the directory and owns room creation and disposal.
type BattleService struct {
	rooms   RoomDirectory
	catalog QuizCatalog
	deps    roomDeps
}

func NewBattleService(rooms RoomDirectory, catalog QuizCatalog, oracle AnswerOracle, users UserDirectory, store BattleStore, port BroadcastPort) *BattleService {
	if store == nil {
		store = nopStore{}
	}
	return &BattleService{
		rooms:   rooms,
		catalog: catalog,
		deps: roomDeps{
			store:  store,
			port:   port,
			users:  users,
			oracle: oracle,
			now:    time.Now,
		},
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *BattleService) WithClock(now func() time.Time) *BattleService {
	s.deps.now = now
	return s
}

// Create opens a new WAITING room. The quiz display name is resolved once
// here; a catalog failure is swallowed and replaced with a synthesized name.
// When a leader id is supplied the leader joins immediately, which also
// broadcasts the initial room state.
func (s *BattleService) Create(ctx context.Context, quizID string, mode domain.BattleMode, leaderID string) (domain.Battle, error) {
	if !mode.Valid() {
		return domain.Battle{}, domain.ErrInvalidAction
	}

	quizName, err := s.catalog.GetQuizName(ctx, quizID)
	if err != nil {
		log.Printf("quiz name lookup failed for %s, synthesizing: %v", quizID, err)
		quizName = "Quiz #" + quizID
	}

	battle := domain.Battle{
		ID:        newID(),
		QuizID:    quizID,
		QuizName:  quizName,
		Mode:      mode,
		Status:    domain.StatusWaiting,
		LeaderID:  leaderID,
		CreatedAt: s.deps.now(),
	}
	// Invite codes are unique among live rooms only; retry on collision.
	var room *Room
	for attempt := 0; ; attempt++ {
		battle.InviteCode = newInviteCode()
		room = newRoom(battle, s.deps)
		if err := s.rooms.Insert(room); err == nil {
			break
		}
		if attempt+1 >= inviteCodeAttempts {
			return domain.Battle{}, fmt.Errorf("allocate invite code: %w", domain.ErrInvalidAction)
		}
	}
	if err := s.deps.store.SaveBattle(ctx, &battle); err != nil {
		s.rooms.Remove(battle.ID)
		return domain.Battle{}, fmt.Errorf("persist battle: %w", err)
	}

	if leaderID != "" {
		if err := room.Join(ctx, leaderID, "", "", ""); err != nil {
			s.rooms.Remove(battle.ID)
			return domain.Battle{}, err
		}
	}
	return room.Battle(), nil
}

// Join adds a user to a WAITING room identified by battle id.
func (s *BattleService) Join(ctx context.Context, battleID, userID, teamID, ipAddress, userAgent string) error {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	return room.Join(ctx, userID, teamID, ipAddress, userAgent)
}

// JoinByCode resolves the invite code and delegates to Join.
func (s *BattleService) JoinByCode(ctx context.Context, code, userID, teamID, ipAddress, userAgent string) (string, error) {
	room, ok := s.rooms.GetByCode(code)
	if !ok {
		return "", domain.ErrCodeNotFound
	}
	return room.ID(), room.Join(ctx, userID, teamID, ipAddress, userAgent)
}

func (s *BattleService) SetReady(ctx context.Context, battleID, userID string, ready bool) error {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	return room.SetReady(ctx, userID, ready)
}

func (s *BattleService) SubmitAnswer(ctx context.Context, battleID string, req AnswerRequest) (domain.AnswerRecord, error) {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.AnswerRecord{}, domain.ErrBattleNotFound
	}
	return room.SubmitAnswer(ctx, req)
}

func (s *BattleService) ReportTabSwitch(ctx context.Context, battleID, userID string) (int, error) {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return 0, domain.ErrBattleNotFound
	}
	return room.ReportTabSwitch(ctx, userID)
}

func (s *BattleService) CompleteBattle(ctx context.Context, battleID, userID string) error {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	return room.Complete(ctx, userID)
}

func (s *BattleService) RemoveParticipant(ctx context.Context, battleID, userID string) error {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	return room.RemoveParticipant(ctx, userID)
}

// Disband cancels a WAITING room (leader-only) and drops it from the
// directory once the final CANCELLED broadcast has gone out.
func (s *BattleService) Disband(ctx context.Context, battleID, requestingUserID string) error {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	if err := room.Disband(ctx, requestingUserID); err != nil {
		return err
	}
	s.rooms.Remove(battleID)
	return nil
}

// SendEmote relays an arbitrary payload to everyone in the room.
func (s *BattleService) SendEmote(ctx context.Context, battleID string, payload interface{}) error {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	room.Emote(ctx, payload)
	return nil
}

func (s *BattleService) GetResults(ctx context.Context, battleID string) (domain.BattleResults, error) {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.BattleResults{}, domain.ErrBattleNotFound
	}
	return room.Results(), nil
}

func (s *BattleService) GetParticipants(ctx context.Context, battleID string) ([]domain.ParticipantView, error) {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	return room.Participants(), nil
}

func (s *BattleService) GetState(ctx context.Context, battleID string) (domain.RoomState, error) {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return domain.RoomState{}, domain.ErrBattleNotFound
	}
	return room.Snapshot(), nil
}

// GetWaitingBattles lists WAITING rooms, optionally filtered by quiz.
func (s *BattleService) GetWaitingBattles(ctx context.Context, quizID string) []domain.RoomState {
	var waiting []domain.RoomState
	for _, room := range s.rooms.Rooms() {
		if room.Status() != domain.StatusWaiting {
			continue
		}
		if quizID != "" && room.QuizID() != quizID {
			continue
		}
		waiting = append(waiting, room.Snapshot())
	}
	return waiting
}

// Subscribe attaches a listener to a room's broadcast channels.
func (s *BattleService) Subscribe(_ context.Context, battleID string) (<-chan domain.Event, func(), error) {
	room, ok := s.rooms.Get(battleID)
	if !ok {
		return nil, nil, domain.ErrBattleNotFound
	}
	ch, cancel := room.Subscribe()
	return ch, cancel, nil
}

// EvictTerminal removes rooms that reached a terminal status longer than ttl
// ago, so completed results stay readable for a grace period without the
// directory leaking rooms forever. Returns how many rooms were evicted.
func (s *BattleService) EvictTerminal(ttl time.Duration) int {
	cutoff := s.deps.now().Add(-ttl)
	evicted := 0
	for _, room := range s.rooms.Rooms() {
		if at, terminal := room.TerminalSince(); terminal && at.Before(cutoff) {
			s.rooms.Remove(room.ID())
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("evicted %d terminal battle rooms", evicted)
	}
	return evicted
}

// RunJanitor sweeps terminal rooms on an interval until ctx is done.
func (s *BattleService) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.EvictTerminal(ttl)
		case <-ctx.Done():
			return
		}
	}
}

// nopStore satisfies BattleStore when no persistence backend is configured.
type nopStore struct{}

func (nopStore) SaveBattle(context.Context, *domain.Battle) error           { return nil }
func (nopStore) SaveParticipant(context.Context, *domain.Participant) error { return nil }
func (nopStore) DeleteParticipant(context.Context, string, string) error    { return nil }
func (nopStore) DeleteBattle(context.Context, string) error                 { return nil }
