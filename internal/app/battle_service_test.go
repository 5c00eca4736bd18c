package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func TestCreateResolvesNameAndJoinsLeader(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, err := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if battle.Status != domain.StatusWaiting {
		t.Fatalf("expected WAITING, got %s", battle.Status)
	}
	if battle.QuizName != "General Knowledge" {
		t.Fatalf("expected resolved quiz name, got %q", battle.QuizName)
	}
	if len(battle.InviteCode) != 6 {
		t.Fatalf("expected 6-char invite code, got %q", battle.InviteCode)
	}

	views, err := service.GetParticipants(ctx, battle.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(views) != 1 || views[0].UserID != "u1" {
		t.Fatalf("expected leader auto-joined, got %+v", views)
	}
	if views[0].DisplayName != "Alice" {
		t.Fatalf("expected display enrichment, got %+v", views[0])
	}
}

func TestCreateSynthesizesNameOnCatalogMiss(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, err := service.Create(ctx, "quiz-unknown", domain.ModeSolo1v1, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if battle.QuizName != "Quiz #quiz-unknown" {
		t.Fatalf("expected synthesized name, got %q", battle.QuizName)
	}
}

func TestEndToEndSoloBattle(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, err := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := service.JoinByCode(ctx, battle.InviteCode, "u2", "", "", ""); err != nil {
		t.Fatalf("join by code: %v", err)
	}
	state, _ := service.GetState(ctx, battle.ID)
	if state.Status != domain.StatusWaiting || len(state.Participants) != 2 {
		t.Fatalf("expected 2 waiting participants, got %+v", state)
	}

	if err := service.SetReady(ctx, battle.ID, "u1", true); err != nil {
		t.Fatalf("ready u1: %v", err)
	}
	if err := service.SetReady(ctx, battle.ID, "u2", true); err != nil {
		t.Fatalf("ready u2: %v", err)
	}
	state, _ = service.GetState(ctx, battle.ID)
	if state.Status != domain.StatusInProgress {
		t.Fatalf("expected auto-start, got %s", state.Status)
	}
	if state.StartedAt == nil {
		t.Fatalf("expected startedAt set")
	}

	recA, err := service.SubmitAnswer(ctx, battle.ID, app.AnswerRequest{
		UserID: "u1", QuestionID: "q1", Answer: "o2", TimeTakenMs: 1000,
	})
	if err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	if !recA.IsCorrect || recA.ScoreAwarded != 15 {
		t.Fatalf("expected u1 to score 15, got %+v", recA)
	}
	recB, err := service.SubmitAnswer(ctx, battle.ID, app.AnswerRequest{
		UserID: "u2", QuestionID: "q1", Answer: "o2", TimeTakenMs: 12000,
	})
	if err != nil {
		t.Fatalf("submit u2: %v", err)
	}
	if recB.ScoreAwarded != 11 {
		t.Fatalf("expected u2 to score 11, got %+v", recB)
	}

	if err := service.CompleteBattle(ctx, battle.ID, "u1"); err != nil {
		t.Fatalf("complete u1: %v", err)
	}
	if err := service.CompleteBattle(ctx, battle.ID, "u2"); err != nil {
		t.Fatalf("complete u2: %v", err)
	}

	results, err := service.GetResults(ctx, battle.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", results.Status)
	}
	if results.Participants[0].UserID != "u1" || results.Participants[0].Score != 15 {
		t.Fatalf("expected u1 leading with 15, got %+v", results.Participants)
	}
	if results.Participants[1].Score != 11 {
		t.Fatalf("expected u2 with 11, got %+v", results.Participants[1])
	}
}

func TestCapacityEnforced(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "")
	if err := service.Join(ctx, battle.ID, "u1", "", "", ""); err != nil {
		t.Fatalf("join u1: %v", err)
	}
	if err := service.Join(ctx, battle.ID, "u2", "", "", ""); err != nil {
		t.Fatalf("join u2: %v", err)
	}
	if err := service.Join(ctx, battle.ID, "u3", "", "", ""); !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
}

func TestDuplicateJoinRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	if err := service.Join(ctx, battle.ID, "u1", "", "", ""); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	views, _ := service.GetParticipants(ctx, battle.ID)
	if len(views) != 1 {
		t.Fatalf("duplicate join must not add a row, got %d", len(views))
	}
}

func TestAutoStartRequiresAllReady(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	_ = service.Join(ctx, battle.ID, "u2", "", "", "")

	if err := service.SetReady(ctx, battle.ID, "u1", true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	// u1 backs out before u2 readies up: the conjunction must not fire.
	if err := service.SetReady(ctx, battle.ID, "u1", false); err != nil {
		t.Fatalf("unready: %v", err)
	}
	if err := service.SetReady(ctx, battle.ID, "u2", true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	state, _ := service.GetState(ctx, battle.ID)
	if state.Status != domain.StatusWaiting {
		t.Fatalf("expected WAITING until everyone is ready, got %s", state.Status)
	}

	if err := service.SetReady(ctx, battle.ID, "u1", true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	state, _ = service.GetState(ctx, battle.ID)
	if state.Status != domain.StatusInProgress {
		t.Fatalf("expected start once all ready, got %s", state.Status)
	}
}

func TestSetReadyUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	if err := service.SetReady(ctx, battle.ID, "ghost", true); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
}

func TestDisbandLeaderOnly(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	_ = service.Join(ctx, battle.ID, "u2", "", "", "")

	if err := service.Disband(ctx, battle.ID, "u2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-leader, got %v", err)
	}
	views, _ := service.GetParticipants(ctx, battle.ID)
	if len(views) != 2 {
		t.Fatalf("failed disband must leave room unmodified, got %d participants", len(views))
	}

	updates, cancel, err := service.Subscribe(ctx, battle.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates // initial snapshot

	if err := service.Disband(ctx, battle.ID, "u1"); err != nil {
		t.Fatalf("disband by leader: %v", err)
	}

	// The CANCELLED broadcast goes out before the room is torn down.
	evt := <-updates
	final, ok := evt.Payload.(domain.RoomState)
	if !ok {
		t.Fatalf("expected room state payload, got %T", evt.Payload)
	}
	if final.Status != domain.StatusCancelled || len(final.Participants) != 0 {
		t.Fatalf("expected empty CANCELLED broadcast, got %+v", final)
	}

	if _, err := service.GetState(ctx, battle.ID); !errors.Is(err, domain.ErrBattleNotFound) {
		t.Fatalf("expected room gone after disband, got %v", err)
	}
}

func TestSubmitAnswerRequiresInProgress(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	_, err := service.SubmitAnswer(ctx, battle.ID, app.AnswerRequest{UserID: "u1", QuestionID: "q1", Answer: "o2", TimeTakenMs: 1000})
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected invalid action while WAITING, got %v", err)
	}
}

func TestUnknownOptionScoresZeroWithoutError(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle := startedSoloBattle(t, ctx, service)
	rec, err := service.SubmitAnswer(ctx, battle.ID, app.AnswerRequest{
		UserID: "u1", QuestionID: "q1", Answer: "not-an-option", TimeTakenMs: 1000,
	})
	if err != nil {
		t.Fatalf("unknown option must not error: %v", err)
	}
	if rec.IsCorrect || rec.ScoreAwarded != 0 {
		t.Fatalf("unknown option must score zero, got %+v", rec)
	}
}

func TestTabSwitchFlagging(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle := startedSoloBattle(t, ctx, service)
	for i := 0; i < 6; i++ {
		if _, err := service.ReportTabSwitch(ctx, battle.ID, "u1"); err != nil {
			t.Fatalf("tab switch %d: %v", i, err)
		}
	}
	views, _ := service.GetParticipants(ctx, battle.ID)
	var flags []string
	for _, v := range views {
		if v.UserID == "u1" {
			flags = v.SuspiciousFlags
		}
	}
	if len(flags) != 1 || flags[0] != "excessive tab switching: 6" {
		t.Fatalf("expected single flag at count 6, got %v", flags)
	}
}

func TestTeamResultsAggregation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeTeam, "")
	players := []struct{ user, team string }{
		{"u1", "red"}, {"u2", "red"}, {"u3", "blue"}, {"u4", "blue"},
	}
	for _, p := range players {
		if err := service.Join(ctx, battle.ID, p.user, p.team, "", ""); err != nil {
			t.Fatalf("join %s: %v", p.user, err)
		}
	}
	for _, p := range players {
		if err := service.SetReady(ctx, battle.ID, p.user, true); err != nil {
			t.Fatalf("ready %s: %v", p.user, err)
		}
	}

	// red scores 15+13, blue scores 11 only
	submissions := []struct {
		user string
		time int64
	}{{"u1", 1000}, {"u2", 7000}, {"u3", 15000}}
	for _, s := range submissions {
		if _, err := service.SubmitAnswer(ctx, battle.ID, app.AnswerRequest{
			UserID: s.user, QuestionID: "q1", Answer: "o2", TimeTakenMs: s.time,
		}); err != nil {
			t.Fatalf("submit %s: %v", s.user, err)
		}
	}

	results, err := service.GetResults(ctx, battle.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Teams) != 2 {
		t.Fatalf("expected 2 team totals, got %+v", results.Teams)
	}
	if results.Teams[0].TeamID != "red" || results.Teams[0].Total != 28 {
		t.Fatalf("expected red leading with 28, got %+v", results.Teams[0])
	}
	if results.Teams[1].TeamID != "blue" || results.Teams[1].Total != 11 {
		t.Fatalf("expected blue with 11, got %+v", results.Teams[1])
	}
}

func TestLeaderboardOrdersCompletedFirstOnTies(t *testing.T) {
	ctx := context.Background()
	service, rooms := newTestService()

	battle := startedSoloBattle(t, ctx, service)
	// Same score for both; only u2 completes.
	for _, user := range []string{"u1", "u2"} {
		if _, err := service.SubmitAnswer(ctx, battle.ID, app.AnswerRequest{
			UserID: user, QuestionID: "q1", Answer: "o2", TimeTakenMs: 1000,
		}); err != nil {
			t.Fatalf("submit %s: %v", user, err)
		}
	}
	if err := service.CompleteBattle(ctx, battle.ID, "u2"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	room, ok := rooms.Get(battle.ID)
	if !ok {
		t.Fatalf("room missing")
	}
	lb := room.LeaderboardView()
	if lb.Entries[0].UserID != "u2" {
		t.Fatalf("completed participant must sort first on score tie, got %+v", lb.Entries)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	updates, cancel, err := service.Subscribe(ctx, battle.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	<-updates // initial snapshot

	if err := service.SetReady(ctx, battle.ID, "u1", true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	evt := <-updates
	if evt.Kind != domain.EventState {
		t.Fatalf("expected state event, got %s", evt.Kind)
	}
	state := evt.Payload.(domain.RoomState)
	if len(state.Participants) != 1 || !state.Participants[0].IsReady {
		t.Fatalf("expected ready participant in broadcast, got %+v", state.Participants)
	}
}

func TestEmoteIsPassedThrough(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle, _ := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	updates, cancel, _ := service.Subscribe(ctx, battle.ID)
	defer cancel()
	<-updates

	if err := service.SendEmote(ctx, battle.ID, map[string]string{"emoji": "🔥"}); err != nil {
		t.Fatalf("emote: %v", err)
	}
	evt := <-updates
	if evt.Kind != domain.EventEmote {
		t.Fatalf("expected emote event, got %s", evt.Kind)
	}
}

func TestEvictTerminalRooms(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	battle := startedSoloBattle(t, ctx, service)
	_ = service.CompleteBattle(ctx, battle.ID, "u1")
	_ = service.CompleteBattle(ctx, battle.ID, "u2")

	// Results stay readable until the TTL elapses.
	if evicted := service.EvictTerminal(time.Hour); evicted != 0 {
		t.Fatalf("room inside TTL must not be evicted")
	}
	if _, err := service.GetResults(ctx, battle.ID); err != nil {
		t.Fatalf("results should remain readable: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	if evicted := service.EvictTerminal(time.Millisecond); evicted != 1 {
		t.Fatalf("expected eviction after TTL")
	}
	if _, err := service.GetResults(ctx, battle.ID); !errors.Is(err, domain.ErrBattleNotFound) {
		t.Fatalf("expected room gone, got %v", err)
	}
}

func TestPersistFailureAbortsCreate(t *testing.T) {
	ctx := context.Background()
	rooms := memory.NewRoomDirectory()
	catalog := memory.NewQuizCatalog(memory.NewStaticCatalogLoader(map[string]string{"quiz-1": "General Knowledge"}), 5*time.Minute)
	oracle := memory.NewStaticAnswerKey(map[string]bool{"o2": true})
	service := app.NewBattleService(rooms, catalog, oracle, nil, failingStore{}, nil)

	if _, err := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, ""); err == nil {
		t.Fatalf("expected create to surface persist failure")
	}
	if len(rooms.Rooms()) != 0 {
		t.Fatalf("aborted create must not leave a room behind")
	}
}

type failingStore struct{}

func (failingStore) SaveBattle(context.Context, *domain.Battle) error {
	return errors.New("db down")
}
func (failingStore) SaveParticipant(context.Context, *domain.Participant) error {
	return errors.New("db down")
}
func (failingStore) DeleteParticipant(context.Context, string, string) error {
	return errors.New("db down")
}
func (failingStore) DeleteBattle(context.Context, string) error {
	return errors.New("db down")
}

func newTestService() (*app.BattleService, *memory.RoomDirectory) {
	rooms := memory.NewRoomDirectory()
	catalog := memory.NewQuizCatalog(memory.NewStaticCatalogLoader(map[string]string{
		"quiz-1": "General Knowledge",
	}), 5*time.Minute)
	oracle := memory.NewStaticAnswerKey(map[string]bool{
		"o1": false,
		"o2": true,
	})
	users := memory.NewStaticUserDirectory(map[string]domain.DisplayInfo{
		"u1": {DisplayName: "Alice"},
		"u2": {DisplayName: "Bob"},
	})
	return app.NewBattleService(rooms, catalog, oracle, users, nil, nil), rooms
}

func startedSoloBattle(t *testing.T, ctx context.Context, service *app.BattleService) domain.Battle {
	t.Helper()
	battle, err := service.Create(ctx, "quiz-1", domain.ModeSolo1v1, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := service.Join(ctx, battle.ID, "u2", "", "", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, user := range []string{"u1", "u2"} {
		if err := service.SetReady(ctx, battle.ID, user, true); err != nil {
			t.Fatalf("ready %s: %v", user, err)
		}
	}
	return battle
}
