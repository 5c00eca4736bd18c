package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

type roomDeps struct {
	store  BattleStore
	port   BroadcastPort
	users  UserDirectory
	oracle AnswerOracle
	now    func() time.Time
}

// Room owns one battle's lifecycle. All mutations of the battle and its
// participants are serialized behind the room mutex; rooms never share state,
// so operations on different rooms proceed independently.
type Room struct {
	deps roomDeps

	mu           sync.RWMutex
	battle       domain.Battle
	participants map[string]*domain.Participant
	display      map[string]domain.DisplayInfo
	subscribers  map[chan domain.Event]struct{}
	terminalAt   time.Time
}

func newRoom(battle domain.Battle, deps roomDeps) *Room {
	return &Room{
		deps:         deps,
		battle:       battle,
		participants: make(map[string]*domain.Participant),
		display:      make(map[string]domain.DisplayInfo),
		subscribers:  make(map[chan domain.Event]struct{}),
	}
}

func (r *Room) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battle.ID
}

func (r *Room) InviteCode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battle.InviteCode
}

func (r *Room) QuizID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battle.QuizID
}

func (r *Room) Status() domain.BattleStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battle.Status
}

// Battle returns a copy of the room's battle record.
func (r *Room) Battle() domain.Battle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battle
}

// TerminalSince reports when the room reached a terminal status, if it has.
func (r *Room) TerminalSince() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.battle.Status.Terminal() {
		return time.Time{}, false
	}
	return r.terminalAt, true
}

// Subscribe attaches a listener to the room's broadcast channels. The caller
// must invoke the returned cancel function to avoid leaks. An initial state
// snapshot is delivered immediately; there is no replay of earlier events.
func (r *Room) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	initial := domain.Event{BattleID: r.battle.ID, Kind: domain.EventState, Payload: r.roomStateLocked()}
	r.mu.Unlock()

	ch <- initial

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Join admits a user into a WAITING room. Duplicate joins are rejected
// outright so downstream lookups can assume at most one row per user.
func (r *Room) Join(ctx context.Context, userID, teamID, ipAddress, userAgent string) error {
	info := r.resolveDisplay(ctx, userID)

	r.mu.Lock()
	if r.battle.Status != domain.StatusWaiting {
		r.mu.Unlock()
		return domain.ErrInvalidAction
	}
	if _, ok := r.participants[userID]; ok {
		r.mu.Unlock()
		return domain.ErrAlreadyMember
	}
	if len(r.participants) >= r.battle.Mode.Capacity() {
		r.mu.Unlock()
		return domain.ErrInvalidAction
	}

	p := &domain.Participant{
		ID:        newID(),
		BattleID:  r.battle.ID,
		UserID:    userID,
		TeamID:    teamID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		JoinedAt:  r.deps.now(),
	}
	if err := r.deps.store.SaveParticipant(ctx, p); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persist participant: %w", err)
	}
	r.participants[userID] = p
	r.display[userID] = info

	events := []domain.Event{r.stateEventLocked()}
	if evt, started, err := r.evalAutoStartLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	} else if started {
		events = append(events, evt)
	}
	r.mu.Unlock()

	r.publish(ctx, events)
	return nil
}

// SetReady toggles a participant's readiness and re-evaluates auto-start.
func (r *Room) SetReady(ctx context.Context, userID string, ready bool) error {
	r.mu.Lock()
	if r.battle.Status != domain.StatusWaiting {
		r.mu.Unlock()
		return domain.ErrInvalidAction
	}
	p, ok := r.participants[userID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrParticipantNotFound
	}

	updated := *p
	updated.IsReady = ready
	if err := r.deps.store.SaveParticipant(ctx, &updated); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persist participant: %w", err)
	}
	*p = updated

	events := []domain.Event{r.stateEventLocked()}
	if evt, started, err := r.evalAutoStartLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	} else if started {
		events = append(events, evt)
	}
	r.mu.Unlock()

	r.publish(ctx, events)
	return nil
}

// AnswerRequest carries one answer submission.
type AnswerRequest struct {
	UserID      string
	QuestionID  string
	Answer      string
	TimeTakenMs int64
	Timestamp   time.Time
}

// SubmitAnswer scores a submission, appends it to the participant's answer
// log, runs cheat detection, and broadcasts the updated leaderboard.
func (r *Room) SubmitAnswer(ctx context.Context, req AnswerRequest) (domain.AnswerRecord, error) {
	if r.Status() != domain.StatusInProgress {
		return domain.AnswerRecord{}, domain.ErrInvalidAction
	}

	// The oracle is an external collaborator: consult it outside the room
	// lock. Any failure (including unknown option ids) counts as incorrect.
	correct, err := r.deps.oracle.IsOptionCorrect(ctx, req.Answer)
	if err != nil {
		correct = false
	}
	awarded := scoreAnswer(correct, req.TimeTakenMs)

	r.mu.Lock()
	if r.battle.Status != domain.StatusInProgress {
		r.mu.Unlock()
		return domain.AnswerRecord{}, domain.ErrInvalidAction
	}
	p, ok := r.participants[req.UserID]
	if !ok {
		r.mu.Unlock()
		return domain.AnswerRecord{}, domain.ErrParticipantNotFound
	}

	submittedAt := req.Timestamp
	if submittedAt.IsZero() {
		submittedAt = r.deps.now()
	}
	record := domain.AnswerRecord{
		QuestionID:   req.QuestionID,
		Answer:       req.Answer,
		SubmittedAt:  submittedAt,
		TimeTakenMs:  req.TimeTakenMs,
		IsCorrect:    correct,
		ScoreAwarded: awarded,
	}

	updated := *p
	updated.Score += awarded
	updated.Answers = append(append([]domain.AnswerRecord(nil), p.Answers...), record)
	updated.SuspiciousFlags = append(updated.SuspiciousFlags, detectSuspicion(updated.Answers)...)

	if err := r.deps.store.SaveParticipant(ctx, &updated); err != nil {
		r.mu.Unlock()
		return domain.AnswerRecord{}, fmt.Errorf("persist participant: %w", err)
	}
	*p = updated

	evt := r.leaderboardEventLocked()
	r.mu.Unlock()

	r.publish(ctx, []domain.Event{evt})
	return record, nil
}

// ReportTabSwitch increments the participant's tab-switch counter and flags
// the participant once it exceeds the limit. Returns the new count.
func (r *Room) ReportTabSwitch(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.battle.Status.Terminal() {
		return 0, domain.ErrInvalidAction
	}
	p, ok := r.participants[userID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}

	updated := *p
	updated.TabSwitchCount++
	if updated.TabSwitchCount > tabSwitchLimit {
		updated.SuspiciousFlags = append(append([]string(nil), p.SuspiciousFlags...),
			fmt.Sprintf("excessive tab switching: %d", updated.TabSwitchCount))
	}
	if err := r.deps.store.SaveParticipant(ctx, &updated); err != nil {
		return 0, fmt.Errorf("persist participant: %w", err)
	}
	*p = updated
	return updated.TabSwitchCount, nil
}

// Complete marks the caller's participant as done, broadcasts the
// leaderboard, and ends the battle once every participant has finished.
func (r *Room) Complete(ctx context.Context, userID string) error {
	r.mu.Lock()
	if r.battle.Status != domain.StatusInProgress {
		r.mu.Unlock()
		return domain.ErrInvalidAction
	}
	p, ok := r.participants[userID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrParticipantNotFound
	}

	if p.CompletedAt == nil {
		updated := *p
		done := r.deps.now()
		updated.CompletedAt = &done
		if err := r.deps.store.SaveParticipant(ctx, &updated); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("persist participant: %w", err)
		}
		*p = updated
	}

	events := []domain.Event{r.leaderboardEventLocked()}
	if evt, ended, err := r.evalAutoCompleteLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	} else if ended {
		events = append(events, evt)
	}
	r.mu.Unlock()

	r.publish(ctx, events)
	return nil
}

// RemoveParticipant drops a user from the room. Idempotent: removing an
// absent participant is a no-op. Usable at any non-terminal phase so
// disconnect handling can clean up; when the room is already running the
// completion condition is re-evaluated over the remaining participants.
func (r *Room) RemoveParticipant(ctx context.Context, userID string) error {
	r.mu.Lock()
	if r.battle.Status.Terminal() {
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.participants[userID]; !ok {
		r.mu.Unlock()
		return nil
	}
	if err := r.deps.store.DeleteParticipant(ctx, r.battle.ID, userID); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("delete participant: %w", err)
	}
	delete(r.participants, userID)
	delete(r.display, userID)

	events := []domain.Event{r.stateEventLocked()}
	if r.battle.Status == domain.StatusInProgress {
		if evt, ended, err := r.evalAutoCompleteLocked(ctx); err != nil {
			r.mu.Unlock()
			return err
		} else if ended {
			events = append(events, evt)
		}
	}
	r.mu.Unlock()

	r.publish(ctx, events)
	return nil
}

// Disband cancels a WAITING room. Leader-only. A final CANCELLED state with
// an empty participant list is broadcast so connected clients can react
// before the room is torn down.
func (r *Room) Disband(ctx context.Context, requestingUserID string) error {
	r.mu.Lock()
	if r.battle.LeaderID == "" || requestingUserID != r.battle.LeaderID {
		r.mu.Unlock()
		return domain.ErrForbidden
	}
	if r.battle.Status != domain.StatusWaiting {
		r.mu.Unlock()
		return domain.ErrInvalidAction
	}

	updated := r.battle
	updated.Status = domain.StatusCancelled
	if err := r.deps.store.DeleteBattle(ctx, r.battle.ID); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("delete battle: %w", err)
	}
	r.battle = updated
	r.terminalAt = r.deps.now()
	r.participants = make(map[string]*domain.Participant)
	r.display = make(map[string]domain.DisplayInfo)

	evt := r.stateEventLocked()
	r.mu.Unlock()

	r.publish(ctx, []domain.Event{evt})
	return nil
}

// Emote passes a caller-supplied payload through to all room subscribers.
// Ephemeral and unvalidated; nothing is persisted.
func (r *Room) Emote(ctx context.Context, payload interface{}) {
	r.mu.Lock()
	evt := domain.Event{BattleID: r.battle.ID, Kind: domain.EventEmote, Payload: payload}
	r.fanoutLocked(evt)
	r.mu.Unlock()

	if r.deps.port != nil {
		r.deps.port.Publish(ctx, evt)
	}
}

// Snapshot returns the current full room state.
func (r *Room) Snapshot() domain.RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roomStateLocked()
}

// Participants returns the display-enriched participant list.
func (r *Room) Participants() []domain.ParticipantView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewsLocked()
}

// Results returns participants ordered by score descending; TEAM mode rooms
// additionally carry team totals, sorted by total descending.
func (r *Room) Results() domain.BattleResults {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := r.viewsLocked()
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Score > views[j].Score
	})

	results := domain.BattleResults{
		BattleID:     r.battle.ID,
		Status:       r.battle.Status,
		Participants: views,
	}
	if r.battle.Mode == domain.ModeTeam {
		totals := make(map[string]int)
		for _, p := range r.participants {
			totals[p.TeamID] += p.Score
		}
		for teamID, total := range totals {
			results.Teams = append(results.Teams, domain.TeamResult{TeamID: teamID, Total: total})
		}
		sort.Slice(results.Teams, func(i, j int) bool {
			if results.Teams[i].Total != results.Teams[j].Total {
				return results.Teams[i].Total > results.Teams[j].Total
			}
			return results.Teams[i].TeamID < results.Teams[j].TeamID
		})
	}
	return results
}

// evalAutoStartLocked fires WAITING -> IN_PROGRESS when the room is at
// capacity and every participant is ready. startedAt is set exactly once here.
func (r *Room) evalAutoStartLocked(ctx context.Context) (domain.Event, bool, error) {
	if r.battle.Status != domain.StatusWaiting {
		return domain.Event{}, false, nil
	}
	if len(r.participants) != r.battle.Mode.Capacity() {
		return domain.Event{}, false, nil
	}
	for _, p := range r.participants {
		if !p.IsReady {
			return domain.Event{}, false, nil
		}
	}

	updated := r.battle
	updated.Status = domain.StatusInProgress
	started := r.deps.now()
	updated.StartedAt = &started
	if err := r.deps.store.SaveBattle(ctx, &updated); err != nil {
		return domain.Event{}, false, fmt.Errorf("persist battle: %w", err)
	}
	r.battle = updated
	log.Printf("battle %s started with %d participants", r.battle.ID, len(r.participants))
	return r.stateEventLocked(), true, nil
}

// evalAutoCompleteLocked fires IN_PROGRESS -> COMPLETED once every current
// participant has completed. endedAt is set exactly once here.
func (r *Room) evalAutoCompleteLocked(ctx context.Context) (domain.Event, bool, error) {
	if r.battle.Status != domain.StatusInProgress || len(r.participants) == 0 {
		return domain.Event{}, false, nil
	}
	for _, p := range r.participants {
		if p.CompletedAt == nil {
			return domain.Event{}, false, nil
		}
	}

	updated := r.battle
	updated.Status = domain.StatusCompleted
	ended := r.deps.now()
	updated.EndedAt = &ended
	if err := r.deps.store.SaveBattle(ctx, &updated); err != nil {
		return domain.Event{}, false, fmt.Errorf("persist battle: %w", err)
	}
	r.battle = updated
	r.terminalAt = ended
	log.Printf("battle %s completed", r.battle.ID)
	return r.stateEventLocked(), true, nil
}

func (r *Room) roomStateLocked() domain.RoomState {
	return domain.RoomState{
		BattleID:     r.battle.ID,
		QuizID:       r.battle.QuizID,
		QuizName:     r.battle.QuizName,
		Mode:         r.battle.Mode,
		Status:       r.battle.Status,
		LeaderID:     r.battle.LeaderID,
		InviteCode:   r.battle.InviteCode,
		StartedAt:    r.battle.StartedAt,
		Participants: r.viewsLocked(),
	}
}

func (r *Room) viewsLocked() []domain.ParticipantView {
	views := make([]domain.ParticipantView, 0, len(r.participants))
	for _, p := range r.participants {
		info := r.display[p.UserID]
		views = append(views, domain.ParticipantView{
			UserID:          p.UserID,
			TeamID:          p.TeamID,
			DisplayName:     info.DisplayName,
			AvatarURL:       info.AvatarURL,
			Score:           p.Score,
			IsReady:         p.IsReady,
			CompletedAt:     p.CompletedAt,
			SuspiciousFlags: append([]string(nil), p.SuspiciousFlags...),
		})
	}
	sort.Slice(views, func(i, j int) bool {
		pi, pj := r.participants[views[i].UserID], r.participants[views[j].UserID]
		return pi.JoinedAt.Before(pj.JoinedAt)
	})
	return views
}

// leaderboardLocked orders by score descending, then by completion timestamp
// ascending; participants still playing sort after those who finished.
func (r *Room) leaderboardLocked() domain.Leaderboard {
	entries := r.viewsLocked()
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ci, cj := entries[i].CompletedAt, entries[j].CompletedAt
		switch {
		case ci != nil && cj != nil:
			return ci.Before(*cj)
		case ci != nil:
			return true
		case cj != nil:
			return false
		}
		return entries[i].UserID < entries[j].UserID
	})
	return domain.Leaderboard{
		BattleID:  r.battle.ID,
		Entries:   entries,
		UpdatedAt: r.deps.now(),
	}
}

// LeaderboardView returns the current leaderboard without broadcasting.
func (r *Room) LeaderboardView() domain.Leaderboard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.leaderboardLocked()
}

func (r *Room) stateEventLocked() domain.Event {
	evt := domain.Event{BattleID: r.battle.ID, Kind: domain.EventState, Payload: r.roomStateLocked()}
	r.fanoutLocked(evt)
	return evt
}

func (r *Room) leaderboardEventLocked() domain.Event {
	evt := domain.Event{BattleID: r.battle.ID, Kind: domain.EventLeaderboard, Payload: r.leaderboardLocked()}
	r.fanoutLocked(evt)
	return evt
}

// fanoutLocked delivers to in-process subscribers without blocking: a full
// channel drops its oldest pending event so slow readers only lose staleness.
func (r *Room) fanoutLocked(evt domain.Event) {
	for ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}

// publish mirrors events to the broadcast port after the room lock is
// released; the port may block (network pub/sub) and must not stall the room.
func (r *Room) publish(ctx context.Context, events []domain.Event) {
	if r.deps.port == nil {
		return
	}
	for _, evt := range events {
		r.deps.port.Publish(ctx, evt)
	}
}

func (r *Room) resolveDisplay(ctx context.Context, userID string) domain.DisplayInfo {
	if r.deps.users == nil {
		return domain.DisplayInfo{}
	}
	info, err := r.deps.users.GetDisplayInfo(ctx, userID)
	if err != nil {
		return domain.DisplayInfo{}
	}
	return info
}
