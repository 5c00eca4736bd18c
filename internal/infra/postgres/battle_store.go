package postgres

import (
	"context"
	"fmt"
	"time"

	"quiz-battle-service/internal/domain"
	"github.com/uptrace/bun"
)

type battleRow struct {
	bun.BaseModel `bun:"table:battles,alias:b"`

	ID         string     `bun:"id,pk"`
	QuizID     string     `bun:"quiz_id"`
	QuizName   string     `bun:"quiz_name"`
	Mode       string     `bun:"mode"`
	Status     string     `bun:"status"`
	LeaderID   string     `bun:"leader_id,nullzero"`
	InviteCode string     `bun:"invite_code"`
	CreatedAt  time.Time  `bun:"created_at"`
	StartedAt  *time.Time `bun:"started_at"`
	EndedAt    *time.Time `bun:"ended_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:battle_participants,alias:p"`

	ID              string                `bun:"id,pk"`
	BattleID        string                `bun:"battle_id"`
	UserID          string                `bun:"user_id"`
	TeamID          string                `bun:"team_id,nullzero"`
	IPAddress       string                `bun:"ip_address,nullzero"`
	UserAgent       string                `bun:"user_agent,nullzero"`
	Score           int                   `bun:"score"`
	IsReady         bool                  `bun:"is_ready"`
	JoinedAt        time.Time             `bun:"joined_at"`
	CompletedAt     *time.Time            `bun:"completed_at"`
	Answers         []domain.AnswerRecord `bun:"answers,type:jsonb"`
	TabSwitchCount  int                   `bun:"tab_switch_count"`
	SuspiciousFlags []string              `bun:"suspicious_flags,type:jsonb"`
}

// BattleStore persists room state in Postgres through bun. Writes are
// upserts: the room coordinator is the source of truth and rows mirror its
// latest committed state.
type BattleStore struct {
	db *bun.DB
}

func NewBattleStore(db *bun.DB) *BattleStore {
	return &BattleStore{db: db}
}

func (s *BattleStore) SaveBattle(ctx context.Context, battle *domain.Battle) error {
	row := battleRow{
		ID:         battle.ID,
		QuizID:     battle.QuizID,
		QuizName:   battle.QuizName,
		Mode:       string(battle.Mode),
		Status:     string(battle.Status),
		LeaderID:   battle.LeaderID,
		InviteCode: battle.InviteCode,
		CreatedAt:  battle.CreatedAt,
		StartedAt:  battle.StartedAt,
		EndedAt:    battle.EndedAt,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("invite_code = EXCLUDED.invite_code").
		Set("started_at = EXCLUDED.started_at").
		Set("ended_at = EXCLUDED.ended_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save battle: %w", err)
	}
	return nil
}

func (s *BattleStore) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	row := participantRow{
		ID:              p.ID,
		BattleID:        p.BattleID,
		UserID:          p.UserID,
		TeamID:          p.TeamID,
		IPAddress:       p.IPAddress,
		UserAgent:       p.UserAgent,
		Score:           p.Score,
		IsReady:         p.IsReady,
		JoinedAt:        p.JoinedAt,
		CompletedAt:     p.CompletedAt,
		Answers:         p.Answers,
		TabSwitchCount:  p.TabSwitchCount,
		SuspiciousFlags: p.SuspiciousFlags,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (battle_id, user_id) DO UPDATE").
		Set("score = EXCLUDED.score").
		Set("is_ready = EXCLUDED.is_ready").
		Set("completed_at = EXCLUDED.completed_at").
		Set("answers = EXCLUDED.answers").
		Set("tab_switch_count = EXCLUDED.tab_switch_count").
		Set("suspicious_flags = EXCLUDED.suspicious_flags").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

func (s *BattleStore) DeleteParticipant(ctx context.Context, battleID, userID string) error {
	_, err := s.db.NewDelete().Model((*participantRow)(nil)).
		Where("battle_id = ? AND user_id = ?", battleID, userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

func (s *BattleStore) DeleteBattle(ctx context.Context, battleID string) error {
	// participants cascade via FK
	_, err := s.db.NewDelete().Model((*battleRow)(nil)).
		Where("id = ?", battleID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete battle: %w", err)
	}
	return nil
}
