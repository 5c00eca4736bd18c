package postgres

import (
	"context"
	"fmt"

	"quiz-battle-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads quiz display names from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadQuizName(ctx context.Context, quizID string) (string, error) {
	var name string
	err := l.pool.QueryRow(ctx, `SELECT name FROM quizzes WHERE id=$1`, quizID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("load quiz name: %w", err)
	}
	return name, nil
}

// AnswerKeyLoader reads option correctness from Postgres.
type AnswerKeyLoader struct {
	pool *pgxpool.Pool
}

func NewAnswerKeyLoader(pool *pgxpool.Pool) *AnswerKeyLoader {
	return &AnswerKeyLoader{pool: pool}
}

func (l *AnswerKeyLoader) LoadOptionCorrect(ctx context.Context, optionID string) (bool, error) {
	var correct bool
	err := l.pool.QueryRow(ctx, `SELECT is_correct FROM options WHERE id=$1`, optionID).Scan(&correct)
	if err != nil {
		return false, fmt.Errorf("load option: %w", err)
	}
	return correct, nil
}

// UserDirectory reads display info from Postgres.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) GetDisplayInfo(ctx context.Context, userID string) (domain.DisplayInfo, error) {
	var info domain.DisplayInfo
	var avatar *string
	err := d.pool.QueryRow(ctx, `SELECT display_name, avatar_url FROM users WHERE id=$1`, userID).
		Scan(&info.DisplayName, &avatar)
	if err != nil {
		return domain.DisplayInfo{}, fmt.Errorf("load user: %w", err)
	}
	if avatar != nil {
		info.AvatarURL = *avatar
	}
	return info, nil
}
