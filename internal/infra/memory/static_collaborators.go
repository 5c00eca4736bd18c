package memory

import (
	"context"
	"errors"

	"quiz-battle-service/internal/domain"
)

// ErrUserNotFound is returned by the static user directory for unknown ids.
var ErrUserNotFound = errors.New("user not found")

// ErrOptionNotFound is returned by the static answer key for unknown option ids.
var ErrOptionNotFound = errors.New("option not found")

// StaticCatalogLoader is a CatalogLoader backed by a map (tests/demos).
type StaticCatalogLoader struct {
	names map[string]string
}

func NewStaticCatalogLoader(names map[string]string) *StaticCatalogLoader {
	return &StaticCatalogLoader{names: names}
}

func (l *StaticCatalogLoader) LoadQuizName(_ context.Context, quizID string) (string, error) {
	if name, ok := l.names[quizID]; ok {
		return name, nil
	}
	return "", domain.ErrQuizNotFound
}

// StaticAnswerKey is an in-memory answer-correctness oracle.
type StaticAnswerKey struct {
	correct map[string]bool
}

func NewStaticAnswerKey(correct map[string]bool) *StaticAnswerKey {
	return &StaticAnswerKey{correct: correct}
}

func (k *StaticAnswerKey) IsOptionCorrect(_ context.Context, optionID string) (bool, error) {
	isCorrect, ok := k.correct[optionID]
	if !ok {
		return false, ErrOptionNotFound
	}
	return isCorrect, nil
}

// StaticUserDirectory maps user ids to display info.
type StaticUserDirectory struct {
	users map[string]domain.DisplayInfo
}

func NewStaticUserDirectory(users map[string]domain.DisplayInfo) *StaticUserDirectory {
	return &StaticUserDirectory{users: users}
}

func (d *StaticUserDirectory) GetDisplayInfo(_ context.Context, userID string) (domain.DisplayInfo, error) {
	if info, ok := d.users[userID]; ok {
		return info, nil
	}
	return domain.DisplayInfo{}, ErrUserNotFound
}
