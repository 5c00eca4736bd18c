package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
)

func TestQuizCatalogCaches(t *testing.T) {
	loader := &countingLoader{
		CatalogLoader: NewStaticCatalogLoader(map[string]string{
			"quiz-1": "General Knowledge",
		}),
	}
	catalog := NewQuizCatalog(loader, time.Minute)

	name, err := catalog.GetQuizName(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz name: %v", err)
	}
	if name != "General Knowledge" {
		t.Fatalf("unexpected name %q", name)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := catalog.GetQuizName(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz name 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizCatalogPropagatesMiss(t *testing.T) {
	catalog := NewQuizCatalog(NewStaticCatalogLoader(nil), time.Minute)
	if _, err := catalog.GetQuizName(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz-not-found, got %v", err)
	}
}

type countingLoader struct {
	CatalogLoader
	calls int
}

func (l *countingLoader) LoadQuizName(ctx context.Context, quizID string) (string, error) {
	l.calls++
	return l.CatalogLoader.LoadQuizName(ctx, quizID)
}
