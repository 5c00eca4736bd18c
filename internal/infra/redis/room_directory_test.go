package redis

import (
	"context"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRoomDirectorySetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	directory := NewRoomDirectory(client, time.Minute)

	catalog := memory.NewQuizCatalog(memory.NewStaticCatalogLoader(map[string]string{"quiz-1": "General Knowledge"}), time.Minute)
	service := app.NewBattleService(directory, catalog, memory.NewStaticAnswerKey(nil), nil, nil, nil)
	battle, err := service.Create(context.Background(), "quiz-1", domain.ModeSolo1v1, "")
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}

	if !mr.Exists("battle:room:" + battle.ID) {
		t.Fatalf("expected room marker in redis")
	}
	if !mr.Exists("battle:code:" + battle.InviteCode) {
		t.Fatalf("expected invite code marker in redis")
	}

	room, ok := directory.GetByCode(battle.InviteCode)
	if !ok || room.ID() != battle.ID {
		t.Fatalf("expected code lookup to resolve the room")
	}

	directory.Remove(battle.ID)
	if mr.Exists("battle:room:" + battle.ID) {
		t.Fatalf("expected room marker removed")
	}
	if mr.Exists("battle:code:" + battle.InviteCode) {
		t.Fatalf("expected code marker removed")
	}
	if _, ok := directory.Get(battle.ID); ok {
		t.Fatalf("expected local index cleared")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
