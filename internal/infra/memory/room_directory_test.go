package memory

import (
	"context"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

func TestRoomDirectoryDualIndex(t *testing.T) {
	directory := NewRoomDirectory()
	room := createRoom(t, directory)

	byID, ok := directory.Get(room.ID())
	if !ok || byID != room {
		t.Fatalf("expected lookup by id to return the inserted room")
	}
	byCode, ok := directory.GetByCode(room.InviteCode())
	if !ok || byCode != room {
		t.Fatalf("expected lookup by code to return the same instance")
	}

	if err := directory.Insert(room); err != ErrKeyTaken {
		t.Fatalf("expected key collision on re-insert, got %v", err)
	}

	directory.Remove(room.ID())
	if _, ok := directory.Get(room.ID()); ok {
		t.Fatalf("expected id index cleared after remove")
	}
	if _, ok := directory.GetByCode(room.InviteCode()); ok {
		t.Fatalf("expected code index cleared after remove")
	}
	if rooms := directory.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected empty room set, got %d", len(rooms))
	}

	// Removing an unknown id is a no-op.
	directory.Remove("missing")
}

func createRoom(t *testing.T, directory app.RoomDirectory) *app.Room {
	t.Helper()
	catalog := NewQuizCatalog(NewStaticCatalogLoader(map[string]string{"quiz-1": "General Knowledge"}), time.Minute)
	service := app.NewBattleService(directory, catalog, NewStaticAnswerKey(nil), nil, nil, nil)
	battle, err := service.Create(context.Background(), "quiz-1", domain.ModeSolo1v1, "")
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}
	room, ok := directory.Get(battle.ID)
	if !ok {
		t.Fatalf("created battle missing from directory")
	}
	return room
}
