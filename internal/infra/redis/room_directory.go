package redis

import (
	"context"
	"sync"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
)

// RoomDirectory is a Redis-aware implementation of app.RoomDirectory.
// Notes:
//   - Live rooms stay in a local map so the in-process broadcast fan-out keeps
//     working; Redis carries liveness and invite-code markers that other
//     instances (or an ops console) can inspect.
//   - Markers are best-effort: a Redis failure never blocks room routing.
type RoomDirectory struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.RWMutex
	byID   map[string]*app.Room
	byCode map[string]*app.Room
}

func NewRoomDirectory(client *redis.Client, ttl time.Duration) *RoomDirectory {
	return &RoomDirectory{
		client: client,
		ttl:    ttl,
		byID:   make(map[string]*app.Room),
		byCode: make(map[string]*app.Room),
	}
}

func (d *RoomDirectory) Insert(room *app.Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, code := room.ID(), room.InviteCode()
	if _, ok := d.byID[id]; ok {
		return memory.ErrKeyTaken
	}
	if _, ok := d.byCode[code]; ok {
		return memory.ErrKeyTaken
	}
	d.byID[id] = room
	d.byCode[code] = room
	// best-effort liveness markers
	ctx := context.Background()
	_ = d.client.Set(ctx, d.roomKey(id), "1", d.ttl).Err()
	_ = d.client.Set(ctx, d.codeKey(code), id, d.ttl).Err()
	return nil
}

func (d *RoomDirectory) Get(battleID string) (*app.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.byID[battleID]
	return room, ok
}

func (d *RoomDirectory) GetByCode(code string) (*app.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.byCode[code]
	return room, ok
}

func (d *RoomDirectory) Remove(battleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.byID[battleID]
	if !ok {
		return
	}
	code := room.InviteCode()
	delete(d.byID, battleID)
	delete(d.byCode, code)
	ctx := context.Background()
	_ = d.client.Del(ctx, d.roomKey(battleID), d.codeKey(code)).Err()
}

func (d *RoomDirectory) Rooms() []*app.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rooms := make([]*app.Room, 0, len(d.byID))
	for _, room := range d.byID {
		rooms = append(rooms, room)
	}
	return rooms
}

func (d *RoomDirectory) roomKey(battleID string) string {
	return "battle:room:" + battleID
}

func (d *RoomDirectory) codeKey(code string) string {
	return "battle:code:" + code
}
