package memory

import (
	"errors"
	"sync"

	"quiz-battle-service/internal/app"
)

// ErrKeyTaken signals an id or invite-code collision on insert.
var ErrKeyTaken = errors.New("room key already in use")

// RoomDirectory is the in-memory implementation of app.RoomDirectory.
// Both indices are mutated under one lock so a room can never be resolvable
// by id but not by code, or the other way around.
type RoomDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*app.Room
	byCode map[string]*app.Room
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		byID:   make(map[string]*app.Room),
		byCode: make(map[string]*app.Room),
	}
}

func (d *RoomDirectory) Insert(room *app.Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, code := room.ID(), room.InviteCode()
	if _, ok := d.byID[id]; ok {
		return ErrKeyTaken
	}
	if _, ok := d.byCode[code]; ok {
		return ErrKeyTaken
	}
	d.byID[id] = room
	d.byCode[code] = room
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
	delete(d.byID, battleID)
	delete(d.byCode, room.InviteCode())
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
