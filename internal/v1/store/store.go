// Package store is the in-memory room registry. Every room lives on
// exactly one instance; the store owns the per-room exclusive lock that
// serializes all command handling.
package store

import (
	"sync"
	"time"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

type entry struct {
	mu   sync.Mutex
	room *game.Room
}

// Store maps room ids and codes to rooms. Registry operations take the
// store lock briefly; room mutations take the room's own lock via WithRoom
// so slow rooms never block the registry.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*entry
	byCode map[string]string
}

func New() *Store {
	return &Store{
		rooms:  make(map[string]*entry),
		byCode: make(map[string]string),
	}
}

// Add registers a new room. The caller generated a fresh code; a collision
// means the caller should regenerate and retry.
func (s *Store) Add(room *game.Room) *apierr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCode[room.Code]; exists {
		return apierr.StateConflict("Room code collision.")
	}
	s.rooms[room.ID] = &entry{room: room}
	s.byCode[room.Code] = room.ID
	metrics.ActiveRooms.Set(float64(len(s.rooms)))
	return nil
}

// WithRoom resolves a room by code and runs fn under its exclusive lock.
func (s *Store) WithRoom(code string, fn func(*game.Room) *apierr.Error) *apierr.Error {
	s.mu.RLock()
	id, ok := s.byCode[code]
	var e *entry
	if ok {
		e = s.rooms[id]
	}
	s.mu.RUnlock()

	if e == nil {
		return apierr.NotFound("Room not found. Check the code and try again.")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.room)
}

// WithRoomByID is WithRoom keyed by room id.
func (s *Store) WithRoomByID(id string, fn func(*game.Room) *apierr.Error) *apierr.Error {
	s.mu.RLock()
	e := s.rooms[id]
	s.mu.RUnlock()

	if e == nil {
		return apierr.NotFound("Room not found.")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.room)
}

// Remove drops a room from the registry. Safe to call twice.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return
	}
	delete(s.rooms, id)
	delete(s.byCode, e.room.Code)
	metrics.ActiveRooms.Set(float64(len(s.rooms)))
}

// Count reports registered rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ids snapshots the registry keys so sweeps iterate without holding the
// store lock across room locks.
func (s *Store) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// expiredSince reports rooms already in Expired whose last activity is
// older than the grace cutoff, ready for removal. Room locks are taken
// only after the registry lock is released.
func (s *Store) expiredSince(cutoff time.Time) []string {
	s.mu.RLock()
	entries := make(map[string]*entry, len(s.rooms))
	for id, e := range s.rooms {
		entries[id] = e
	}
	s.mu.RUnlock()

	var out []string
	for id, e := range entries {
		e.mu.Lock()
		if e.room.State == game.StateExpired && !e.room.LastActivityAt.After(cutoff) {
			out = append(out, id)
		}
		e.mu.Unlock()
	}
	return out
}
