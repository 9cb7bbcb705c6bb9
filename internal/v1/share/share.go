// Package share holds revealed-story share artifacts: unguessable tokens
// that resolve to a story until their TTL lapses.
package share

import (
	"sync"
	"time"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/ident"
)

// Artifact is one shared story.
type Artifact struct {
	Token     string    `json:"share_token"`
	RoomID    string    `json:"-"`
	RoomCode  string    `json:"room_code"`
	RoundID   string    `json:"round_id"`
	Story     string    `json:"rendered_story"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps artifacts in memory. Expired entries are purged lazily on
// read; the store never needs its own timer.
type Store struct {
	mu      sync.Mutex
	byToken map[string]*Artifact
	ttl     time.Duration
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		byToken: make(map[string]*Artifact),
		ttl:     ttl,
	}
}

// Create mints a share artifact. Idempotency per round is the caller's
// concern; the room keeps the current round's token.
func (s *Store) Create(roomID, roomCode, roundID, story string, now time.Time) *Artifact {
	a := &Artifact{
		Token:     ident.NewSecret(128),
		RoomID:    roomID,
		RoomCode:  roomCode,
		RoundID:   roundID,
		Story:     story,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.byToken[a.Token] = a
	s.mu.Unlock()
	return a
}

// Get resolves a token. Expired artifacts return Expired and are dropped.
func (s *Store) Get(token string, now time.Time) (*Artifact, *apierr.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byToken[token]
	if !ok {
		return nil, apierr.NotFound("Share not found.")
	}
	if now.After(a.ExpiresAt) {
		delete(s.byToken, token)
		return nil, apierr.Expired("This share link has expired.")
	}
	copied := *a
	return &copied, nil
}

// Count reports live artifacts. Test hook.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}
