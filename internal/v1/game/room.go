// Package game holds the authoritative room state machine: players,
// prompts, assignment, rendering, and the allowed lifecycle transitions.
// Rooms are not self-locking; the store serializes access per room.
package game

import (
	"fmt"
	"time"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/ident"
)

// State is a room lifecycle state.
type State string

const (
	StateLobbyOpen      State = "LobbyOpen"
	StatePrompting      State = "Prompting"
	StateAwaitingReveal State = "AwaitingReveal"
	StateRevealed       State = "Revealed"
	StateExpired        State = "Expired"
)

var allowedTransitions = map[State]map[State]bool{
	StateLobbyOpen:      {StatePrompting: true, StateExpired: true},
	StatePrompting:      {StateAwaitingReveal: true, StateExpired: true},
	StateAwaitingReveal: {StateRevealed: true, StateExpired: true},
	StateRevealed:       {StatePrompting: true, StateExpired: true},
	StateExpired:        {},
}

// Rules are the per-deployment knobs the room enforces.
type Rules struct {
	PromptsPerPlayer  int
	MinPlayersToStart int
	MaxPlayersPerRoom int
	DisconnectGrace   time.Duration
	ShareTTL          time.Duration
}

// DefaultRules mirrors the documented env defaults.
func DefaultRules() Rules {
	return Rules{
		PromptsPerPlayer:  3,
		MinPlayersToStart: 2,
		MaxPlayersPerRoom: 12,
		DisconnectGrace:   30 * time.Second,
		ShareTTL:          7 * 24 * time.Hour,
	}
}

// Player is a participant. The host is an ordinary player with IsHost set;
// it additionally holds the room's host token out of band.
type Player struct {
	ID             string
	DisplayName    string
	Token          string
	IsHost         bool
	Connected      bool
	DisconnectedAt *time.Time
	JoinedAt       time.Time
	Kicked         bool
}

// Prompt is one dealt slot awaiting a value.
type Prompt struct {
	ID               string
	SlotID           string
	SlotType         string
	Label            string
	AssignedPlayerID string
	Submitted        bool
	Value            string
	AssignedAt       time.Time
	SubmittedAt      *time.Time
	LastReassignedAt *time.Time
}

// ShareRef is the room's handle to the current round's share artifact.
type ShareRef struct {
	Token     string
	ExpiresAt time.Time
}

// Room is the unit of isolation and locking.
type Room struct {
	ID             string
	Code           string
	CreatedAt      time.Time
	LastActivityAt time.Time
	State          State
	Locked         bool
	TemplateID     string
	RoundIndex     int
	RoundID        string
	StateVersion   int64
	HostToken      string
	HostPlayerID   string
	Players        []*Player
	Prompts        []*Prompt
	RevealedStory  string
	NarrationJobID string
	Share          *ShareRef
	Rules          Rules
}

// NewRoom creates a room in LobbyOpen with its first round id allocated.
// The host player is added separately so token minting stays with the
// caller.
func NewRoom(id, code, templateID string, rules Rules, now time.Time) *Room {
	return &Room{
		ID:             id,
		Code:           code,
		CreatedAt:      now,
		LastActivityAt: now,
		State:          StateLobbyOpen,
		TemplateID:     templateID,
		RoundIndex:     0,
		RoundID:        ident.NewID("round"),
		StateVersion:   1,
		Rules:          rules,
	}
}

// Touch refreshes the activity timestamp without bumping the version.
func (r *Room) Touch(now time.Time) {
	r.LastActivityAt = now
}

// bump records a state-affecting mutation.
func (r *Room) bump(now time.Time) {
	r.StateVersion++
	r.LastActivityAt = now
}

// IsExpired reports whether the room has been idle past ttl.
func (r *Room) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.LastActivityAt) > ttl
}

func (r *Room) transition(next State) *apierr.Error {
	if r.State == next {
		return nil
	}
	if !allowedTransitions[r.State][next] {
		return apierr.StateConflict(fmt.Sprintf("Invalid room state transition: %s -> %s.", r.State, next))
	}
	r.State = next
	return nil
}

// GetPlayer looks a player up by id.
func (r *Room) GetPlayer(playerID string) *Player {
	for _, p := range r.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// AddPlayer appends a player, enforcing lobby state, lock, and capacity.
func (r *Room) AddPlayer(p *Player, now time.Time) *apierr.Error {
	if r.State != StateLobbyOpen {
		return apierr.StateConflict("Game already started.")
	}
	if r.Locked {
		return apierr.Locked("Room locked. Ask the host to unlock it.")
	}
	if len(r.Players) >= r.Rules.MaxPlayersPerRoom {
		return apierr.Full(fmt.Sprintf("Room is full (max %d players).", r.Rules.MaxPlayersPerRoom))
	}
	if p.IsHost {
		if r.HostPlayerID != "" {
			return apierr.StateConflict("Room already has a host.")
		}
		r.HostPlayerID = p.ID
	}
	p.JoinedAt = now
	p.Connected = true
	r.Players = append(r.Players, p)
	r.bump(now)
	return nil
}

// RemovePlayer drops a player (leave or kick) and immediately redeals any
// unsubmitted prompts they held. Kick bypasses the disconnect grace.
func (r *Room) RemovePlayer(playerID string, kicked bool, now time.Time) *apierr.Error {
	p := r.GetPlayer(playerID)
	if p == nil {
		return apierr.NotFound("Player not found.")
	}
	p.Kicked = kicked

	kept := r.Players[:0]
	for _, other := range r.Players {
		if other.ID != playerID {
			kept = append(kept, other)
		}
	}
	r.Players = kept

	r.redealFrom(map[string]bool{playerID: true}, now)
	r.bump(now)
	return nil
}

// SetLocked toggles join locking.
func (r *Room) SetLocked(locked bool, now time.Time) {
	if r.Locked == locked {
		r.Touch(now)
		return
	}
	r.Locked = locked
	r.bump(now)
}

// SetTemplate changes the template selection while the lobby is open.
func (r *Room) SetTemplate(templateID string, now time.Time) *apierr.Error {
	if r.State != StateLobbyOpen {
		return apierr.StateConflict("Game already started.")
	}
	if _, ok := GetTemplate(templateID); !ok {
		return apierr.Validation("Unknown template.")
	}
	if r.TemplateID == templateID {
		r.Touch(now)
		return nil
	}
	r.TemplateID = templateID
	r.bump(now)
	return nil
}

// Start deals prompts and moves the room into Prompting.
func (r *Room) Start(now time.Time) *apierr.Error {
	if r.State != StateLobbyOpen {
		return apierr.StateConflict("Game already started.")
	}
	if r.TemplateID == "" {
		return apierr.StateConflict("Pick a story template before starting.")
	}
	tpl, ok := GetTemplate(r.TemplateID)
	if !ok {
		return apierr.Validation("Unknown template.")
	}
	if len(r.Players) < r.Rules.MinPlayersToStart {
		return apierr.StateConflict(fmt.Sprintf("Need at least %d players to start.", r.Rules.MinPlayersToStart))
	}

	r.Prompts = dealPrompts(tpl, r.Players, r.Rules.PromptsPerPlayer, r.RoundIndex, now)
	if err := r.transition(StatePrompting); err != nil {
		return err
	}
	r.bump(now)
	return nil
}

// SubmitPrompt records a player's value for a prompt they currently hold.
// Resubmitting the identical value is accepted silently; a different value
// for an already-submitted prompt is a conflict.
func (r *Room) SubmitPrompt(playerID, promptID, value string, moderate Moderator, now time.Time) *apierr.Error {
	if r.State != StatePrompting {
		return apierr.StateConflict("Prompt collection is closed.")
	}

	var prompt *Prompt
	for _, p := range r.Prompts {
		if p.ID == promptID {
			prompt = p
			break
		}
	}
	if prompt == nil {
		return apierr.NotFound("Prompt not found.")
	}
	if prompt.AssignedPlayerID != playerID {
		return apierr.NotFound("Prompt not found for player.")
	}

	trimmed, err := ValidatePromptValue(value, prompt.SlotType, moderate)
	if err != nil {
		return err
	}

	if prompt.Submitted {
		if prompt.Value == trimmed {
			return nil // idempotent resubmit
		}
		return apierr.StateConflict("Prompt already submitted.")
	}

	prompt.Value = trimmed
	prompt.Submitted = true
	submittedAt := now
	prompt.SubmittedAt = &submittedAt

	if r.allSubmitted() {
		if err := r.transition(StateAwaitingReveal); err != nil {
			return err
		}
	}
	r.bump(now)
	return nil
}

func (r *Room) allSubmitted() bool {
	if len(r.Prompts) == 0 {
		return false
	}
	for _, p := range r.Prompts {
		if !p.Submitted {
			return false
		}
	}
	return true
}

// Reveal renders the story and moves the room into Revealed. The rendered
// story passes the moderation filter as a whole; a blocked story keeps the
// room in AwaitingReveal so the host can replay.
func (r *Room) Reveal(moderate Moderator, now time.Time) (string, *apierr.Error) {
	if r.State != StateAwaitingReveal {
		if r.State == StateRevealed {
			return r.RevealedStory, nil
		}
		return "", apierr.StateConflict("All prompts must be submitted before reveal.")
	}
	tpl, ok := GetTemplate(r.TemplateID)
	if !ok {
		return "", apierr.Validation("Unknown template.")
	}

	story := RenderStory(tpl, promptValuesBySlot(r.Prompts))
	if moderate != nil {
		if _, blocked := moderate(story); blocked {
			return "", apierr.Validation(
				"We couldn't reveal this story because it includes language we can't accept. " +
					"Please replay and try different responses.")
		}
	}

	r.RevealedStory = story
	if err := r.transition(StateRevealed); err != nil {
		return "", err
	}
	r.bump(now)
	return story, nil
}

// Replay rotates the round: fresh round id, new deal, cleared narration and
// share, back to Prompting.
func (r *Room) Replay(now time.Time) *apierr.Error {
	if r.State != StateRevealed {
		return apierr.StateConflict("Nothing to replay yet.")
	}
	tpl, ok := GetTemplate(r.TemplateID)
	if !ok {
		return apierr.Validation("Unknown template.")
	}

	r.RoundID = ident.NewID("round")
	r.RoundIndex++
	r.RevealedStory = ""
	r.NarrationJobID = ""
	r.Share = nil
	r.Prompts = dealPrompts(tpl, r.Players, r.Rules.PromptsPerPlayer, r.RoundIndex, now)
	if err := r.transition(StatePrompting); err != nil {
		return err
	}
	r.bump(now)
	return nil
}

// SetNarrationJob records the active narration job for the current round.
func (r *Room) SetNarrationJob(jobID string, now time.Time) {
	if r.NarrationJobID == jobID {
		r.Touch(now)
		return
	}
	r.NarrationJobID = jobID
	r.bump(now)
}

// SetShare records the current round's share artifact. Replay clears it.
func (r *Room) SetShare(token string, expiresAt, now time.Time) {
	r.Share = &ShareRef{Token: token, ExpiresAt: expiresAt}
	r.bump(now)
}

// Expire moves the room to its terminal state.
func (r *Room) Expire(now time.Time) *apierr.Error {
	if r.State == StateExpired {
		return apierr.Expired("Room expired.")
	}
	if err := r.transition(StateExpired); err != nil {
		return err
	}
	r.bump(now)
	return nil
}

// MarkConnected flips a player to connected and clears the grace window.
// Prompts that went unassigned because nobody was left to take them are
// handed to the reconnecting player. Prompts already reassigned to someone
// else stay where they are.
func (r *Room) MarkConnected(playerID string, now time.Time) {
	p := r.GetPlayer(playerID)
	if p == nil {
		return
	}
	p.Connected = true
	p.DisconnectedAt = nil
	for _, prompt := range r.Prompts {
		if prompt.AssignedPlayerID == "" && !prompt.Submitted {
			prompt.AssignedPlayerID = playerID
			reassignedAt := now
			prompt.LastReassignedAt = &reassignedAt
		}
	}
	r.bump(now)
}

// MarkDisconnected flips a player to disconnected and starts the grace
// window.
func (r *Room) MarkDisconnected(playerID string, now time.Time) {
	p := r.GetPlayer(playerID)
	if p == nil {
		return
	}
	p.Connected = false
	disconnectedAt := now
	p.DisconnectedAt = &disconnectedAt
	r.bump(now)
}

// PlayerPrompts returns the prompts currently assigned to a player, in deal
// order.
func (r *Room) PlayerPrompts(playerID string) []*Prompt {
	var out []*Prompt
	for _, p := range r.Prompts {
		if p.AssignedPlayerID == playerID {
			out = append(out, p)
		}
	}
	return out
}
