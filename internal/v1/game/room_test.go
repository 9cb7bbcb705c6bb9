package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/ident"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testRules() Rules {
	r := DefaultRules()
	r.MinPlayersToStart = 2
	r.MaxPlayersPerRoom = 4
	return r
}

func newTestRoom(t *testing.T, playerCount int) *Room {
	t.Helper()
	room := NewRoom(ident.NewID("room"), "ABCDEF", "t-forest-mishap", testRules(), t0)
	for i := 0; i < playerCount; i++ {
		p := &Player{
			ID:          ident.NewID("player"),
			DisplayName: "Player" + string(rune('A'+i)),
			IsHost:      i == 0,
		}
		require.Nil(t, room.AddPlayer(p, t0.Add(time.Duration(i)*time.Second)))
	}
	return room
}

func submitAll(t *testing.T, room *Room, now time.Time) {
	t.Helper()
	for _, p := range room.Prompts {
		if p.Submitted {
			continue
		}
		require.Nil(t, room.SubmitPrompt(p.AssignedPlayerID, p.ID, "breezy", nil, now))
	}
}

func TestRoomLifecycleHappyPath(t *testing.T) {
	room := newTestRoom(t, 3)
	assert.Equal(t, StateLobbyOpen, room.State)

	require.Nil(t, room.Start(t0.Add(time.Minute)))
	assert.Equal(t, StatePrompting, room.State)
	assert.Len(t, room.Prompts, 9) // 3 prompts per player beats the 6 slots

	submitAll(t, room, t0.Add(2*time.Minute))
	assert.Equal(t, StateAwaitingReveal, room.State)

	story, err := room.Reveal(nil, t0.Add(3*time.Minute))
	require.Nil(t, err)
	assert.NotEmpty(t, story)
	assert.Equal(t, StateRevealed, room.State)
	assert.Equal(t, story, room.RevealedStory)

	require.Nil(t, room.Replay(t0.Add(4*time.Minute)))
	assert.Equal(t, StatePrompting, room.State)
	assert.Equal(t, 1, room.RoundIndex)
	assert.Empty(t, room.RevealedStory)
	assert.Nil(t, room.Share)
	for _, p := range room.Prompts {
		assert.False(t, p.Submitted)
	}
}

func TestStateVersionStrictlyIncreases(t *testing.T) {
	room := newTestRoom(t, 2)
	versions := []int64{room.StateVersion}

	require.Nil(t, room.Start(t0.Add(time.Minute)))
	versions = append(versions, room.StateVersion)
	submitAll(t, room, t0.Add(2*time.Minute))
	versions = append(versions, room.StateVersion)
	_, err := room.Reveal(nil, t0.Add(3*time.Minute))
	require.Nil(t, err)
	versions = append(versions, room.StateVersion)

	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestStartGuards(t *testing.T) {
	room := NewRoom(ident.NewID("room"), "ABCDEF", "t-forest-mishap", testRules(), t0)
	host := &Player{ID: ident.NewID("player"), DisplayName: "Host", IsHost: true}
	require.Nil(t, room.AddPlayer(host, t0))

	err := room.Start(t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)

	require.Nil(t, room.AddPlayer(&Player{ID: ident.NewID("player"), DisplayName: "Guest"}, t0))
	require.Nil(t, room.Start(t0))

	err = room.Start(t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)
}

func TestJoinRejectedAfterStartLockedAndFull(t *testing.T) {
	room := newTestRoom(t, 2)

	room.SetLocked(true, t0)
	err := room.AddPlayer(&Player{ID: ident.NewID("player")}, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindLocked, err.Kind)
	room.SetLocked(false, t0)

	for len(room.Players) < room.Rules.MaxPlayersPerRoom {
		require.Nil(t, room.AddPlayer(&Player{ID: ident.NewID("player")}, t0))
	}
	err = room.AddPlayer(&Player{ID: ident.NewID("player")}, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindFull, err.Kind)

	room.Players = room.Players[:2]
	require.Nil(t, room.Start(t0))
	err = room.AddPlayer(&Player{ID: ident.NewID("player")}, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)
}

func TestSubmitIdempotencyAndConflict(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.Start(t0))

	prompt := room.Prompts[0]
	playerID := prompt.AssignedPlayerID
	require.Nil(t, room.SubmitPrompt(playerID, prompt.ID, "sparkly", nil, t0))
	v := room.StateVersion

	// Same value again is a silent success and does not bump the version.
	require.Nil(t, room.SubmitPrompt(playerID, prompt.ID, "sparkly", nil, t0))
	assert.Equal(t, v, room.StateVersion)

	err := room.SubmitPrompt(playerID, prompt.ID, "different", nil, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)
	assert.Equal(t, "sparkly", prompt.Value)
}

func TestSubmitWrongPlayerAndUnknownPrompt(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.Start(t0))

	prompt := room.Prompts[0]
	other := room.Players[0]
	if other.ID == prompt.AssignedPlayerID {
		other = room.Players[1]
	}

	err := room.SubmitPrompt(other.ID, prompt.ID, "sneaky", nil, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindNotFound, err.Kind)

	err = room.SubmitPrompt(prompt.AssignedPlayerID, "prompt_missing", "x", nil, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindNotFound, err.Kind)
}

func TestRevealGuards(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.Start(t0))

	_, err := room.Reveal(nil, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)

	submitAll(t, room, t0)
	story, err := room.Reveal(nil, t0)
	require.Nil(t, err)

	// Reveal is idempotent once revealed.
	again, err := room.Reveal(nil, t0)
	require.Nil(t, err)
	assert.Equal(t, story, again)
}

func TestRevealBlockedByModerationStaysAwaiting(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.Start(t0))
	submitAll(t, room, t0)

	blockEverything := func(string) (string, bool) { return "nope", true }
	_, err := room.Reveal(blockEverything, t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindValidation, err.Kind)
	assert.Equal(t, StateAwaitingReveal, room.State)
}

func TestKickReassignsImmediately(t *testing.T) {
	room := newTestRoom(t, 3)
	require.Nil(t, room.Start(t0))

	victim := room.Players[2]
	held := len(room.PlayerPrompts(victim.ID))
	require.Greater(t, held, 0)

	require.Nil(t, room.RemovePlayer(victim.ID, true, t0.Add(time.Minute)))
	assert.Len(t, room.Players, 2)
	for _, p := range room.Prompts {
		assert.NotEqual(t, victim.ID, p.AssignedPlayerID)
	}
	// Total pool size never shrinks on reassignment.
	assert.Len(t, room.Prompts, 9)
}

func TestExpireIsTerminal(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.Expire(t0))
	assert.Equal(t, StateExpired, room.State)

	err := room.Expire(t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindExpired, err.Kind)

	startErr := room.Start(t0)
	require.NotNil(t, startErr)
	assert.Equal(t, apierr.KindStateConflict, startErr.Kind)
}

func TestIsExpired(t *testing.T) {
	room := newTestRoom(t, 2)
	assert.False(t, room.IsExpired(t0.Add(time.Hour), time.Hour))
	assert.True(t, room.IsExpired(t0.Add(time.Hour+time.Second+time.Second), time.Hour))

	room.Touch(t0.Add(2 * time.Hour))
	assert.False(t, room.IsExpired(t0.Add(2*time.Hour+time.Minute), time.Hour))
}

func TestSetTemplateOnlyInLobby(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.SetTemplate("t-space-diner", t0))
	assert.Equal(t, "t-space-diner", room.TemplateID)

	err := room.SetTemplate("t-nope", t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindValidation, err.Kind)

	require.Nil(t, room.Start(t0))
	err = room.SetTemplate("t-forest-mishap", t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)
}

func TestSnapshotShape(t *testing.T) {
	room := newTestRoom(t, 2)
	snap := room.Snapshot()
	assert.Equal(t, room.ID, snap.RoomID)
	assert.Equal(t, "ABCDEF", snap.RoomCode)
	assert.Equal(t, StateLobbyOpen, snap.RoomState)
	assert.Len(t, snap.Players, 2)
	assert.True(t, snap.Players[0].IsHost)
	assert.Empty(t, snap.Story)

	require.Nil(t, room.Start(t0))
	submitAll(t, room, t0)
	story, err := room.Reveal(nil, t0)
	require.Nil(t, err)
	assert.Equal(t, story, room.Snapshot().Story)
}

func TestProgressCountsSubmissionsRegardlessOfAssignee(t *testing.T) {
	room := newTestRoom(t, 3)
	require.Nil(t, room.Start(t0))

	p := room.Progress()
	assert.Equal(t, 9, p.AssignedTotal)
	assert.Equal(t, 0, p.SubmittedTotal)
	assert.Equal(t, 3, p.ConnectedTotal)
	assert.False(t, p.ReadyToReveal)

	// One player submits everything they hold, then drops past grace.
	leaver := room.Players[2]
	for _, prompt := range room.PlayerPrompts(leaver.ID) {
		require.Nil(t, room.SubmitPrompt(leaver.ID, prompt.ID, "quietly", nil, t0))
	}
	room.MarkDisconnected(leaver.ID, t0)
	room.ReassignOverdue(t0.Add(room.Rules.DisconnectGrace))

	submitAll(t, room, t0.Add(time.Minute))
	p = room.Progress()
	assert.Equal(t, 9, p.SubmittedTotal)
	assert.True(t, p.ReadyToReveal)
	assert.Equal(t, 1, p.DisconnectedTotal)
}

func TestPromptViewsHideUnsubmittedValues(t *testing.T) {
	room := newTestRoom(t, 2)
	require.Nil(t, room.Start(t0))

	prompt := room.Prompts[0]
	require.Nil(t, room.SubmitPrompt(prompt.AssignedPlayerID, prompt.ID, "echoing", nil, t0))

	views := PromptViews(room.Prompts)
	for _, v := range views {
		if v.ID == prompt.ID {
			assert.Equal(t, "echoing", v.Value)
			assert.True(t, v.Submitted)
		} else {
			assert.Empty(t, v.Value)
		}
	}
}
