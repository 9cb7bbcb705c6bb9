package game

// PlayerView is the public view of a player inside a snapshot.
type PlayerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsHost      bool   `json:"is_host"`
	Connected   bool   `json:"connected"`
}

// PromptView is a prompt as seen by its assignee. Values are echoed back
// only once submitted so reconnecting clients can restore their inputs.
type PromptView struct {
	ID        string `json:"id"`
	SlotID    string `json:"slot_id"`
	SlotType  string `json:"slot_type"`
	Label     string `json:"label"`
	Submitted bool   `json:"submitted"`
	Value     string `json:"value,omitempty"`
}

// Progress summarizes round completion for the progress endpoint and the
// snapshot envelope.
type Progress struct {
	AssignedTotal     int  `json:"assigned_total"`
	SubmittedTotal    int  `json:"submitted_total"`
	ConnectedTotal    int  `json:"connected_total"`
	DisconnectedTotal int  `json:"disconnected_total"`
	ReadyToReveal     bool `json:"ready_to_reveal"`
}

// Snapshot is the canonical room-state envelope fanned out to clients.
// It never carries tokens or other players' prompt values.
type Snapshot struct {
	RoomID       string       `json:"room_id"`
	RoomCode     string       `json:"room_code"`
	RoundID      string       `json:"round_id"`
	RoundIndex   int          `json:"round_index"`
	StateVersion int64        `json:"state_version"`
	RoomState    State        `json:"room_state"`
	Locked       bool         `json:"locked"`
	TemplateID   string       `json:"template_id"`
	Players      []PlayerView `json:"players"`
	Story        string       `json:"story,omitempty"`
}

// Snapshot builds the shared view of the room. The revealed story is
// included only once the room reaches Revealed.
func (r *Room) Snapshot() Snapshot {
	players := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, PlayerView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			IsHost:      p.IsHost,
			Connected:   p.Connected,
		})
	}
	snap := Snapshot{
		RoomID:       r.ID,
		RoomCode:     r.Code,
		RoundID:      r.RoundID,
		RoundIndex:   r.RoundIndex,
		StateVersion: r.StateVersion,
		RoomState:    r.State,
		Locked:       r.Locked,
		TemplateID:   r.TemplateID,
		Players:      players,
	}
	if r.State == StateRevealed {
		snap.Story = r.RevealedStory
	}
	return snap
}

// Progress counts the current round. Submissions count regardless of who
// holds the prompt now, so a reassigned-but-already-submitted prompt never
// blocks the reveal.
func (r *Room) Progress() Progress {
	p := Progress{AssignedTotal: len(r.Prompts)}
	for _, prompt := range r.Prompts {
		if prompt.Submitted {
			p.SubmittedTotal++
		}
	}
	for _, player := range r.Players {
		if player.Connected {
			p.ConnectedTotal++
		} else {
			p.DisconnectedTotal++
		}
	}
	p.ReadyToReveal = len(r.Prompts) > 0 && p.SubmittedTotal == p.AssignedTotal
	return p
}

// PromptViews converts a player's prompts to their wire form.
func PromptViews(prompts []*Prompt) []PromptView {
	out := make([]PromptView, 0, len(prompts))
	for _, p := range prompts {
		view := PromptView{
			ID:        p.ID,
			SlotID:    p.SlotID,
			SlotType:  p.SlotType,
			Label:     p.Label,
			Submitted: p.Submitted,
		}
		if p.Submitted {
			view.Value = p.Value
		}
		out = append(out, view)
	}
	return out
}
