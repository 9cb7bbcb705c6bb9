package game

import (
	"sort"
	"time"

	"github.com/waustin14/StoryFill/internal/v1/ident"
)

// dealPrompts builds the round's prompt pool and deals it round-robin.
//
// The pool is every template slot at least once, padded by cycling the slot
// list until each player holds promptsPerPlayer prompts. The deal starts at
// roundIndex modulo the player count so replays rotate who gets which slot.
func dealPrompts(tpl Template, players []*Player, promptsPerPlayer, roundIndex int, now time.Time) []*Prompt {
	if len(players) == 0 {
		return nil
	}
	poolSize := len(tpl.Slots)
	if want := promptsPerPlayer * len(players); want > poolSize {
		poolSize = want
	}

	prompts := make([]*Prompt, 0, poolSize)
	offset := roundIndex % len(players)
	for i := 0; i < poolSize; i++ {
		slot := tpl.Slots[i%len(tpl.Slots)]
		assignee := players[(offset+i)%len(players)]
		prompts = append(prompts, &Prompt{
			ID:               ident.NewID("prompt"),
			SlotID:           slot.ID,
			SlotType:         slot.Type,
			Label:            slot.Label,
			AssignedPlayerID: assignee.ID,
			AssignedAt:       now,
		})
	}
	return prompts
}

// outstandingCount is the number of unsubmitted prompts a player holds.
func (r *Room) outstandingCount(playerID string) int {
	n := 0
	for _, p := range r.Prompts {
		if p.AssignedPlayerID == playerID && !p.Submitted {
			n++
		}
	}
	return n
}

// reassignCandidates returns the players eligible to pick up redealt
// prompts, excluding the given ids. Connected players are preferred; if
// nobody is connected the remaining roster is used so prompts never point
// at a departed player.
func (r *Room) reassignCandidates(exclude map[string]bool) []*Player {
	var connected, all []*Player
	for _, p := range r.Players {
		if exclude[p.ID] {
			continue
		}
		all = append(all, p)
		if p.Connected {
			connected = append(connected, p)
		}
	}
	if len(connected) > 0 {
		return connected
	}
	return all
}

// redealFrom moves every unsubmitted prompt held by the given players onto
// the candidate with the fewest outstanding prompts, breaking ties by
// earliest join. Submitted values are kept. With no candidates the prompts
// are left unassigned and picked up by the next reconnecting player.
func (r *Room) redealFrom(from map[string]bool, now time.Time) int {
	candidates := r.reassignCandidates(from)

	moved := 0
	for _, prompt := range r.Prompts {
		if prompt.Submitted {
			continue
		}
		if !from[prompt.AssignedPlayerID] && prompt.AssignedPlayerID != "" {
			continue
		}
		if len(candidates) == 0 {
			prompt.AssignedPlayerID = ""
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			ci, cj := r.outstandingCount(candidates[i].ID), r.outstandingCount(candidates[j].ID)
			if ci != cj {
				return ci < cj
			}
			return candidates[i].JoinedAt.Before(candidates[j].JoinedAt)
		})
		prompt.AssignedPlayerID = candidates[0].ID
		reassignedAt := now
		prompt.LastReassignedAt = &reassignedAt
		moved++
	}
	return moved
}

// ReassignOverdue redeals the unsubmitted prompts of every player whose
// disconnect grace has elapsed. It reports how many prompts moved; the
// caller publishes the resulting snapshot when nonzero. Reassignment is
// one way: a player who reconnects later keeps only what they still hold.
func (r *Room) ReassignOverdue(now time.Time) int {
	if r.State != StatePrompting {
		return 0
	}
	overdue := make(map[string]bool)
	for _, p := range r.Players {
		if p.Connected || p.DisconnectedAt == nil {
			continue
		}
		if now.Sub(*p.DisconnectedAt) >= r.Rules.DisconnectGrace {
			overdue[p.ID] = true
		}
	}
	if len(overdue) == 0 {
		return 0
	}
	moved := r.redealFrom(overdue, now)
	if moved > 0 {
		r.bump(now)
	}
	return moved
}
