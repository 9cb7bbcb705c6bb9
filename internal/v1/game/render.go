package game

import "strings"

// missingValue substitutes for slots nobody filled in.
const missingValue = "something"

// RenderStory substitutes submitted values into the template story.
// Deterministic and total: unknown placeholders are left literal, missing
// values become "something", and sound values are quoted unless the player
// already quoted them.
func RenderStory(tpl Template, values map[string]string) string {
	rendered := tpl.Story
	for _, slot := range tpl.Slots {
		value := strings.TrimSpace(values[slot.ID])
		if value == "" {
			value = missingValue
		} else if GetSlotType(slot.Type).QuoteInStory && !(strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) {
			value = `"` + value + `"`
		}
		rendered = strings.ReplaceAll(rendered, "{"+slot.ID+"}", value)
	}
	return rendered
}

// promptValuesBySlot maps slot id to the first submitted value for it.
// Templates can repeat a slot across prompts when the pool is larger than
// the slot list; the earliest submission wins, matching deal order.
func promptValuesBySlot(prompts []*Prompt) map[string]string {
	values := make(map[string]string, len(prompts))
	for _, p := range prompts {
		if !p.Submitted || strings.TrimSpace(p.Value) == "" {
			continue
		}
		if _, ok := values[p.SlotID]; !ok {
			values[p.SlotID] = strings.TrimSpace(p.Value)
		}
	}
	return values
}
