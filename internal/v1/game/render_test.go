package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStorySubstitutesAllSlots(t *testing.T) {
	tpl, ok := GetTemplate("t-forest-mishap")
	require.True(t, ok)

	story := RenderStory(tpl, map[string]string{
		"adjective": "glittery",
		"name":      "Captain Nemo",
		"verb":      "cartwheeling",
		"place":     "swamp",
		"sound":     "kaboom",
		"noun":      "porcupines",
	})
	assert.NotContains(t, story, "{")
	assert.Contains(t, story, "glittery")
	assert.Contains(t, story, `"kaboom"`)
}

func TestRenderStoryQuotesSoundUnlessQuoted(t *testing.T) {
	tpl, _ := GetTemplate("t-forest-mishap")

	story := RenderStory(tpl, map[string]string{"sound": `"boing"`})
	assert.Contains(t, story, `"boing"`)
	assert.NotContains(t, story, `""boing""`)
}

func TestRenderStoryFillsMissingValues(t *testing.T) {
	tpl, _ := GetTemplate("t-forest-mishap")

	story := RenderStory(tpl, nil)
	assert.NotContains(t, story, "{")
	assert.Contains(t, story, missingValue)

	// Whitespace-only counts as missing too.
	story = RenderStory(tpl, map[string]string{"adjective": "   "})
	assert.Equal(t, strings.Count(story, missingValue), len(tpl.Slots))
}

func TestRenderStoryTrimsValues(t *testing.T) {
	tpl, _ := GetTemplate("t-forest-mishap")
	story := RenderStory(tpl, map[string]string{"adjective": "  soggy  "})
	assert.Contains(t, story, "a soggy morning")
}

func TestRenderStoryDeterministic(t *testing.T) {
	tpl, _ := GetTemplate("t-space-diner")
	values := map[string]string{"name": "Ada", "noun": "robots"}
	assert.Equal(t, RenderStory(tpl, values), RenderStory(tpl, values))
}

func TestPromptValuesBySlotFirstSubmissionWins(t *testing.T) {
	prompts := []*Prompt{
		{SlotID: "noun", Submitted: true, Value: "badgers"},
		{SlotID: "noun", Submitted: true, Value: "teacups"},
		{SlotID: "verb", Submitted: false, Value: "ignored"},
		{SlotID: "sound", Submitted: true, Value: "   "},
	}
	values := promptValuesBySlot(prompts)
	assert.Equal(t, "badgers", values["noun"])
	assert.NotContains(t, values, "verb")
	assert.NotContains(t, values, "sound")
}
