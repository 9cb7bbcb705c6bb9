package game

// TemplateSlot is one placeholder in a template story.
type TemplateSlot struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Template is a story template: a title, its ordered slots, and the story
// text with {slot_id} placeholders.
type Template struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Genre         string         `json:"genre"`
	ContentRating string         `json:"content_rating"`
	Slots         []TemplateSlot `json:"slots"`
	Story         string         `json:"story"`
}

var baseSlots = []TemplateSlot{
	{ID: "adjective", Label: "An adjective", Type: "adjective"},
	{ID: "name", Label: "A famous name", Type: "name"},
	{ID: "verb", Label: "A verb ending in -ing", Type: "verb"},
	{ID: "place", Label: "A place", Type: "place"},
	{ID: "sound", Label: "A silly sound", Type: "sound"},
	{ID: "noun", Label: "A plural noun", Type: "noun"},
}

// templateOrder keeps the catalogue listing stable.
var templateOrder = []string{
	"t-forest-mishap",
	"t-space-diner",
	"t-castle-caper",
	"t-museum-heist",
	"t-wild-west",
	"t-ocean-odyssey",
}

var templateCatalogue = map[string]Template{
	"t-forest-mishap": {
		ID: "t-forest-mishap", Title: "The Forest Mishap", Genre: "Adventure", ContentRating: "family",
		Slots: baseSlots,
		Story: "On a {adjective} morning, {name} was {verb} through the {place} when a {sound} startled a {noun}. " +
			"Everyone laughed, then asked for an encore.",
	},
	"t-space-diner": {
		ID: "t-space-diner", Title: "Midnight at the Space Diner", Genre: "Sci-Fi", ContentRating: "family",
		Slots: baseSlots,
		Story: "At the {place} space diner, {name} kept {verb} until a {adjective} {noun} burst in with a {sound}. " +
			"The crowd cheered and ordered dessert.",
	},
	"t-castle-caper": {
		ID: "t-castle-caper", Title: "The Castle Caper", Genre: "Fantasy", ContentRating: "family",
		Slots: baseSlots,
		Story: "Inside the {adjective} castle, {name} was caught {verb} past the {place} when a {sound} spooked the {noun}. " +
			"A royal encore was demanded.",
	},
	"t-museum-heist": {
		ID: "t-museum-heist", Title: "The Curious Museum Heist", Genre: "Mystery", ContentRating: "family",
		Slots: baseSlots,
		Story: "During a {adjective} tour of the {place}, {name} was {verb} when a {sound} echoed over the {noun}. " +
			"The guide insisted on an encore.",
	},
	"t-wild-west": {
		ID: "t-wild-west", Title: "Sundown in the Wild West", Genre: "Western", ContentRating: "family",
		Slots: baseSlots,
		Story: "At the {place} saloon, {name} was {verb} when a {sound} scared a {adjective} herd of {noun}. " +
			"The town roared for a repeat.",
	},
	"t-ocean-odyssey": {
		ID: "t-ocean-odyssey", Title: "The Ocean Odyssey", Genre: "Adventure", ContentRating: "family",
		Slots: baseSlots,
		Story: "On the {adjective} deck of the {place}, {name} was {verb} when a {sound} startled the {noun}. " +
			"The crew begged for an encore.",
	},
}

// GetTemplate looks up a template by id.
func GetTemplate(id string) (Template, bool) {
	tpl, ok := templateCatalogue[id]
	return tpl, ok
}

// DefaultTemplate returns the catalogue's first template.
func DefaultTemplate() Template {
	return templateCatalogue[templateOrder[0]]
}

// ListTemplates returns the catalogue in stable order.
func ListTemplates() []Template {
	out := make([]Template, 0, len(templateOrder))
	for _, id := range templateOrder {
		out = append(out, templateCatalogue[id])
	}
	return out
}
