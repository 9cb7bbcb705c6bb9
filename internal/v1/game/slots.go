package game

// SlotType describes a typed placeholder: the prompt label shown to the
// player, the accepted value length, and whether the value is quoted when
// rendered into the story.
type SlotType struct {
	Name         string
	Label        string
	MinLength    int
	MaxLength    int
	QuoteInStory bool
}

var slotTypeRegistry = map[string]SlotType{
	"adjective": {Name: "adjective", Label: "An adjective", MinLength: 1, MaxLength: 24},
	"name":      {Name: "name", Label: "A person", MinLength: 1, MaxLength: 40},
	"verb":      {Name: "verb", Label: "A verb ending in -ing", MinLength: 1, MaxLength: 30},
	"place":     {Name: "place", Label: "A place", MinLength: 1, MaxLength: 40},
	"sound":     {Name: "sound", Label: "A silly sound", MinLength: 1, MaxLength: 24, QuoteInStory: true},
	"noun":      {Name: "noun", Label: "A noun", MinLength: 1, MaxLength: 40},
}

// defaultSlotType covers placeholders with no registered type.
var defaultSlotType = SlotType{Name: "unknown", Label: "A word or phrase", MinLength: 1, MaxLength: 60}

// GetSlotType returns the registered slot type, or a permissive default.
func GetSlotType(name string) SlotType {
	if st, ok := slotTypeRegistry[name]; ok {
		return st
	}
	return defaultSlotType
}

// SlotLimits returns the accepted value length bounds for a slot type.
func SlotLimits(name string) (min, max int) {
	st := GetSlotType(name)
	return st.MinLength, st.MaxLength
}
