package game

import (
	"strings"
)

// Moderator decides whether free text is acceptable. It returns a
// user-facing reason when the text is blocked. Pluggable so a stricter
// hosted filter can replace the built-in list without touching room code.
type Moderator func(text string) (reason string, blocked bool)

// Family-safe blocked list. Lowercase ASCII only; matching handles case,
// leetspeak, and separator tricks.
var blockedTerms = []string{
	// Sexual content
	"porn", "porno", "pussy", "dick", "cock", "penis", "vagina",
	"boob", "boobs", "tits", "tit", "cum", "sex", "sexy", "horny", "rape",
	// Slurs / hate
	"nazi", "hitler",
	// Violence / terror
	"terrorist",
	// General profanity
	"fuck", "fucking", "shit", "bitch", "cunt", "asshole", "bastard", "motherfucker",
}

var leetMap = map[rune]rune{
	'@': 'a', '$': 's', '0': 'o', '1': 'i', '3': 'e', '4': 'a',
	'5': 's', '7': 't', '8': 'b', '9': 'g', '!': 'i', '+': 't',
}

const blockedReason = "That response includes language we can't accept. Please try a different word or phrase."

// normalizeForModeration lowercases, folds leetspeak substitutions, turns
// punctuation into spaces (so "f.u.c.k" splits), and collapses runs of the
// same character longer than two ("fuuuuuck" -> "fuuck").
func normalizeForModeration(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	var last rune
	repeat := 0
	for _, r := range strings.ToLower(text) {
		if folded, ok := leetMap[r]; ok {
			r = folded
		}
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			r = ' '
		}
		if r == last {
			repeat++
			if repeat >= 2 {
				continue
			}
		} else {
			last = r
			repeat = 0
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// containsWholeWord reports whether words contains term as a whole
// space-delimited word, or spelled out letter by letter across words
// ("f u c k").
func containsBlockedTerm(normalized, term string) bool {
	words := strings.Fields(normalized)
	for i, w := range words {
		if w == term {
			return true
		}
		// Spaced-out letters: the term split one rune per word.
		if len(w) == 1 && w[0] == term[0] {
			j := i
			matched := 0
			for matched < len(term) && j < len(words) && len(words[j]) == 1 && words[j][0] == term[matched] {
				matched++
				j++
			}
			if matched == len(term) {
				return true
			}
		}
	}
	return false
}

// DefaultModerator is the built-in blocked-term filter.
func DefaultModerator(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	normalized := normalizeForModeration(text)
	for _, term := range blockedTerms {
		if containsBlockedTerm(normalized, term) {
			return blockedReason, true
		}
	}
	return "", false
}
