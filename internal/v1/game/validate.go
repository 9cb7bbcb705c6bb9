package game

import (
	"fmt"
	"strings"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
)

// MaxDisplayNameLength bounds player display names.
const MaxDisplayNameLength = 30

// ValidatePromptValue checks a submitted value against the slot type's
// bounds, the printable-ASCII charset rule, and the moderation filter.
// Returns the trimmed value on success.
func ValidatePromptValue(value, slotType string, moderate Moderator) (string, *apierr.Error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apierr.Validation("Please add a response before submitting.")
	}

	for _, r := range trimmed {
		if r < 32 || r > 126 {
			return "", apierr.Validation(
				"That response includes characters we can't read yet. " +
					"Use letters, numbers, and common punctuation only, and remove emoji or control characters.")
		}
	}

	minLen, maxLen := SlotLimits(slotType)
	if len(trimmed) < minLen {
		return "", apierr.Validation("That response is too short. Please add a little more detail.")
	}
	if len(trimmed) > maxLen {
		return "", apierr.Validation(fmt.Sprintf("That response is too long. Please keep it under %d characters.", maxLen))
	}

	if moderate != nil {
		if reason, blocked := moderate(trimmed); blocked {
			return "", apierr.Validation(reason)
		}
	}
	return trimmed, nil
}

// SanitizeDisplayName trims, bounds, and charset-checks a display name.
// Empty input is allowed; callers default it.
func SanitizeDisplayName(name string) (string, *apierr.Error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", nil
	}
	if len(trimmed) > MaxDisplayNameLength {
		return "", apierr.Validation(fmt.Sprintf("Display name must be %d characters or fewer.", MaxDisplayNameLength))
	}
	for _, r := range trimmed {
		if r < 32 || r > 126 {
			return "", apierr.Validation("Display name contains invalid characters.")
		}
	}
	return trimmed, nil
}
