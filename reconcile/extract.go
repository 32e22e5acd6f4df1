package reconcile

import (
	"regexp"
	"strings"
)

// Extraction patterns in priority order. Specific prefixes come before the
// generic fallback so operator-entered notes like "Paid INV-100 thanks"
// resolve to the intended reference rather than the first long word.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bINV-[A-Z0-9-]+`),
	regexp.MustCompile(`(?i)\bTEST-[A-Z0-9-]+`),
	regexp.MustCompile(`(?i)\bINVOICE[:#\s-]*([A-Z0-9-]+)`),
	regexp.MustCompile(`\b[A-Za-z0-9]{4,}\b`),
}

// ExtractReference scans a payment's free-text note for an invoice
// reference token. Returns the normalized (trimmed, uppercased) reference,
// or "" when the note carries nothing usable.
func ExtractReference(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return ""
	}

	for i, pattern := range referencePatterns {
		match := pattern.FindStringSubmatch(note)
		if match == nil {
			continue
		}

		ref := match[0]
		// The INVOICE-label pattern captures the identifier separately.
		if i == 2 && len(match) > 1 {
			ref = match[1]
		}

		return NormalizeReference(ref)
	}

	return ""
}

// NormalizeReference trims and uppercases a reference so stored and
// extracted forms compare equal regardless of operator formatting.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}
