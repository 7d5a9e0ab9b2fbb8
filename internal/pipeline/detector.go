package pipeline

import "strings"

// Detector decides whether an inbound text message asks for the staged
// documents to be analyzed. Matching is exact substring, case-sensitive;
// rephrasings that miss are an accepted false negative.
type Detector struct {
	phrases []string
}

// NewDetector creates a trigger detector over a fixed phrase set. Empty
// phrases are dropped.
func NewDetector(phrases []string) *Detector {
	kept := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if trimmed := strings.TrimSpace(phrase); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return &Detector{phrases: kept}
}

// Matches reports whether text contains any trigger phrase.
func (d *Detector) Matches(text string) bool {
	for _, phrase := range d.phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// Hint returns the first configured phrase, for user-facing prompts.
func (d *Detector) Hint() string {
	if len(d.phrases) == 0 {
		return ""
	}
	return d.phrases[0]
}
