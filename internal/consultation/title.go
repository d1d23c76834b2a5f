package consultation

import (
	"strings"
	"unicode/utf8"

	"ms-health-assistant/internal/knowledge"

	"github.com/elliotchance/pie/v2"
)

const (
	DefaultTitle = "New MS Consultation"

	maxTitleLength = 50
	minTitleLength = 10
)

// GenerateTitle builds a session title from the first sentence of a message.
func GenerateTitle(message string) string {
	title := strings.TrimSpace(message)
	if i := strings.IndexAny(title, ".?!\n"); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleLength])) + "..."
	}
	if utf8.RuneCountInString(title) < minTitleLength {
		return DefaultTitle
	}
	return title
}

// symptomTitle names a consultation after its first two symptom categories.
func symptomTitle(st *State) string {
	cats := pie.Filter(knowledge.SymptomCategories, func(c knowledge.SymptomCategory) bool {
		return len(st.Symptoms[c]) > 0
	})
	if len(cats) == 0 {
		return ""
	}
	if len(cats) > 2 {
		cats = cats[:2]
	}
	names := pie.Map(cats, func(c knowledge.SymptomCategory) string { return string(c) })
	return "MS Consultation: " + strings.Join(names, ", ")
}
