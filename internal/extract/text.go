package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elliotchance/pie/v2"
)

// normalize lower-cases text and folds typographic apostrophes so that
// "I’m" and "I'm" match the same patterns.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "’", "'")
	return strings.ToLower(strings.TrimSpace(text))
}

// tokens splits normalized text into words. Apostrophes, hyphens and slashes
// stay inside a word ("i'm", "non-binary", "y/o") but are trimmed from its edges.
func tokens(normalized string) []string {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-' && r != '/'
	})

	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'-/")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// hasPhrase reports whether the words of phrase appear consecutively in toks.
func hasPhrase(toks []string, phrase string) bool {
	want := tokens(normalize(phrase))
	if len(want) == 0 || len(want) > len(toks) {
		return false
	}
	if len(want) == 1 {
		return pie.Contains(toks, want[0])
	}

	for i := 0; i+len(want) <= len(toks); i++ {
		if pie.Equals(toks[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func hasAnyPhrase(toks []string, phrases []string) bool {
	for _, p := range phrases {
		if hasPhrase(toks, p) {
			return true
		}
	}
	return false
}

func containsAny(normalized string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}

// hasWordPrefix reports whether any token starts with one of the keywords,
// so "walk" matches "walking" but "eat" does not match "great".
func hasWordPrefix(toks []string, keywords []string) bool {
	for _, t := range toks {
		for _, k := range keywords {
			if strings.HasPrefix(t, k) {
				return true
			}
		}
	}
	return false
}

// sentences splits raw text on sentence terminators and line breaks,
// keeping the original casing.
func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n' || r == ';'
	})
	return pie.Filter(pie.Map(parts, strings.TrimSpace), func(s string) bool {
		return s != ""
	})
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !pie.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
