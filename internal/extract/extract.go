// Package extract turns free-text intake answers into partial facts.
//
// Every method is pure: it reads the shared knowledge base, never mutates its
// input and returns an empty result for text it cannot make sense of.
package extract

import (
	"regexp"
	"strconv"

	"ms-health-assistant/internal/knowledge"

	"github.com/elliotchance/pie/v2"
)

const (
	MinAge = 1
	MaxAge = 120

	UnspecifiedMedication = "Unspecified medication"
	BasicLifestyle        = "Basic lifestyle"

	maxNoteLength = 200
)

// Age phrasings in priority order. The bare number rule comes last so that
// "I am 35 and have had MS for 10 years" yields 35.
var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:i am|i'm|im)\s+(\d{1,3})\b`),
	regexp.MustCompile(`\baged?\s*(?:is|:|=)?\s*(\d{1,3})\b`),
	regexp.MustCompile(`\b(\d{1,3})\s*(?:-\s*)?(?:years?|yrs?)(?:\s*-?\s*old)?\b`),
	regexp.MustCompile(`\b(\d{1,3})\s*y/?o\b`),
	regexp.MustCompile(`\b(\d{1,2})\b`),
}

type Demographics struct {
	// Age is zero when no plausible age was found.
	Age    int
	Gender knowledge.Gender
}

type TestResult struct {
	Key      string
	Name     string
	Findings []string
}

type Tests struct {
	Found  []TestResult
	Denied bool
}

type Treatments struct {
	Current []string
	Past    []string
	Denied  bool
}

type Intent int

const (
	IntentNone Intent = iota
	IntentGreeting
	IntentHelp
	IntentInfo
)

type Topic int

const (
	TopicNone Topic = iota
	TopicSymptoms
	TopicTests
	TopicTreatments
	TopicLifestyle
	TopicAll
)

type Extractor struct {
	kb *knowledge.Base
}

func New(kb *knowledge.Base) *Extractor {
	return &Extractor{kb: kb}
}

func (e *Extractor) Demographics(text string) Demographics {
	var d Demographics
	norm := normalize(text)
	if norm == "" {
		return d
	}

	d.Age = extractAge(norm)

	toks := tokens(norm)
	for _, g := range e.kb.Gender {
		if pie.Any(toks, func(t string) bool { return pie.Contains(g.Keywords, t) }) {
			d.Gender = g.Gender
			break
		}
	}

	return d
}

func extractAge(norm string) int {
	for _, re := range agePatterns {
		for _, m := range re.FindAllStringSubmatch(norm, -1) {
			age, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if age >= MinAge && age <= MaxAge {
				return age
			}
		}
	}
	return 0
}

// Symptoms returns the labels whose keywords occur anywhere in the text,
// grouped by category. Negations are not recognised: "no fatigue" still
// reports fatigue.
func (e *Extractor) Symptoms(text string) map[knowledge.SymptomCategory][]string {
	out := make(map[knowledge.SymptomCategory][]string)
	norm := normalize(text)
	if norm == "" {
		return out
	}

	for _, cat := range knowledge.SymptomCategories {
		for _, l := range e.kb.Symptoms[cat] {
			if containsAny(norm, l.Keywords) {
				out[cat] = appendUnique(out[cat], l.Label)
			}
		}
	}
	return out
}

func (e *Extractor) Tests(text string) Tests {
	var res Tests
	norm := normalize(text)
	if norm == "" {
		return res
	}

	for _, t := range e.kb.DiagnosticTests {
		if !containsAny(norm, t.Aliases) {
			continue
		}
		res.Found = append(res.Found, TestResult{
			Key:      t.Key,
			Name:     t.Name,
			Findings: []string{e.classifyFinding(norm, t)},
		})
	}

	res.Denied = isDenial(norm, e.kb.TestDenials)
	return res
}

func (e *Extractor) classifyFinding(norm string, t knowledge.Test) string {
	for _, f := range t.Findings {
		if containsAny(norm, f.Keywords) {
			return f.Label
		}
	}
	return e.kb.DefaultFinding
}

func (e *Extractor) Treatments(text string) Treatments {
	var res Treatments
	norm := normalize(text)
	if norm == "" {
		return res
	}
	toks := tokens(norm)

	var named []string
	for _, m := range e.kb.Medications {
		if containsAny(norm, m.Aliases) {
			named = appendUnique(named, m.Name)
		}
	}

	res.Denied = isDenial(norm, e.kb.TreatmentDenials)

	switch {
	case len(named) > 0 && containsAny(norm, e.kb.TreatmentPastMarkers):
		res.Past = named
	case len(named) > 0:
		res.Current = named
	case !res.Denied && hasWordPrefix(toks, e.kb.TreatmentTerms):
		res.Current = []string{UnspecifiedMedication}
	}

	return res
}

// Lifestyle maps each matched category to the sentence that mentioned it.
// Text with no recognised category is recorded as a general note.
func (e *Extractor) Lifestyle(text string) map[knowledge.LifestyleCategory][]string {
	out := make(map[knowledge.LifestyleCategory][]string)

	for _, s := range sentences(text) {
		toks := tokens(normalize(s))
		for _, cat := range knowledge.LifestyleCategories {
			if hasWordPrefix(toks, e.kb.Lifestyle[cat]) {
				out[cat] = appendUnique(out[cat], truncate(s, maxNoteLength))
			}
		}
	}

	if len(out) == 0 {
		out[knowledge.LifestyleGeneral] = []string{BasicLifestyle}
	}
	return out
}

// Intent classifies conversational openers. An MS information question wins
// over a help request, which wins over a plain greeting.
func (e *Extractor) Intent(text string) Intent {
	toks := tokens(normalize(text))
	switch {
	case len(toks) == 0:
		return IntentNone
	case hasAnyPhrase(toks, e.kb.Phrases.Info):
		return IntentInfo
	case hasAnyPhrase(toks, e.kb.Phrases.Help):
		return IntentHelp
	case hasAnyPhrase(toks, e.kb.Phrases.Greeting):
		return IntentGreeting
	default:
		return IntentNone
	}
}

// Recall detects questions about previously shared facts.
func (e *Extractor) Recall(text string) Topic {
	toks := tokens(normalize(text))
	r := e.kb.Recall
	switch {
	case len(toks) == 0:
		return TopicNone
	case hasAnyPhrase(toks, r.Symptoms):
		return TopicSymptoms
	case hasAnyPhrase(toks, r.Tests):
		return TopicTests
	case hasAnyPhrase(toks, r.Treatments):
		return TopicTreatments
	case hasAnyPhrase(toks, r.Lifestyle):
		return TopicLifestyle
	case hasAnyPhrase(toks, r.All):
		return TopicAll
	default:
		return TopicNone
	}
}

func isDenial(norm string, d knowledge.Denials) bool {
	return hasAnyPhrase(tokens(norm), d.Words) || containsAny(norm, d.Phrases)
}
