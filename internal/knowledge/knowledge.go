// Package knowledge holds the static lookup tables the intake engine matches
// free text against: symptom keywords, medications, diagnostic tests, lifestyle
// keywords and conversational phrases.
package knowledge

import (
	_ "embed"
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var defaultData []byte

type SymptomCategory string

const (
	Physical  SymptomCategory = "physical"
	Cognitive SymptomCategory = "cognitive"
	Emotional SymptomCategory = "emotional"
)

// SymptomCategories lists every symptom category in reporting order.
var SymptomCategories = []SymptomCategory{Physical, Cognitive, Emotional}

type LifestyleCategory string

const (
	Diet             LifestyleCategory = "diet"
	Exercise         LifestyleCategory = "exercise"
	StressManagement LifestyleCategory = "stress_management"
	// LifestyleGeneral is recorded when a reply names no specific category.
	LifestyleGeneral LifestyleCategory = "general"
)

// LifestyleCategories lists the keyword-driven categories in matching order.
// LifestyleGeneral is not part of it.
var LifestyleCategories = []LifestyleCategory{Diet, Exercise, StressManagement}

type Gender string

const (
	Male      Gender = "male"
	Female    Gender = "female"
	NonBinary Gender = "non-binary"
)

func (g Gender) Valid() bool {
	return g == Male || g == Female || g == NonBinary
}

func (c SymptomCategory) Valid() bool {
	return pie.Contains(SymptomCategories, c)
}

func (c LifestyleCategory) Valid() bool {
	return c == LifestyleGeneral || pie.Contains(LifestyleCategories, c)
}

type Label struct {
	Label    string   `yaml:"label" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
}

type GenderKeywords struct {
	Gender   Gender   `yaml:"gender" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
}

type Test struct {
	Key      string   `yaml:"key" validate:"required"`
	Name     string   `yaml:"name" validate:"required"`
	Aliases  []string `yaml:"aliases" validate:"required,min=1,dive,required"`
	Findings []Label  `yaml:"findings" validate:"dive"`
}

type Medication struct {
	Name    string   `yaml:"name" validate:"required"`
	Aliases []string `yaml:"aliases" validate:"required,min=1,dive,required"`
}

type Management struct {
	Symptom string   `yaml:"symptom" validate:"required"`
	Options []string `yaml:"options" validate:"required,min=1,dive,required"`
}

// Denials separates single-word denials, matched against whole words, from
// multi-word phrases matched against the normalized text.
type Denials struct {
	Words   []string `yaml:"words" validate:"required,min=1"`
	Phrases []string `yaml:"phrases"`
}

type Phrases struct {
	Greeting []string `yaml:"greeting" validate:"required,min=1"`
	Info     []string `yaml:"info" validate:"required,min=1"`
	Help     []string `yaml:"help" validate:"required,min=1"`
}

type Recall struct {
	Symptoms   []string `yaml:"symptoms" validate:"required,min=1"`
	Tests      []string `yaml:"tests" validate:"required,min=1"`
	Treatments []string `yaml:"treatments" validate:"required,min=1"`
	Lifestyle  []string `yaml:"lifestyle" validate:"required,min=1"`
	All        []string `yaml:"all" validate:"required,min=1"`
}

// Base is the parsed knowledge document. It is shared between sessions and
// must be treated as read-only once loaded.
type Base struct {
	Gender               []GenderKeywords               `yaml:"gender" validate:"required,min=1,dive"`
	Symptoms             map[SymptomCategory][]Label    `yaml:"symptoms" validate:"required,min=1,dive,min=1,dive"`
	SymptomManagement    []Management                   `yaml:"symptom_management" validate:"dive"`
	DiagnosticTests      []Test                         `yaml:"diagnostic_tests" validate:"required,min=1,dive"`
	DefaultFinding       string                         `yaml:"default_finding" validate:"required"`
	TestDenials          Denials                        `yaml:"test_denials"`
	Medications          []Medication                   `yaml:"medications" validate:"required,min=1,dive"`
	TreatmentTerms       []string                       `yaml:"treatment_terms" validate:"required,min=1"`
	TreatmentPastMarkers []string                       `yaml:"treatment_past_markers" validate:"required,min=1"`
	TreatmentDenials     Denials                        `yaml:"treatment_denials"`
	Lifestyle            map[LifestyleCategory][]string `yaml:"lifestyle" validate:"required,min=1,dive,min=1"`
	Phrases              Phrases                        `yaml:"phrases"`
	Recall               Recall                         `yaml:"recall"`
}

// Test returns the diagnostic test registered under key.
func (b *Base) Test(key string) (Test, bool) {
	idx := pie.FindFirstUsing(b.DiagnosticTests, func(t Test) bool {
		return t.Key == key
	})
	if idx < 0 {
		return Test{}, false
	}
	return b.DiagnosticTests[idx], true
}

// ManagementFor returns the treatment options known for a symptom label.
func (b *Base) ManagementFor(symptom string) ([]string, bool) {
	idx := pie.FindFirstUsing(b.SymptomManagement, func(m Management) bool {
		return m.Symptom == symptom
	})
	if idx < 0 {
		return nil, false
	}
	return b.SymptomManagement[idx].Options, true
}

// Parse decodes and validates a knowledge document.
func Parse(data []byte) (*Base, error) {
	errb := oops.In("knowledge")

	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, errb.Wrapf(err, "failed to parse knowledge YAML")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(b); err != nil {
		return nil, errb.Wrapf(err, "failed to validate knowledge base")
	}

	if err := b.check(); err != nil {
		return nil, errb.Wrap(err)
	}

	return &b, nil
}

// check enforces the constraints struct tags cannot express: every category
// key belongs to its enum and test keys are unique.
func (b *Base) check() error {
	for _, g := range b.Gender {
		if !g.Gender.Valid() {
			return oops.With("gender", g.Gender).Errorf("unknown gender")
		}
	}
	for c := range b.Symptoms {
		if !c.Valid() {
			return oops.With("category", c).Errorf("unknown symptom category")
		}
	}
	for c := range b.Lifestyle {
		if !c.Valid() || c == LifestyleGeneral {
			return oops.With("category", c).Errorf("unknown lifestyle category")
		}
	}

	seen := make(map[string]struct{}, len(b.DiagnosticTests))
	for _, t := range b.DiagnosticTests {
		if t.Key == NoTestsKey {
			return oops.With("key", t.Key).Errorf("reserved diagnostic test key")
		}
		if _, ok := seen[t.Key]; ok {
			return oops.With("key", t.Key).Errorf("duplicate diagnostic test key")
		}
		seen[t.Key] = struct{}{}
	}

	return nil
}

// NoTestsKey is the diagnostic test key recording an explicit "no tests taken".
const NoTestsKey = "none"

var loadDefault = sync.OnceValues(func() (*Base, error) {
	return Parse(defaultData)
})

// Default returns the embedded knowledge base, parsing it on first use.
func Default() (*Base, error) {
	return loadDefault()
}
