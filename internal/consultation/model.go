package consultation

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"ms-health-assistant/internal/knowledge"

	"github.com/google/uuid"
)

type Stage uint8

const (
	StageInitial Stage = iota
	StageDemographics
	StageSymptoms
	StageDiagnosticTests
	StageTreatments
	StageLifestyle
	StageAnalysis

	stageCount
)

var stageNames = [stageCount]string{
	StageInitial:         "initial",
	StageDemographics:    "demographics",
	StageSymptoms:        "symptoms",
	StageDiagnosticTests: "diagnostic_tests",
	StageTreatments:      "treatments",
	StageLifestyle:       "lifestyle",
	StageAnalysis:        "analysis",
}

func (s Stage) Valid() bool {
	return s < stageCount
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
	return stageNames[s]
}

func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", uint8(s))
	}
	return []byte(stageNames[s]), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	parsed, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Demographics struct {
	Age    int              `json:"age,omitempty"`
	Gender knowledge.Gender `json:"gender,omitempty"`
}

type TestRecord struct {
	Name     string   `json:"name"`
	Findings []string `json:"findings"`
}

// NoTreatment in Treatments.Current records that the user takes nothing.
const NoTreatment = "None"

type Treatments struct {
	Current []string `json:"current,omitempty"`
	Past    []string `json:"past,omitempty"`
}

// State is everything collected during one consultation. The engine works on
// a transient copy per turn and writes it back through the Repository.
type State struct {
	Stage           Stage                                    `json:"stage"`
	Demographics    Demographics                             `json:"demographics"`
	Symptoms        map[knowledge.SymptomCategory][]string   `json:"symptoms"`
	DiagnosticTests map[string]TestRecord                    `json:"diagnostic_tests"`
	Treatments      Treatments                               `json:"treatments"`
	Lifestyle       map[knowledge.LifestyleCategory][]string `json:"lifestyle"`
	Transcript      []Message                                `json:"transcript"`
	Title           string                                   `json:"title"`

	AnalysisComplete bool   `json:"analysis_complete"`
	Analysis         string `json:"analysis,omitempty"`
	Recommendations  string `json:"recommendations,omitempty"`
}

func NewState() *State {
	return &State{
		Stage:           StageInitial,
		Symptoms:        map[knowledge.SymptomCategory][]string{},
		DiagnosticTests: map[string]TestRecord{},
		Lifestyle:       map[knowledge.LifestyleCategory][]string{},
		Transcript:      []Message{},
		Title:           DefaultTitle,
	}
}

// Clone returns a deep copy that shares no slices or maps with st.
func (st *State) Clone() *State {
	c := *st
	c.Symptoms = cloneLists(st.Symptoms)
	c.Lifestyle = cloneLists(st.Lifestyle)
	if st.DiagnosticTests != nil {
		c.DiagnosticTests = make(map[string]TestRecord, len(st.DiagnosticTests))
		for k, v := range st.DiagnosticTests {
			v.Findings = slices.Clone(v.Findings)
			c.DiagnosticTests[k] = v
		}
	}
	c.Treatments.Current = slices.Clone(st.Treatments.Current)
	c.Treatments.Past = slices.Clone(st.Treatments.Past)
	c.Transcript = slices.Clone(st.Transcript)
	return &c
}

func cloneLists[K comparable](m map[K][]string) map[K][]string {
	if m == nil {
		return nil
	}
	out := make(map[K][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func (st *State) SymptomCount() int {
	n := 0
	for _, v := range st.Symptoms {
		n += len(v)
	}
	return n
}

// HasTests reports whether at least one real diagnostic test is recorded.
func (st *State) HasTests() bool {
	for k := range st.DiagnosticTests {
		if k != knowledge.NoTestsKey {
			return true
		}
	}
	return false
}

// HasCurrentTreatment reports whether a real current treatment is recorded.
func (st *State) HasCurrentTreatment() bool {
	return slices.ContainsFunc(st.Treatments.Current, func(t string) bool {
		return t != NoTreatment
	})
}

// TestKeys returns the recorded test keys in a stable order.
func (st *State) TestKeys() []string {
	return slices.Sorted(maps.Keys(st.DiagnosticTests))
}

// Validate checks the structural invariants of a decoded state. kb, when not
// nil, restricts diagnostic test keys to the ones it knows.
func (st *State) Validate(kb *knowledge.Base) error {
	var errs []error

	if !st.Stage.Valid() {
		errs = append(errs, fmt.Errorf("invalid stage %d", uint8(st.Stage)))
	}
	if a := st.Demographics.Age; a != 0 && (a < 1 || a > 120) {
		errs = append(errs, fmt.Errorf("age %d out of range", a))
	}
	if g := st.Demographics.Gender; g != "" && !g.Valid() {
		errs = append(errs, fmt.Errorf("unknown gender %q", g))
	}
	for c := range st.Symptoms {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("unknown symptom category %q", c))
		}
	}
	for c := range st.Lifestyle {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("unknown lifestyle category %q", c))
		}
	}
	for k := range st.DiagnosticTests {
		if k == knowledge.NoTestsKey || kb == nil {
			continue
		}
		if _, ok := kb.Test(k); !ok {
			errs = append(errs, fmt.Errorf("unknown diagnostic test %q", k))
		}
	}
	for i, m := range st.Transcript {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			errs = append(errs, fmt.Errorf("transcript entry %d has role %q", i, m.Role))
		}
	}
	hasReport := st.Analysis != "" && st.Recommendations != ""
	hasAnyText := st.Analysis != "" || st.Recommendations != ""
	if st.AnalysisComplete && !hasReport || !st.AnalysisComplete && hasAnyText {
		errs = append(errs, errors.New("analysis text does not match completion flag"))
	}

	return errors.Join(errs...)
}

func (st *State) Encode() ([]byte, error) {
	return json.Marshal(st)
}

// DecodeState parses a stored state. An empty document yields a fresh state.
func DecodeState(data []byte) (*State, error) {
	st := NewState()
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}

	if st.Symptoms == nil {
		st.Symptoms = map[knowledge.SymptomCategory][]string{}
	}
	if st.DiagnosticTests == nil {
		st.DiagnosticTests = map[string]TestRecord{}
	}
	if st.Lifestyle == nil {
		st.Lifestyle = map[knowledge.LifestyleCategory][]string{}
	}
	if st.Transcript == nil {
		st.Transcript = []Message{}
	}
	return st, nil
}

// Session is the stored envelope around a State. Title, Stage and
// AnalysisComplete duplicate state fields so sessions can be listed without
// decoding every state.
type Session struct {
	ID               uuid.UUID       `json:"id"`
	UserID           string          `json:"user_id"`
	Title            string          `json:"title"`
	Stage            Stage           `json:"stage"`
	AnalysisComplete bool            `json:"analysis_complete"`
	State            json.RawMessage `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type SessionDetail struct {
	Session
	State *State `json:"state"`
}

type Report struct {
	SessionID       uuid.UUID `json:"session_id"`
	Analysis        string    `json:"analysis"`
	Recommendations string    `json:"recommendations"`
}

type TurnRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
	UserID    string `json:"user_id" validate:"required,max=320"`
	Message   string `json:"message" validate:"max=4000,utf8"`
}

type TurnResult struct {
	Reply            string    `json:"response"`
	SessionID        uuid.UUID `json:"session_id"`
	Title            string    `json:"title"`
	Stage            Stage     `json:"stage"`
	AnalysisComplete bool      `json:"analysis_complete"`
}
