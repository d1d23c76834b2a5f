package consultation

import (
	"fmt"
	"log/slog"
	"strings"

	"ms-health-assistant/internal/extract"
	"ms-health-assistant/internal/knowledge"

	"github.com/elliotchance/pie/v2"
)

// stageHandler consumes one user message for the state's current stage,
// merges what it extracted and returns the assistant reply.
type stageHandler func(s *service, st *State, text string) (string, error)

var stageHandlers = [stageCount]stageHandler{
	StageInitial:         (*service).handleInitial,
	StageDemographics:    (*service).handleDemographics,
	StageSymptoms:        (*service).handleSymptoms,
	StageDiagnosticTests: (*service).handleDiagnosticTests,
	StageTreatments:      (*service).handleTreatments,
	StageLifestyle:       (*service).handleLifestyle,
	StageAnalysis:        (*service).handleAnalysis,
}

// respond runs one turn against st. Any handler error or panic restores st to
// its state before the turn and yields a generic clarification.
func (s *service) respond(st *State, text string) (reply string) {
	snapshot := st.Clone()

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Stage handler panicked",
				slog.String("stage", snapshot.Stage.String()),
				slog.Any("panic", r),
			)
			*st = *snapshot
			reply = replyTrouble
		}
	}()

	if strings.TrimSpace(text) == "" {
		return clarify(st)
	}

	if topic := s.ex.Recall(text); topic != extract.TopicNone {
		return recap(st, topic)
	}

	var err error
	if st.Stage.Valid() {
		reply, err = stageHandlers[st.Stage](s, st, text)
	} else {
		err = fmt.Errorf("%w: no handler for %s", ErrExtraction, st.Stage)
	}
	if err != nil {
		slog.Warn("Stage handler failed",
			slog.String("stage", snapshot.Stage.String()),
			slog.Any("error", err),
		)
		*st = *snapshot
		return replyTrouble
	}

	return reply
}

// clarify repeats the question for whatever the current stage still needs.
func clarify(st *State) string {
	switch st.Stage {
	case StageInitial:
		if st.AnalysisComplete {
			return replyFollowUp
		}
		return replyWelcome
	case StageDemographics:
		return demographicsPrompt(st.Demographics)
	case StageSymptoms:
		return askSymptoms
	case StageDiagnosticTests:
		return askTests
	case StageTreatments:
		return askTreatments
	case StageLifestyle:
		return askLifestyle
	default:
		return replyFollowUp
	}
}

func (s *service) handleInitial(st *State, text string) (string, error) {
	if st.AnalysisComplete {
		return s.handleAnalysis(st, text)
	}

	d := s.ex.Demographics(text)
	if d.Age == 0 && d.Gender == "" {
		switch s.ex.Intent(text) {
		case extract.IntentGreeting:
			if len(st.Transcript) > 0 {
				return replyWelcomeBack, nil
			}
			return replyWelcome, nil
		case extract.IntentHelp:
			return replyHelp, nil
		case extract.IntentInfo:
			return replyMSInfo, nil
		}
	}

	st.Stage = StageDemographics
	return s.handleDemographics(st, text)
}

func (s *service) handleDemographics(st *State, text string) (string, error) {
	d := s.ex.Demographics(text)
	if st.Demographics.Age == 0 && d.Age != 0 {
		st.Demographics.Age = d.Age
	}
	if st.Demographics.Gender == "" && d.Gender != "" {
		st.Demographics.Gender = d.Gender
	}

	if st.Demographics.Age == 0 || st.Demographics.Gender == "" {
		return demographicsPrompt(st.Demographics), nil
	}

	st.Stage = StageSymptoms
	return symptomsIntro, nil
}

func demographicsPrompt(d Demographics) string {
	switch {
	case d.Age == 0 && d.Gender == "":
		return askAgeAndGender
	case d.Age == 0:
		return askAge
	case d.Gender == "":
		return askGender
	default:
		return askSymptoms
	}
}

func (s *service) handleSymptoms(st *State, text string) (string, error) {
	found := s.ex.Symptoms(text)
	for _, cat := range knowledge.SymptomCategories {
		if len(found[cat]) > 0 {
			st.Symptoms[cat] = appendUnique(st.Symptoms[cat], found[cat]...)
		}
	}

	if st.SymptomCount() == 0 {
		return askSymptoms, nil
	}

	var b strings.Builder
	b.WriteString("Thank you for sharing these symptoms. ")
	for _, ack := range symptomAcks {
		if hasLabel(found, ack.label) {
			b.WriteString(ack.text)
		}
	}

	st.Stage = StageDiagnosticTests
	b.WriteString("\n\nBased on what you've described, it would help to know about any diagnostic tests. ")
	b.WriteString(askTests)
	return b.String(), nil
}

func hasLabel(found map[knowledge.SymptomCategory][]string, label string) bool {
	for _, labels := range found {
		if pie.Contains(labels, label) {
			return true
		}
	}
	return false
}

func (s *service) handleDiagnosticTests(st *State, text string) (string, error) {
	res := s.ex.Tests(text)
	for _, t := range res.Found {
		if _, ok := st.DiagnosticTests[t.Key]; ok {
			continue
		}
		st.DiagnosticTests[t.Key] = TestRecord{Name: t.Name, Findings: t.Findings}
	}

	switch {
	case st.HasTests():
		delete(st.DiagnosticTests, knowledge.NoTestsKey)
	case res.Denied:
		st.DiagnosticTests[knowledge.NoTestsKey] = TestRecord{Name: "No tests performed", Findings: []string{}}
		st.Stage = StageTreatments
		return "I understand you haven't had diagnostic tests yet. That's okay. " + askTreatments, nil
	default:
		return askTests, nil
	}

	var b strings.Builder
	b.WriteString("Thank you for sharing your test information. ")
	for _, key := range st.TestKeys() {
		ack, ok := testAcks[key]
		if !ok {
			continue
		}
		b.WriteString(ack.performed)
		for _, f := range st.DiagnosticTests[key].Findings {
			b.WriteString(ack.byFinding[f])
		}
	}

	st.Stage = StageTreatments
	b.WriteString("\n\n")
	b.WriteString(askTreatments)
	return b.String(), nil
}

func (s *service) handleTreatments(st *State, text string) (string, error) {
	res := s.ex.Treatments(text)

	if len(res.Current) > 0 {
		current := pie.Filter(st.Treatments.Current, func(t string) bool { return t != NoTreatment })
		st.Treatments.Current = appendUnique(current, res.Current...)
	}
	if len(res.Past) > 0 {
		st.Treatments.Past = appendUnique(st.Treatments.Past, res.Past...)
	}
	if res.Denied && len(st.Treatments.Current) == 0 {
		st.Treatments.Current = []string{NoTreatment}
	}

	if len(st.Treatments.Current) == 0 && len(st.Treatments.Past) == 0 {
		return askTreatments, nil
	}

	var b strings.Builder
	b.WriteString("Thank you for the treatment information. ")
	switch {
	case st.HasCurrentTreatment():
		b.WriteString("I see you're currently taking " + strings.Join(st.Treatments.Current, ", ") + ". ")
	case pie.Contains(st.Treatments.Current, NoTreatment):
		b.WriteString("I understand you're not currently taking any medications. ")
	}
	if len(st.Treatments.Past) > 0 {
		b.WriteString("I've also noted your past treatments: " + strings.Join(st.Treatments.Past, ", ") + ". ")
	}

	st.Stage = StageLifestyle
	b.WriteString("\n\nNow, ")
	b.WriteString(strings.ToLower(askLifestyle[:1]) + askLifestyle[1:])
	return b.String(), nil
}

func (s *service) handleLifestyle(st *State, text string) (string, error) {
	notes := s.ex.Lifestyle(text)
	for cat, list := range notes {
		st.Lifestyle[cat] = appendUnique(st.Lifestyle[cat], list...)
	}

	if len(st.Lifestyle) == 0 {
		return askLifestyle, nil
	}

	var b strings.Builder
	b.WriteString("Thank you for sharing your lifestyle information. ")
	if len(st.Lifestyle[knowledge.Diet]) > 0 {
		b.WriteString("I've noted what you said about your diet. ")
	}
	if len(st.Lifestyle[knowledge.Exercise]) > 0 {
		b.WriteString("You've also mentioned your exercise routine. ")
	}
	if len(st.Lifestyle[knowledge.StressManagement]) > 0 {
		b.WriteString("And you've told me how you manage stress. ")
	}

	st.Stage = StageAnalysis
	s.completeAnalysis(st)

	b.WriteString("\n\n")
	b.WriteString(st.Analysis)
	b.WriteString("\nRecommendations:\n")
	b.WriteString(st.Recommendations)
	return b.String(), nil
}

func (s *service) handleAnalysis(st *State, _ string) (string, error) {
	s.completeAnalysis(st)
	return replyFollowUp, nil
}

// completeAnalysis fills in the analysis and recommendations once. It reports
// whether this call produced them.
func (s *service) completeAnalysis(st *State) bool {
	if st.AnalysisComplete {
		return false
	}
	st.Analysis = s.gen.Analysis(st)
	st.Recommendations = s.gen.Recommendations(st)
	st.AnalysisComplete = true
	return true
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !pie.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
