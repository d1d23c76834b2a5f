package consultation

import (
	"fmt"
	"strings"

	"ms-health-assistant/internal/extract"
	"ms-health-assistant/internal/knowledge"
)

// recap answers "what did I tell you" questions from the collected facts
// without touching the state.
func recap(st *State, topic extract.Topic) string {
	switch topic {
	case extract.TopicSymptoms:
		if body := symptomsRecap(st); body != "" {
			return "Here are the symptoms you've mentioned so far:\n" + body + "\nAre you experiencing any other symptoms?"
		}
		return "You haven't mentioned any symptoms yet. " + askSymptoms
	case extract.TopicTests:
		if body := testsRecap(st); body != "" {
			return "Here are the tests you've mentioned so far:\n" + body
		}
		return "You haven't mentioned any tests yet. " + askTests
	case extract.TopicTreatments:
		if body := treatmentsRecap(st); body != "" {
			return "Here are the treatments you've mentioned so far:\n" + body
		}
		return "You haven't mentioned any treatments yet. " + askTreatments
	case extract.TopicLifestyle:
		if body := lifestyleRecap(st); body != "" {
			return "Here's what you've told me about your lifestyle:\n" + body
		}
		return "You haven't shared any lifestyle details yet. " + askLifestyle
	default:
		return fullRecap(st)
	}
}

func fullRecap(st *State) string {
	sections := []struct {
		title string
		body  string
	}{
		{"About you", demographicsRecap(st)},
		{"Symptoms", symptomsRecap(st)},
		{"Diagnostic tests", testsRecap(st)},
		{"Treatments", treatmentsRecap(st)},
		{"Lifestyle", lifestyleRecap(st)},
	}

	var b strings.Builder
	for _, sec := range sections {
		if sec.body == "" {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n%s", sec.title, sec.body)
	}
	if b.Len() == 0 {
		return "You haven't told me anything yet. " + clarify(st)
	}
	return "Here's what you've told me so far:\n" + b.String()
}

func demographicsRecap(st *State) string {
	var b strings.Builder
	if st.Demographics.Age != 0 {
		fmt.Fprintf(&b, "- Age: %d\n", st.Demographics.Age)
	}
	if st.Demographics.Gender != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", st.Demographics.Gender)
	}
	return b.String()
}

func symptomsRecap(st *State) string {
	var b strings.Builder
	for _, cat := range knowledge.SymptomCategories {
		if len(st.Symptoms[cat]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s symptoms:\n", titleCase(string(cat)))
		for _, s := range st.Symptoms[cat] {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

func testsRecap(st *State) string {
	var b strings.Builder
	for _, key := range st.TestKeys() {
		if key == knowledge.NoTestsKey {
			continue
		}
		t := st.DiagnosticTests[key]
		findings := "Performed"
		if len(t.Findings) > 0 {
			findings = strings.Join(t.Findings, ", ")
		}
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, findings)
	}
	if b.Len() == 0 && len(st.DiagnosticTests) > 0 {
		return "- No diagnostic tests performed yet\n"
	}
	return b.String()
}

func treatmentsRecap(st *State) string {
	var b strings.Builder
	if st.HasCurrentTreatment() {
		b.WriteString("\nCurrent treatments:\n")
		for _, t := range st.Treatments.Current {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	} else if len(st.Treatments.Current) > 0 {
		b.WriteString("- No current treatments\n")
	}
	if len(st.Treatments.Past) > 0 {
		b.WriteString("\nPast treatments:\n")
		for _, t := range st.Treatments.Past {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return b.String()
}

func lifestyleRecap(st *State) string {
	var b strings.Builder
	for _, cat := range knowledge.LifestyleCategories {
		if len(st.Lifestyle[cat]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", titleCase(strings.ReplaceAll(string(cat), "_", " ")))
		for _, note := range st.Lifestyle[cat] {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}
	if b.Len() == 0 && len(st.Lifestyle[knowledge.LifestyleGeneral]) > 0 {
		return "- Nothing specific beyond a basic lifestyle\n"
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
