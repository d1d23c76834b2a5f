package report

import (
	"fmt"
	"strings"

	"ms-health-assistant/internal/consultation"
	"ms-health-assistant/internal/knowledge"
)

// Generator writes the rule-based analysis and recommendations. Output
// depends only on the state, so generating twice gives identical text.
type Generator struct {
	kb *knowledge.Base
}

func NewGenerator(kb *knowledge.Base) *Generator {
	return &Generator{kb: kb}
}

func (g *Generator) Analysis(st *consultation.State) string {
	var b strings.Builder
	b.WriteString("Based on the information provided, here's my analysis:\n\n")

	d := st.Demographics
	if d.Age != 0 || d.Gender != "" {
		b.WriteString("Patient Profile:\n")
		if d.Age != 0 {
			fmt.Fprintf(&b, "- Age: %d\n", d.Age)
		}
		if d.Gender != "" {
			fmt.Fprintf(&b, "- Gender: %s\n", capitalize(string(d.Gender)))
		}
		b.WriteString("\n")
	}

	if st.SymptomCount() > 0 {
		b.WriteString("Symptom Analysis:\n")
		for _, cat := range knowledge.SymptomCategories {
			if list := st.Symptoms[cat]; len(list) > 0 {
				fmt.Fprintf(&b, "- %s symptoms: %s\n", capitalize(string(cat)), strings.Join(list, ", "))
			}
		}
		b.WriteString("\n")
	}

	if len(st.DiagnosticTests) > 0 {
		b.WriteString("Diagnostic Information:\n")
		for _, key := range st.TestKeys() {
			if key == knowledge.NoTestsKey {
				b.WriteString("- No diagnostic tests performed yet\n")
				continue
			}
			t := st.DiagnosticTests[key]
			findings := "Performed"
			if len(t.Findings) > 0 {
				findings = strings.Join(t.Findings, ", ")
			}
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, findings)
		}
		b.WriteString("\n")
	}

	tr := st.Treatments
	if len(tr.Current) > 0 || len(tr.Past) > 0 {
		b.WriteString("Treatment Status:\n")
		switch {
		case st.HasCurrentTreatment():
			fmt.Fprintf(&b, "- Current treatments: %s\n", strings.Join(tr.Current, ", "))
		case len(tr.Current) > 0:
			b.WriteString("- No current treatments\n")
		}
		if len(tr.Past) > 0 {
			fmt.Fprintf(&b, "- Past treatments: %s\n", strings.Join(tr.Past, ", "))
		}
		b.WriteString("\n")
	}

	return b.String()
}

var categoryAdvice = map[knowledge.SymptomCategory]string{
	knowledge.Physical:  "- For physical symptoms: Consider physical therapy and regular low-impact exercise\n",
	knowledge.Cognitive: "- For cognitive symptoms: Practice mental exercises and consider cognitive rehabilitation\n",
	knowledge.Emotional: "- For emotional symptoms: Consider counseling or therapy support\n",
}

func (g *Generator) Recommendations(st *consultation.State) string {
	var b strings.Builder

	b.WriteString("1. Schedule regular follow-ups with a neurologist specializing in MS\n")
	b.WriteString("2. Keep a detailed symptom diary to track changes over time\n")
	b.WriteString("3. Consider joining an MS support group for emotional support\n")

	if st.SymptomCount() > 0 {
		b.WriteString("\nSymptom-specific recommendations:\n")
		for _, cat := range knowledge.SymptomCategories {
			if len(st.Symptoms[cat]) > 0 {
				b.WriteString(categoryAdvice[cat])
			}
		}
		for _, cat := range knowledge.SymptomCategories {
			for _, symptom := range st.Symptoms[cat] {
				if opts, ok := g.kb.ManagementFor(symptom); ok {
					fmt.Fprintf(&b, "- Options to discuss for %s: %s\n", symptom, strings.Join(opts, ", "))
				}
			}
		}
	}

	if !st.HasTests() {
		b.WriteString("\nDiagnostic recommendations:\n")
		b.WriteString("- Consider getting an MRI scan to evaluate for MS lesions\n")
		b.WriteString("- Blood tests to rule out other conditions\n")
		b.WriteString("- Consultation with a neurologist for comprehensive evaluation\n")
	}

	if !st.HasCurrentTreatment() {
		b.WriteString("\nTreatment considerations:\n")
		b.WriteString("- Discuss disease-modifying therapies with your neurologist\n")
		b.WriteString("- Consider symptom management strategies\n")
	}

	b.WriteString("\nLifestyle recommendations:\n")
	b.WriteString("- Maintain a healthy, anti-inflammatory diet\n")
	b.WriteString("- Regular exercise as tolerated\n")
	b.WriteString("- Stress management techniques (meditation, yoga)\n")
	b.WriteString("- Adequate sleep and rest\n")
	b.WriteString("- Vitamin D supplementation (consult with doctor)\n")

	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
