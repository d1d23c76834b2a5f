package consultation

// Assistant replies. Stage handlers assemble the dynamic parts around these.
const (
	replyWelcome = "Hello! I'm your MS Health Assistant. I can walk you through a short assessment " +
		"of your symptoms, tests, treatments and lifestyle. To get started, could you tell me your age and gender?"

	replyWelcomeBack = "Hello again! Would you like to continue where we left off? " +
		"Just answer the last question, or ask me what you've told me so far."

	replyHelp = "I can help you in several ways:\n" +
		"1. Assess your symptoms and summarise them\n" +
		"2. Note any diagnostic tests and treatments you've had\n" +
		"3. Suggest lifestyle and follow-up steps\n" +
		"4. Answer basic questions about MS\n\n" +
		"Would you like to start? If so, please share your age and gender."

	replyMSInfo = "Multiple sclerosis (MS) is a chronic disease of the central nervous system. " +
		"The immune system attacks the protective covering of nerve fibres, which disrupts communication " +
		"between the brain and the rest of the body. Would you like to start an assessment of your own situation?"

	askAgeAndGender = "To help you better, I need to know your age and gender. " +
		"For example: 'I am 35 years old and male' or just '35, male'."
	askAge    = "Thank you. Could you please tell me your age?"
	askGender = "Thank you. Could you please tell me your gender (male/female/other)?"

	askSymptoms = "Could you tell me about any symptoms you're experiencing? " +
		"For example: fatigue, numbness, memory problems, low mood or vision changes."
	symptomsIntro = "Thank you for providing your information. Now, could you tell me about any symptoms " +
		"you're experiencing? Please describe them in detail, such as fatigue, numbness or vision problems."

	askTests = "Have you had any diagnostic tests done, such as MRI scans, blood tests or a spinal tap? " +
		"If not, please say 'no' or 'none'."

	askTreatments = "Are you currently taking any medications or receiving treatment for MS or your symptoms? " +
		"If you're not taking any, please say 'none'."

	askLifestyle = "Could you tell me about your lifestyle? " +
		"For example your diet, your exercise routine and how you manage stress."

	replyFollowUp = "Is there anything specific about the analysis or recommendations you'd like me to explain further?"

	replyTrouble = "I'm having trouble understanding, please rephrase."
)

var symptomAcks = []struct {
	label string
	text  string
}{
	{"fatigue", "Fatigue is one of the most common MS symptoms and can be quite debilitating. "},
	{"numbness", "Numbness and tingling can be related to nerve damage. "},
	{"memory problems", "Memory changes are also common in MS. "},
	{"vision problems", "Even mild vision changes are worth noting. "},
	{"depression", "Mood changes can relate both to the physical symptoms and to the impact of MS on daily life. "},
}

var testAcks = map[string]struct {
	performed string
	byFinding map[string]string
}{
	"mri": {
		performed: "I see you've had an MRI scan. ",
		byFinding: map[string]string{
			"Lesions detected": "Lesions are an important finding in MS diagnosis. ",
			"Normal":           "A normal MRI is good news, though it doesn't completely rule out MS. ",
		},
	},
	"blood_tests": {
		performed: "You've also had blood tests done. ",
		byFinding: map[string]string{
			"Normal": "Normal blood results help rule out other conditions. ",
		},
	},
	"spinal_tap": {
		performed: "Spinal tap results can tell a lot about MS. ",
		byFinding: map[string]string{
			"Oligoclonal bands": "Oligoclonal bands support an MS diagnosis. ",
		},
	},
	"evoked_potentials": {
		performed: "Evoked potential tests show how quickly nerves carry signals. ",
		byFinding: map[string]string{
			"Delayed response": "A delayed response can point to demyelination. ",
		},
	},
}
