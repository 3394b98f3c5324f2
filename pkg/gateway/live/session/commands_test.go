package session

import "testing"

func testClassifier() *Classifier {
	return NewClassifier(
		"hola alma",
		[]string{"gracias alma", "detente alma", "adiós alma", "hasta luego alma", "para alma"},
		[]string{"nueva conversación", "empezar de nuevo"},
	)
}

func TestClassify(t *testing.T) {
	c := testClassifier()

	cases := []struct {
		name     string
		text     string
		active   bool
		action   Action
		question string
	}{
		{"wake alone", "hola alma", false, ActionActivate, ""},
		{"wake with question", "hola alma qué hora es", false, ActionActivate, "qué hora es"},
		{"wake mid utterance", "oye hola alma dime algo", false, ActionActivate, "dime algo"},
		{"wake case and spacing", "  HOLA   Alma  ", false, ActionActivate, ""},
		{"wake ignored while active", "hola alma", true, ActionNone, ""},
		{"stop while active", "gracias alma", true, ActionDeactivate, ""},
		{"stop mid utterance", "bueno gracias alma por todo", true, ActionDeactivate, ""},
		{"stop ignored while idle", "gracias alma", false, ActionNone, ""},
		{"reset while active", "nueva conversación por favor", true, ActionReset, ""},
		{"reset ignored while idle", "empezar de nuevo", false, ActionNone, ""},
		{"plain speech active", "cuéntame un cuento", true, ActionNone, ""},
		{"plain speech idle", "cuéntame un cuento", false, ActionNone, ""},
		{"empty", "   ", true, ActionNone, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := c.Classify(tc.text, tc.active)
			if cmd.Action != tc.action {
				t.Fatalf("action = %v, want %v", cmd.Action, tc.action)
			}
			if cmd.Question != tc.question {
				t.Fatalf("question = %q, want %q", cmd.Question, tc.question)
			}
		})
	}
}

func TestClassifyReportsMatchedPhrase(t *testing.T) {
	c := testClassifier()
	cmd := c.Classify("bueno detente alma ya", true)
	if cmd.Action != ActionDeactivate || cmd.Phrase != "detente alma" {
		t.Fatalf("got %+v, want deactivate on detente alma", cmd)
	}
}
