package session

import "strings"

// Action is what a recognized utterance asks the conversation to do.
type Action int

const (
	ActionNone Action = iota
	ActionActivate
	ActionDeactivate
	ActionReset
)

func (a Action) String() string {
	switch a {
	case ActionActivate:
		return "activate"
	case ActionDeactivate:
		return "deactivate"
	case ActionReset:
		return "reset"
	default:
		return "none"
	}
}

// Command is the classifier's verdict on one final utterance.
type Command struct {
	Action Action
	// Phrase is the configured phrase that matched.
	Phrase string
	// Question is the text following the wake phrase, if any.
	Question string
}

// Classifier matches final utterances against the configured wake, stop
// and reset phrases. Matching is case-insensitive on whitespace-normalized
// text, and phrases match anywhere inside the utterance.
type Classifier struct {
	wake  string
	stop  []string
	reset []string
}

func NewClassifier(wake string, stop, reset []string) *Classifier {
	c := &Classifier{wake: normalize(wake)}
	for _, p := range stop {
		if p = normalize(p); p != "" {
			c.stop = append(c.stop, p)
		}
	}
	for _, p := range reset {
		if p = normalize(p); p != "" {
			c.reset = append(c.reset, p)
		}
	}
	return c
}

// Classify inspects one final utterance. Stop and reset phrases are only
// honored while the conversation is active; the wake phrase only while it
// is not. Anything else is ordinary speech.
func (c *Classifier) Classify(text string, active bool) Command {
	norm := normalize(text)
	if norm == "" {
		return Command{Action: ActionNone}
	}

	if active {
		for _, p := range c.stop {
			if strings.Contains(norm, p) {
				return Command{Action: ActionDeactivate, Phrase: p}
			}
		}
		for _, p := range c.reset {
			if strings.Contains(norm, p) {
				return Command{Action: ActionReset, Phrase: p}
			}
		}
		return Command{Action: ActionNone}
	}

	if c.wake != "" {
		if idx := strings.Index(norm, c.wake); idx >= 0 {
			question := strings.TrimSpace(norm[idx+len(c.wake):])
			return Command{Action: ActionActivate, Phrase: c.wake, Question: question}
		}
	}
	return Command{Action: ActionNone}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
