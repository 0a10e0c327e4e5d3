// Package wizard implements the commitment design state machine: the
// step-by-step dialogue that turns free-text answers into a sealed
// contract draft.
//
// Step handlers are pure functions of (step, draft, input). Asynchronous
// concerns — running the roulette, persisting, arming the notification
// engine — are side effects owned by the caller, which feeds a roulette
// result back in as if the user had typed it.
package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Step identifies the wizard's current question.
type Step string

const (
	// StepMission collects the first lineage segment.
	StepMission Step = "mission"
	// StepRefine collects zero or more refinement layers.
	StepRefine Step = "refine"
	// StepStart collects the start time of day.
	StepStart Step = "start"
	// StepDuration collects the optional duration label.
	StepDuration Step = "duration"
)

// Mode distinguishes free conversation from an active design session.
type Mode string

const (
	// ModeFree means no design session is active.
	ModeFree Mode = "free"
	// ModeDesigning means the wizard owns the conversation.
	ModeDesigning Mode = "designing"
)

// Reserved control tokens. These are never treated as candidate values.
const (
	TokenDone   = "done"
	TokenReady  = "ready"
	TokenUndo   = "undo"
	TokenNone   = "none"
	TokenCancel = "cancel"
)

// Draft is a partially built contract.
type Draft struct {
	Mission       string
	Refinements   []string
	StartRaw      string
	DurationLabel string
}

// Lineage returns the mission followed by its refinement layers.
func (d Draft) Lineage() []string {
	if d.Mission == "" {
		return nil
	}
	lineage := make([]string, 0, 1+len(d.Refinements))
	lineage = append(lineage, d.Mission)
	lineage = append(lineage, d.Refinements...)
	return lineage
}

func (d Draft) lineageText() string {
	return strings.Join(d.Lineage(), " -> ")
}

// Session is the single active design session. Zero value is a free-mode
// session.
type Session struct {
	Mode     Mode
	Step     Step
	Draft    Draft
	Spinning bool
}

// NewSession returns a session in free mode.
func NewSession() Session {
	return Session{Mode: ModeFree}
}

// Begin starts a fresh design session with an empty draft.
func (s *Session) Begin() {
	s.Mode = ModeDesigning
	s.Step = StepMission
	s.Draft = Draft{}
	s.Spinning = false
}

// Reset returns the session to free mode, discarding the draft.
func (s *Session) Reset() {
	*s = Session{Mode: ModeFree}
}

// EntryPrompt is the reply sent when a design session opens.
const EntryPrompt = "Understood. Entering design mode.\n\n" +
	"Step 1: the mission.\n" +
	"Give me the option or options for the first roulette, separated by commas."

// Outcome is the result of advancing the state machine by one input.
// Exactly one of the following holds: Spin is non-nil (defer to the
// roulette and re-enter the same step with its result), Seal is true
// (the draft is complete), Cancelled is true (the session is aborted),
// or the machine simply moved to Next with Reply as the guardian's line.
type Outcome struct {
	Next      Step
	Draft     Draft
	Reply     string
	Spin      []string
	Seal      bool
	Cancelled bool
}

// Candidates splits raw input on commas, trims whitespace, and drops
// empty entries.
func Candidates(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// isReserved reports whether a single token is one of the control tokens.
func isReserved(token string) bool {
	switch strings.ToLower(token) {
	case TokenDone, TokenReady, TokenUndo, TokenNone, TokenCancel:
		return true
	}
	return false
}

// Advance processes one user input for the given step. Multi-candidate
// input yields an Outcome with Spin set; the caller resolves it and calls
// Advance again with the single winning string.
func Advance(step Step, draft Draft, input string) Outcome {
	candidates := Candidates(input)

	if len(candidates) == 0 {
		return Outcome{Next: step, Draft: draft, Reply: rePrompt(step)}
	}
	if len(candidates) > 1 {
		return Outcome{Next: step, Draft: draft, Spin: candidates}
	}

	token := candidates[0]
	if strings.EqualFold(token, TokenCancel) {
		return Outcome{Draft: Draft{}, Cancelled: true,
			Reply: "Design mode cancelled. Back to normal conversation."}
	}

	switch step {
	case StepMission:
		return advanceMission(draft, token)
	case StepRefine:
		return advanceRefine(draft, token)
	case StepStart:
		return advanceStart(draft, token)
	case StepDuration:
		return advanceDuration(draft, token)
	default:
		return Outcome{Next: step, Draft: draft, Reply: rePrompt(step)}
	}
}

func advanceMission(draft Draft, token string) Outcome {
	if isReserved(token) {
		return Outcome{Next: StepMission, Draft: draft, Reply: rePrompt(StepMission)}
	}
	draft.Mission = token
	return Outcome{
		Next:  StepRefine,
		Draft: draft,
		Reply: fmt.Sprintf("Main mission: %s.\n\n"+
			"Next step: add a refinement? Enter options for the roulette, "+
			"or type 'done' to continue.", token),
	}
}

func advanceRefine(draft Draft, token string) Outcome {
	switch strings.ToLower(token) {
	case TokenDone, TokenReady:
		return Outcome{
			Next:  StepStart,
			Draft: draft,
			Reply: "Refinements complete.\n\n" +
				"Start time: tell me the start time or possible start times (e.g. 14:00, 15:00).",
		}
	case TokenUndo:
		if n := len(draft.Refinements); n > 0 {
			draft.Refinements = draft.Refinements[:n-1]
		}
		return Outcome{
			Next:  StepRefine,
			Draft: draft,
			Reply: fmt.Sprintf("Last layer removed. Current: %s.\n\n"+
				"Another layer? Options, 'done' or 'cancel'?", draft.lineageText()),
		}
	case TokenNone:
		return Outcome{Next: StepRefine, Draft: draft, Reply: rePrompt(StepRefine)}
	}

	draft.Refinements = append(draft.Refinements, token)
	return Outcome{
		Next:  StepRefine,
		Draft: draft,
		Reply: fmt.Sprintf("Got it: %s.\n\n"+
			"Another layer? Options, 'done' or 'cancel'?", draft.lineageText()),
	}
}

func advanceStart(draft Draft, token string) Outcome {
	if isReserved(token) {
		return Outcome{Next: StepStart, Draft: draft, Reply: rePrompt(StepStart)}
	}
	if _, _, err := ParseStartTime(token); err != nil {
		return Outcome{
			Next:  StepStart,
			Draft: draft,
			Reply: fmt.Sprintf("%q doesn't look like a time. I need hour:minute, like 14:00. "+
				"Try again, or 'cancel'.", token),
		}
	}
	draft.StartRaw = token
	return Outcome{
		Next:  StepDuration,
		Draft: draft,
		Reply: fmt.Sprintf("Start time: %s.\n\n"+
			"Time limit: tell me the duration (e.g. 30 min) or type 'none'.", token),
	}
}

func advanceDuration(draft Draft, token string) Outcome {
	if strings.EqualFold(token, TokenNone) {
		draft.DurationLabel = ""
	} else if isReserved(token) {
		return Outcome{Next: StepDuration, Draft: draft, Reply: rePrompt(StepDuration)}
	} else {
		draft.DurationLabel = token
	}
	return Outcome{Draft: draft, Seal: true}
}

func rePrompt(step Step) string {
	switch step {
	case StepMission:
		return "I still need the mission. Give me one or more options, separated by commas."
	case StepRefine:
		return "Options for another layer, 'done' to continue, 'undo' to remove the last one, or 'cancel'."
	case StepStart:
		return "Tell me the start time (e.g. 14:00), or 'cancel'."
	case StepDuration:
		return "Tell me the duration (e.g. 30 min), or 'none'."
	}
	return "I didn't catch that."
}

// ParseStartTime validates a time-of-day string in 24-hour hour:minute
// form and returns the hour and minute. Malformed input is rejected here,
// at the start step, so a sealed contract always carries a schedulable
// instant.
func ParseStartTime(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time %q", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("malformed hour in %q", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("malformed minute in %q", raw)
	}
	return hour, minute, nil
}

// ComputeStart resolves a validated time-of-day against the current
// moment: today at hour:minute, or the same time tomorrow if that instant
// is already in the past.
func ComputeStart(raw string, now time.Time) (time.Time, error) {
	hour, minute, err := ParseStartTime(raw)
	if err != nil {
		return time.Time{}, err
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if start.Before(now) {
		start = start.AddDate(0, 0, 1)
	}
	return start, nil
}
