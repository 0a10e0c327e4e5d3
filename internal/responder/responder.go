// Package responder generates the Guardian's free-conversation replies
// from a small keyword lexicon. It covers any input that is not part of
// an active design session; anything smarter is an external collaborator
// behind this same boundary.
package responder

import (
	"fmt"
	"strings"
	"time"
)

// Word kinds recognized by the lexicon.
const (
	kindSubject = "subject"
	kindState   = "state"
	kindConcept = "concept"
	kindDesire  = "desire"
)

// Sentiment of a state word.
const (
	sentimentPositive = "positive"
	sentimentNegative = "negative"
)

type entry struct {
	kind      string
	sentiment string
	related   []string
}

// Responder matches tokens against its lexicon and assembles a reply
// from the strongest pattern found.
type Responder struct {
	lexicon map[string]entry
}

// New returns a responder with the built-in lexicon.
func New() *Responder {
	return &Responder{lexicon: map[string]entry{
		"i":  {kind: kindSubject},
		"im": {kind: kindSubject},
		"me": {kind: kindSubject},
		"my": {kind: kindSubject},

		"work":    {kind: kindConcept, related: []string{"stress", "money", "a project"}},
		"problem": {kind: kindConcept, related: []string{"a solution", "stress", "help"}},
		"idea":    {kind: kindConcept, related: []string{"creativity", "a project", "a solution"}},

		"want": {kind: kindDesire},
		"need": {kind: kindDesire},
		"wish": {kind: kindDesire},

		"tired":     {kind: kindState, sentiment: sentimentNegative},
		"stressed":  {kind: kindState, sentiment: sentimentNegative},
		"anxious":   {kind: kindState, sentiment: sentimentNegative},
		"happy":     {kind: kindState, sentiment: sentimentPositive},
		"motivated": {kind: kindState, sentiment: sentimentPositive},
	}}
}

type token struct {
	word string
	entry
	known bool
}

func (r *Responder) tokenize(input string) []token {
	cleaned := strings.ToLower(input)
	cleaned = strings.Map(func(ch rune) rune {
		switch ch {
		case '?', '!', ',', '.', '\'':
			return -1
		}
		return ch
	}, cleaned)

	var tokens []token
	for _, word := range strings.Fields(cleaned) {
		e, ok := r.lexicon[word]
		tokens = append(tokens, token{word: word, entry: e, known: ok})
	}
	return tokens
}

func firstOfKind(tokens []token, kind string) *token {
	for i := range tokens {
		if tokens[i].known && tokens[i].kind == kind {
			return &tokens[i]
		}
	}
	return nil
}

// Respond produces a reply for free-form input.
func (r *Responder) Respond(input string) string {
	tokens := r.tokenize(input)

	subject := firstOfKind(tokens, kindSubject)
	state := firstOfKind(tokens, kindState)
	concept := firstOfKind(tokens, kindConcept)
	desire := firstOfKind(tokens, kindDesire)

	switch {
	case subject != nil && state != nil:
		if state.sentiment == sentimentNegative {
			return fmt.Sprintf("I hear that you're feeling %s. Is there something specific "+
				"causing it? Sometimes naming it helps.", state.word)
		}
		return fmt.Sprintf("Good to hear you're feeling %s! Riding that energy is key. "+
			"What are you planning to do with it?", state.word)

	case subject != nil && desire != nil && concept != nil:
		return fmt.Sprintf("A %s is a challenge, and looking for %s is the first step. "+
			"What have you tried so far?", concept.word, concept.related[0])

	case concept != nil:
		return fmt.Sprintf("You mention %q. That usually ties into %s. "+
			"Does your situation fit any of those?",
			concept.word, strings.Join(concept.related, ", "))
	}

	for _, tok := range tokens {
		if !tok.known {
			return fmt.Sprintf("The word %q is new to my knowledge base. "+
				"What does it mean to you in this context? I'd like to learn.", tok.word)
		}
	}
	return "I'm processing that. Can you give me a bit more detail so I see the whole picture?"
}

// Greeting builds the opening line. The first interaction of a calendar
// day gets the long form with the time of day; a same-day return visit
// gets the short one.
func Greeting(name string, lastInteraction, now time.Time) string {
	sameDay := !lastInteraction.IsZero() &&
		lastInteraction.Year() == now.Year() &&
		lastInteraction.YearDay() == now.YearDay()

	if sameDay {
		return fmt.Sprintf("Hello %s, welcome back. Shall we review contracts, forge a new one, or just talk?", name)
	}
	return fmt.Sprintf("Hello. Welcome, %s. How can I help you this %s?", name, dayPart(now))
}

func dayPart(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 20:
		return "afternoon"
	default:
		return "evening"
	}
}
