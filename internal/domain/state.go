package domain

import (
	"errors"
	"fmt"
	"time"
)

// Verdict is the user's judgement on a scheduled contract.
type Verdict string

const (
	// VerdictFulfilled records that the user honored the contract.
	VerdictFulfilled Verdict = "fulfilled"
	// VerdictBroken records that the user gave up on the contract.
	VerdictBroken Verdict = "broken"
)

var (
	// ErrContractNotFound is returned when a contract id is unknown.
	ErrContractNotFound = errors.New("contract not found")
	// ErrContractFinal is returned when a verdict targets a contract whose
	// status is already terminal.
	ErrContractFinal = errors.New("contract status is final")
)

// dayKeyFormat identifies a calendar day for the once-per-day streak rule.
const dayKeyFormat = "2006-01-02"

// AppState is the whole persisted application state: the chat transcript,
// every contract ever sealed, and the streak counter. It is saved and
// loaded as one atomic unit.
type AppState struct {
	History          []ChatMessage `json:"history"`
	Contracts        []*Contract   `json:"contracts"`
	Streak           int           `json:"streak"`
	LastFulfilledDay string        `json:"last_fulfilled_day,omitempty"`
	LastInteraction  time.Time     `json:"last_interaction"`
}

// NewAppState returns an empty application state.
func NewAppState() *AppState {
	return &AppState{}
}

// Append adds a message to the chat transcript and bumps the interaction
// timestamp.
func (s *AppState) Append(role, content string, now time.Time) {
	s.History = append(s.History, ChatMessage{Role: role, Content: content, Timestamp: now})
	s.LastInteraction = now
}

// FindContract returns the contract with the given id, or nil.
func (s *AppState) FindContract(id string) *Contract {
	for _, c := range s.Contracts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// AddContract appends a sealed contract.
func (s *AppState) AddContract(c *Contract) {
	s.Contracts = append(s.Contracts, c)
}

// ApplyVerdict transitions a scheduled contract to its final status and
// updates the streak counter: the first fulfillment on a calendar day
// increments it by one, a broken contract resets it to zero. Verdicts on
// contracts that already reached a final status are rejected.
func (s *AppState) ApplyVerdict(id string, verdict Verdict, now time.Time) (*Contract, error) {
	c := s.FindContract(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, id)
	}
	if c.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrContractFinal, id, c.Status)
	}

	switch verdict {
	case VerdictFulfilled:
		c.Status = StatusFulfilled
		day := now.Format(dayKeyFormat)
		if s.LastFulfilledDay != day {
			s.Streak++
			s.LastFulfilledDay = day
		}
	case VerdictBroken:
		c.Status = StatusBroken
		s.Streak = 0
	default:
		return nil, fmt.Errorf("unknown verdict %q", verdict)
	}
	return c, nil
}

// MarkNotified sets the notified flag on a scheduled contract. It is a
// no-op when the contract is unknown, already notified, or no longer
// scheduled; the flag is never reset.
func (s *AppState) MarkNotified(id string) bool {
	c := s.FindContract(id)
	if c == nil || c.Notified || c.Status != StatusScheduled {
		return false
	}
	c.Notified = true
	return true
}
