// Package guardian is the conversational core: it routes user input
// between free conversation and the design wizard, runs the roulette,
// seals contracts, arms the notification engine, and owns the persisted
// application state.
package guardian

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"guardian/internal/config"
	"guardian/internal/domain"
	"guardian/internal/engine"
	"guardian/internal/responder"
	"guardian/internal/roulette"
	"guardian/internal/store"
	"guardian/internal/wizard"

	"github.com/google/uuid"
)

// EventType tags a server-push event.
type EventType string

const (
	// EventReply is a guardian chat line produced outside a request
	// (currently only roulette resolutions).
	EventReply EventType = "reply"
	// EventRouletteTick is one highlight step of a running roulette.
	EventRouletteTick EventType = "roulette_tick"
	// EventAlert is a fired contract notification.
	EventAlert EventType = "alert"
	// EventFocus asks clients to bring the chat to the foreground after
	// the user tapped an alert.
	EventFocus EventType = "focus"
)

// Event is pushed to connected clients over SSE and WebSocket.
type Event struct {
	Type       EventType      `json:"type"`
	Message    string         `json:"message,omitempty"`
	Tick       *roulette.Tick `json:"tick,omitempty"`
	Alert      *engine.Alert  `json:"alert,omitempty"`
	ContractID string         `json:"contract_id,omitempty"`
}

// Armer receives arm messages for sealed contracts.
type Armer interface {
	Arm(c domain.Contract)
}

// Service drives the single-user conversation. All state access goes
// through its mutex; the roulette watcher re-enters through resolveSpin.
type Service struct {
	mu      sync.Mutex
	cfg     *config.Config
	repo    store.Repository
	spinner *roulette.Spinner
	armer   Armer
	resp    *responder.Responder
	events  chan<- Event

	state   *domain.AppState
	session wizard.Session
	// spinGen identifies the current spin. Results from older spins (a
	// cancelled session's spin finishing after a new one started) are
	// stale and must be dropped.
	spinGen uint64

	now   func() time.Time
	newID func() string
}

// New loads persisted state (starting fresh when absent) and returns the
// service.
func New(cfg *config.Config, repo store.Repository, armer Armer, events chan<- Event) (*Service, error) {
	state, err := repo.LoadState(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load application state: %w", err)
	}
	if state == nil {
		state = domain.NewAppState()
		slog.Info("No persisted state found, starting fresh")
	} else {
		slog.Info("Application state loaded",
			"messages", len(state.History),
			"contracts", len(state.Contracts),
			"streak", state.Streak)
	}

	return &Service{
		cfg:     cfg,
		repo:    repo,
		spinner: roulette.New(cfg.SpinTickInterval, cfg.SpinMinTicks, cfg.SpinExtraTicks),
		armer:   armer,
		resp:    responder.New(),
		events:  events,
		state:   state,
		session: wizard.NewSession(),
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// SetArmer wires in the arm target after construction. The service and
// the engine reference each other, so one side has to be attached late;
// call this before serving traffic.
func (s *Service) SetArmer(armer Armer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armer = armer
}

// HandleMessage processes one user chat message and returns the
// guardian's reply. Both sides of the exchange are appended to the
// transcript and persisted best-effort.
func (s *Service) HandleMessage(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.state.Append(domain.RoleUser, text, now)

	var reply string
	switch {
	case s.session.Spinning:
		if strings.EqualFold(text, wizard.TokenCancel) {
			// Cancellation works even mid-spin; the spin's eventual
			// result is discarded when it arrives to a free session.
			s.session.Reset()
			reply = "Design mode cancelled. Back to normal conversation."
		} else {
			reply = "The roulette is still spinning. Hold on..."
		}
	case s.session.Mode == wizard.ModeDesigning:
		reply = s.advanceLocked(text)
	case s.isTrigger(text):
		s.session.Begin()
		reply = wizard.EntryPrompt
	default:
		reply = s.resp.Respond(text)
	}

	s.state.Append(domain.RoleGuardian, reply, s.now())
	s.saveLocked(ctx)
	return reply, nil
}

// isTrigger reports whether free-mode input opens a design session.
// Matching is case-insensitive substring-contains, so the phrases are
// kept long and specific to bound false positives.
func (s *Service) isTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range s.cfg.Persona.TriggerPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// advanceLocked feeds one input through the wizard and applies the
// outcome. Caller holds s.mu.
func (s *Service) advanceLocked(input string) string {
	out := wizard.Advance(s.session.Step, s.session.Draft, input)

	switch {
	case out.Spin != nil:
		return s.startSpinLocked(out.Spin)
	case out.Cancelled:
		s.session.Reset()
		return out.Reply
	case out.Seal:
		return s.sealLocked(out.Draft)
	default:
		s.session.Step = out.Next
		s.session.Draft = out.Draft
		return out.Reply
	}
}

// startSpinLocked launches the roulette and suspends the wizard until the
// result arrives. Caller holds s.mu.
func (s *Service) startSpinLocked(candidates []string) string {
	ticks, err := s.spinner.Spin(context.Background(), candidates)
	if err != nil {
		// The wizard is suspended while spinning, so this is a
		// programming error rather than a user-visible condition.
		slog.Error("Roulette spin failed", "error", err, "candidates", len(candidates))
		return "Something jammed the roulette. Give me your options again."
	}

	s.spinGen++
	gen := s.spinGen
	s.session.Spinning = true
	go s.watchSpin(gen, ticks)
	return fmt.Sprintf("%d options on the table. Spinning the roulette...", len(candidates))
}

// watchSpin forwards highlight ticks to clients and feeds the final
// selection back into the wizard.
func (s *Service) watchSpin(gen uint64, ticks <-chan roulette.Tick) {
	var result string
	var ok bool
	for tick := range ticks {
		t := tick
		s.emit(Event{Type: EventRouletteTick, Tick: &t})
		if tick.Final {
			result, ok = tick.Value, true
		}
	}
	if !ok {
		slog.Warn("Roulette spin ended without a result")
		return
	}
	s.resolveSpin(gen, result)
}

// resolveSpin re-enters the wizard with the roulette's selection, as if
// the user had typed it. Stale results are discarded: a generation
// mismatch means the spin's session was cancelled and a newer spin may
// already be running, so its state must not be touched.
func (s *Service) resolveSpin(gen uint64, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.spinGen || !s.session.Spinning || s.session.Mode != wizard.ModeDesigning {
		slog.Info("Discarding stale roulette result", "value", value, "generation", gen)
		return
	}
	s.session.Spinning = false

	reply := fmt.Sprintf("The roulette has spoken: %s.\n\n", value) + s.advanceLocked(value)
	s.state.Append(domain.RoleGuardian, reply, s.now())
	s.saveLocked(context.Background())
	s.emit(Event{Type: EventReply, Message: reply})
}

// sealLocked turns a completed draft into a scheduled contract: persists
// it, arms the engine, and resets the session. Caller holds s.mu.
func (s *Service) sealLocked(draft wizard.Draft) string {
	now := s.now()
	start, err := wizard.ComputeStart(draft.StartRaw, now)
	if err != nil {
		// StartRaw was validated at the start step; re-prompt if it
		// somehow slipped through.
		slog.Error("Sealing failed on start time", "raw", draft.StartRaw, "error", err)
		s.session.Step = wizard.StepStart
		return "That start time no longer parses. Tell me the start time again (e.g. 14:00)."
	}

	contract := &domain.Contract{
		ID:             s.newID(),
		MissionLineage: draft.Lineage(),
		StartTime:      start,
		DurationLabel:  draft.DurationLabel,
		Status:         domain.StatusScheduled,
		CreatedAt:      now,
	}
	s.state.AddContract(contract)
	s.session.Reset()
	s.saveLocked(context.Background())
	s.armer.Arm(*contract)

	slog.Info("Contract sealed",
		"contract_id", contract.ID,
		"mission", contract.Mission(),
		"start_time", contract.StartTime)

	card := fmt.Sprintf("CONTRACT SEALED\n--------------------\nMission: %s\nStart: %s (%s)",
		contract.Mission(),
		contract.StartTime.Format("15:04"),
		contract.StartTime.Format("02/01/2006"))
	if contract.DurationLabel != "" {
		card += "\nDuration: " + contract.DurationLabel
	}
	card += "\n--------------------"
	return card + "\nContract scheduled. I've set a reminder. Next mission?"
}

// ApplyVerdict finalizes a contract, updates the streak, and appends the
// guardian's coaching line to the transcript.
func (s *Service) ApplyVerdict(ctx context.Context, id string, verdict domain.Verdict) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.state.ApplyVerdict(id, verdict, s.now()); err != nil {
		return "", err
	}

	var reply string
	if verdict == domain.VerdictFulfilled {
		reply = "Excellent! Contract fulfilled. Your streak grows. Discipline forges character."
	} else {
		reply = "Contract broken. The streak resets. Not a failure, a data point. Analyze and forge again."
	}
	s.state.Append(domain.RoleGuardian, reply, s.now())
	s.saveLocked(ctx)
	return reply, nil
}

// Notify implements engine.Notifier by pushing the alert to connected
// clients. A full event stream counts as a failed presentation.
func (s *Service) Notify(_ context.Context, alert engine.Alert) error {
	a := alert
	if !s.emit(Event{Type: EventAlert, Alert: &a, ContractID: alert.ContractID}) {
		return fmt.Errorf("event stream full, alert %s dropped", alert.ContractID)
	}
	return nil
}

// RecordNotified implements engine.Recorder: flips the contract's
// notified flag and persists, best-effort.
func (s *Service) RecordNotified(ctx context.Context, contractID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.MarkNotified(contractID) {
		slog.Warn("RecordNotified changed nothing", "contract_id", contractID)
		return
	}
	s.saveLocked(ctx)
}

// AlertActivated handles the user tapping a fired alert: it emits a
// focus event and returns the contract, without mutating the record.
func (s *Service) AlertActivated(id string) (domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.state.FindContract(id)
	if c == nil {
		return domain.Contract{}, fmt.Errorf("%w: %s", domain.ErrContractNotFound, id)
	}
	s.emit(Event{Type: EventFocus, ContractID: id})
	return *c, nil
}

// RearmPending re-sends arm messages for every persisted contract that is
// still scheduled and unnotified. Called once at startup so a restart
// does not silently drop reminders.
func (s *Service) RearmPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.state.Contracts {
		if c.Status == domain.StatusScheduled && !c.Notified {
			s.armer.Arm(*c)
			count++
		}
	}
	return count
}

// Greeting returns the opening line for the current moment without
// touching the transcript.
func (s *Service) Greeting() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return responder.Greeting(s.cfg.Persona.UserName, s.state.LastInteraction, s.now())
}

// History returns a copy of the chat transcript.
func (s *Service) History() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.state.History))
	copy(out, s.state.History)
	return out
}

// Contracts returns copies of every contract, newest first.
func (s *Service) Contracts() []domain.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Contract, 0, len(s.state.Contracts))
	for i := len(s.state.Contracts) - 1; i >= 0; i-- {
		out = append(out, *s.state.Contracts[i])
	}
	return out
}

// Streak returns the current consecutive-day fulfillment count.
func (s *Service) Streak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Streak
}

// saveLocked persists the state best-effort: failures are logged and the
// in-memory state stays authoritative until the next save attempt.
// Caller holds s.mu.
func (s *Service) saveLocked(ctx context.Context) {
	if err := s.repo.SaveState(ctx, s.state); err != nil {
		slog.Error("Failed to persist application state", "error", err)
	}
}

// emit pushes an event without blocking. Returns false when the stream
// is full and the event was dropped.
func (s *Service) emit(e Event) bool {
	if s.events == nil {
		return true
	}
	select {
	case s.events <- e:
		return true
	default:
		slog.Warn("Event stream full, dropping event", "type", e.Type)
		return false
	}
}
