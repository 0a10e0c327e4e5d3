package guardian

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"guardian/internal/config"
	"guardian/internal/domain"
	"guardian/internal/roulette"
	"guardian/internal/wizard"
)

type memRepo struct {
	mu    sync.Mutex
	state *domain.AppState
	saves int
}

func (m *memRepo) LoadState(context.Context) (*domain.AppState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memRepo) SaveState(_ context.Context, state *domain.AppState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves++
	return nil
}

func (m *memRepo) Ping(context.Context) error { return nil }
func (m *memRepo) Close() error               { return nil }

type memArmer struct {
	mu    sync.Mutex
	armed []domain.Contract
}

func (a *memArmer) Arm(c domain.Contract) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = append(a.armed, c)
}

func (a *memArmer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.armed)
}

var testNoon = time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)

func newTestService(t *testing.T) (*Service, *memRepo, *memArmer, chan Event) {
	t.Helper()
	cfg := &config.Config{
		Port:             "0",
		DBPath:           "ignored",
		SweepInterval:    time.Minute,
		SpinTickInterval: time.Microsecond,
		SpinMinTicks:     3,
		SpinExtraTicks:   0,
		Persona:          config.DefaultPersona(),
	}
	repo := &memRepo{}
	armer := &memArmer{}
	events := make(chan Event, 100)

	svc, err := New(cfg, repo, armer, events)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	svc.now = func() time.Time { return testNoon }
	counter := 0
	svc.newID = func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}
	return svc, repo, armer, events
}

func send(t *testing.T, svc *Service, text string) string {
	t.Helper()
	reply, err := svc.HandleMessage(context.Background(), text)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", text, err)
	}
	return reply
}

func TestFullDesignFlowSealsContract(t *testing.T) {
	svc, repo, armer, _ := newTestService(t)

	reply := send(t, svc, "Let's design a contract")
	if !strings.Contains(reply, "design mode") {
		t.Fatalf("trigger phrase not recognized: %q", reply)
	}

	send(t, svc, "Write report")
	send(t, svc, "done")
	send(t, svc, "14:00")
	reply = send(t, svc, "none")

	if !strings.Contains(reply, "CONTRACT SEALED") {
		t.Fatalf("expected sealing card, got %q", reply)
	}

	contracts := svc.Contracts()
	if len(contracts) != 1 {
		t.Fatalf("contracts = %d, want 1", len(contracts))
	}
	c := contracts[0]
	if len(c.MissionLineage) != 1 || c.MissionLineage[0] != "Write report" {
		t.Errorf("MissionLineage = %v", c.MissionLineage)
	}
	if c.DurationLabel != "" {
		t.Errorf("DurationLabel = %q, want empty", c.DurationLabel)
	}
	if c.Status != domain.StatusScheduled || c.Notified {
		t.Errorf("status/notified = %s/%v", c.Status, c.Notified)
	}
	// Now is 12:00, so 14:00 stays on today's date.
	want := time.Date(2026, 8, 30, 14, 0, 0, 0, time.Local)
	if !c.StartTime.Equal(want) {
		t.Errorf("StartTime = %v, want %v", c.StartTime, want)
	}

	if armer.count() != 1 {
		t.Errorf("armed contracts = %d, want 1", armer.count())
	}
	if repo.saves == 0 {
		t.Error("sealing must persist the state")
	}
}

func TestPastStartTimeRollsToTomorrow(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	send(t, svc, "design a contract")
	send(t, svc, "Stretch")
	send(t, svc, "done")
	send(t, svc, "09:30")
	send(t, svc, "none")

	c := svc.Contracts()[0]
	want := time.Date(2026, 8, 31, 9, 30, 0, 0, time.Local)
	if !c.StartTime.Equal(want) {
		t.Errorf("StartTime = %v, want %v (next day)", c.StartTime, want)
	}
}

func TestMultiCandidateMissionResolvesViaRoulette(t *testing.T) {
	svc, _, _, events := newTestService(t)

	send(t, svc, "design a contract")
	reply := send(t, svc, "Write report, Read book")
	if !strings.Contains(reply, "Spinning") {
		t.Fatalf("expected a spinning notice, got %q", reply)
	}

	resolution := waitForEvent(t, events, EventReply)
	if !strings.Contains(resolution.Message, "The roulette has spoken") {
		t.Fatalf("unexpected resolution message: %q", resolution.Message)
	}

	svc.mu.Lock()
	mission := svc.session.Draft.Mission
	step := svc.session.Step
	spinning := svc.session.Spinning
	svc.mu.Unlock()

	if spinning {
		t.Error("session still marked spinning after resolution")
	}
	if step != wizard.StepRefine {
		t.Errorf("step = %s, want refine", step)
	}
	if mission != "Write report" && mission != "Read book" {
		t.Errorf("mission %q is not a member of the candidate list", mission)
	}
}

func TestRouletteTicksAreStreamed(t *testing.T) {
	svc, _, _, events := newTestService(t)

	send(t, svc, "design a contract")
	send(t, svc, "a, b, c")

	// Spinner is configured for exactly 3 ticks; the resolution reply
	// arrives after the last of them.
	ticks := 0
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-events:
			switch e.Type {
			case EventRouletteTick:
				ticks++
				if e.Tick == nil || e.Tick.Value == "" {
					t.Errorf("tick event without payload: %+v", e)
				}
			case EventReply:
				if ticks != 3 {
					t.Errorf("streamed ticks = %d, want 3", ticks)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the spin to resolve")
		}
	}
}

func TestCancelAndRestartGetsFreshDraft(t *testing.T) {
	svc, _, armer, _ := newTestService(t)

	send(t, svc, "design a contract")
	send(t, svc, "Old mission")
	send(t, svc, "Old layer")
	reply := send(t, svc, "cancel")
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("cancel not honored: %q", reply)
	}
	if armer.count() != 0 {
		t.Error("cancelled session must not arm anything")
	}

	send(t, svc, "design a contract")
	send(t, svc, "New mission")
	send(t, svc, "done")
	send(t, svc, "14:00")
	send(t, svc, "none")

	c := svc.Contracts()[0]
	if got := c.Mission(); got != "New mission" {
		t.Errorf("Mission = %q, leaked state from the aborted session", got)
	}
}

func TestCancelWhileSpinningDiscardsResult(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	// Slow spinner so cancel lands mid-spin.
	svc.spinner = roulette.New(50*time.Millisecond, 20, 0)

	send(t, svc, "design a contract")
	send(t, svc, "a, b")

	reply := send(t, svc, "cancel")
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("cancel during spin rejected: %q", reply)
	}

	// When the spin eventually resolves, the session must stay free.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		svc.mu.Lock()
		mode := svc.session.Mode
		mission := svc.session.Draft.Mission
		svc.mu.Unlock()
		if mode != wizard.ModeFree {
			t.Fatal("session left free mode after cancellation")
		}
		if mission != "" {
			t.Fatal("discarded spin result mutated the draft")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStaleSpinResultCannotHijackNewSession(t *testing.T) {
	svc, _, _, events := newTestService(t)
	svc.spinner = roulette.New(50*time.Millisecond, 20, 0)

	send(t, svc, "design a contract")
	send(t, svc, "a, b")
	send(t, svc, "cancel")

	// A fresh spinner lets the second spin start while the first is
	// still draining, as happens when the first releases its slot just
	// before its result lands.
	svc.spinner = roulette.New(time.Microsecond, 3, 0)
	send(t, svc, "design a contract")
	reply := send(t, svc, "x, y")
	if !strings.Contains(reply, "Spinning") {
		t.Fatalf("second spin did not start: %q", reply)
	}

	// The cancelled spin's result arrives late, carrying the old
	// generation. It must not become the new session's answer.
	svc.resolveSpin(1, "a")

	waitForEvent(t, events, EventReply)

	svc.mu.Lock()
	mission := svc.session.Draft.Mission
	step := svc.session.Step
	svc.mu.Unlock()

	if mission != "x" && mission != "y" {
		t.Errorf("mission %q was taken from the cancelled spin, candidates were x,y", mission)
	}
	if step != wizard.StepRefine {
		t.Errorf("step = %s, want refine", step)
	}
}

func TestInputWhileSpinningIsDeferred(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.spinner = roulette.New(50*time.Millisecond, 20, 0)

	send(t, svc, "design a contract")
	send(t, svc, "a, b")
	reply := send(t, svc, "something else")
	if !strings.Contains(reply, "spinning") {
		t.Errorf("expected a hold-on notice, got %q", reply)
	}
}

func TestFreeModeUsesResponder(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	reply := send(t, svc, "I'm feeling stressed")
	if !strings.Contains(reply, "stressed") {
		t.Errorf("free-mode reply: %q", reply)
	}

	svc.mu.Lock()
	mode := svc.session.Mode
	svc.mu.Unlock()
	if mode != wizard.ModeFree {
		t.Error("free conversation must not open a design session")
	}
}

func TestVerdictsDriveStreak(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	for _, mission := range []string{"One", "Two"} {
		send(t, svc, "design a contract")
		send(t, svc, mission)
		send(t, svc, "done")
		send(t, svc, "14:00")
		send(t, svc, "none")
	}
	contracts := svc.Contracts()
	if len(contracts) != 2 {
		t.Fatalf("contracts = %d, want 2", len(contracts))
	}

	if _, err := svc.ApplyVerdict(context.Background(), contracts[0].ID, domain.VerdictFulfilled); err != nil {
		t.Fatalf("first verdict failed: %v", err)
	}
	if _, err := svc.ApplyVerdict(context.Background(), contracts[1].ID, domain.VerdictFulfilled); err != nil {
		t.Fatalf("second verdict failed: %v", err)
	}
	if svc.Streak() != 1 {
		t.Errorf("streak = %d, want 1 (same calendar day)", svc.Streak())
	}
}

func TestRecordNotifiedPersistsFlag(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	send(t, svc, "design a contract")
	send(t, svc, "Write report")
	send(t, svc, "done")
	send(t, svc, "14:00")
	send(t, svc, "none")
	id := svc.Contracts()[0].ID

	before := repo.saves
	svc.RecordNotified(context.Background(), id)
	if !svc.Contracts()[0].Notified {
		t.Error("notified flag not set")
	}
	if repo.saves <= before {
		t.Error("RecordNotified must persist the state")
	}

	// Second call is a no-op.
	svc.RecordNotified(context.Background(), id)
	if !svc.Contracts()[0].Notified {
		t.Error("notified flag must never reset")
	}
}

func TestRearmPending(t *testing.T) {
	svc, _, armer, _ := newTestService(t)

	send(t, svc, "design a contract")
	send(t, svc, "Write report")
	send(t, svc, "done")
	send(t, svc, "14:00")
	send(t, svc, "none")

	before := armer.count()
	if n := svc.RearmPending(); n != 1 {
		t.Errorf("RearmPending = %d, want 1", n)
	}
	if armer.count() != before+1 {
		t.Errorf("armed = %d, want %d", armer.count(), before+1)
	}

	svc.RecordNotified(context.Background(), svc.Contracts()[0].ID)
	if n := svc.RearmPending(); n != 0 {
		t.Errorf("RearmPending after notification = %d, want 0", n)
	}
}

func TestAlertActivatedDoesNotMutate(t *testing.T) {
	svc, _, _, events := newTestService(t)

	send(t, svc, "design a contract")
	send(t, svc, "Write report")
	send(t, svc, "done")
	send(t, svc, "14:00")
	send(t, svc, "none")
	id := svc.Contracts()[0].ID

	c, err := svc.AlertActivated(id)
	if err != nil {
		t.Fatalf("AlertActivated failed: %v", err)
	}
	if c.ID != id || c.Status != domain.StatusScheduled || c.Notified {
		t.Errorf("AlertActivated mutated the record: %+v", c)
	}
	waitForEvent(t, events, EventFocus)

	if _, err := svc.AlertActivated("missing"); err == nil {
		t.Error("expected error for unknown contract id")
	}
}

func waitForEvent(t *testing.T, events chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == want {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}
