// Package engine implements the scheduled-notification engine: a
// background process that watches pending contracts and fires a one-shot
// alert when each one's start instant arrives.
//
// The engine shares no mutable state with the interactive session.
// Contracts reach it only as arm messages carrying a copy of the record;
// a single goroutine owns the pending set, so sweeps can never overlap.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"guardian/internal/domain"
)

// Alert is the payload of a fired notification.
type Alert struct {
	ContractID string `json:"contract_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	// Tag is stable per contract so a client can collapse duplicates.
	Tag string `json:"tag"`
}

// NewAlert builds the user-visible alert for a due contract.
func NewAlert(c *domain.Contract) Alert {
	return Alert{
		ContractID: c.ID,
		Title:      "Guardian: it's time!",
		Body:       fmt.Sprintf("The contract '%s' has begun.", c.Mission()),
		Tag:        "contract-" + c.ID,
	}
}

// Notifier presents a fired alert to the user. A failed presentation is
// logged and the contract is retired anyway; a lost alert is preferred
// over a duplicate one.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Recorder is told when a contract has been alerted so the notified flag
// can be persisted. Best-effort; the engine does not retry.
type Recorder interface {
	RecordNotified(ctx context.Context, contractID string)
}

// Engine holds the pending set and the sweep timer. The timer starts on
// the first arm message and stops whenever a sweep drains the set.
type Engine struct {
	interval time.Duration
	notifier Notifier
	recorder Recorder

	armCh   chan domain.Contract
	pending map[string]domain.Contract
	now     func() time.Time
}

// New creates an engine that sweeps at the given interval.
func New(interval time.Duration, notifier Notifier, recorder Recorder) *Engine {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Engine{
		interval: interval,
		notifier: notifier,
		recorder: recorder,
		armCh:    make(chan domain.Contract, 16),
		pending:  make(map[string]domain.Contract),
		now:      time.Now,
	}
}

// Arm sends a contract to the engine. The call never blocks; if the
// engine's queue is full the message is dropped with a warning, which at
// worst costs one alert.
func (e *Engine) Arm(c domain.Contract) {
	select {
	case e.armCh <- c:
	default:
		slog.Warn("Engine arm queue full, dropping contract", "contract_id", c.ID)
	}
}

// Run processes arm messages and periodic sweeps until ctx is cancelled.
// It is the only goroutine that touches the pending set.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Notification engine started", "sweep_interval", e.interval)

	var ticker *time.Ticker
	var tick <-chan time.Time

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Notification engine shutting down", "reason", ctx.Err())
			return

		case c := <-e.armCh:
			if !e.admit(c) {
				continue
			}
			if ticker == nil {
				ticker = time.NewTicker(e.interval)
				tick = ticker.C
			}

		case <-tick:
			e.sweep(ctx)
			if len(e.pending) == 0 {
				slog.Debug("Pending set empty, sweep timer idle")
				stopTicker()
			}
		}
	}
}

// admit adds a contract to the pending set. Duplicates by id and records
// that are already notified or no longer scheduled are ignored.
func (e *Engine) admit(c domain.Contract) bool {
	if c.ID == "" {
		slog.Warn("Ignoring arm message without contract id")
		return false
	}
	if c.Notified || c.Status != domain.StatusScheduled {
		return false
	}
	if _, ok := e.pending[c.ID]; ok {
		return false
	}
	e.pending[c.ID] = c
	slog.Info("Contract armed", "contract_id", c.ID, "start_time", c.StartTime)
	return true
}

// sweep fires an alert for every pending contract whose start instant has
// passed and retires it. Each contract is alerted at most once: it leaves
// the pending set whether or not the presentation succeeded.
func (e *Engine) sweep(ctx context.Context) {
	now := e.now()
	for id, c := range e.pending {
		if !c.Due(now) {
			continue
		}

		alert := NewAlert(&c)
		if err := e.notifier.Notify(ctx, alert); err != nil {
			slog.Error("Alert presentation failed, retiring contract anyway",
				"contract_id", id,
				"error", err)
		} else {
			slog.Info("Alert fired", "contract_id", id, "mission", c.Mission())
		}

		if e.recorder != nil {
			e.recorder.RecordNotified(ctx, id)
		}
		delete(e.pending, id)
	}
}
