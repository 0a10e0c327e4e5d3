// Package domain contains core domain types for the Guardian application.
package domain

import (
	"strings"
	"time"
)

// ContractStatus describes the lifecycle state of a contract.
type ContractStatus string

const (
	// StatusScheduled is the initial status of every sealed contract.
	StatusScheduled ContractStatus = "scheduled"
	// StatusFulfilled marks a contract the user completed. Terminal.
	StatusFulfilled ContractStatus = "fulfilled"
	// StatusBroken marks a contract the user gave up on. Terminal.
	StatusBroken ContractStatus = "broken"
)

// LineageSeparator joins the mission and its refinement layers for display.
const LineageSeparator = " -> "

// Contract is a sealed commitment: a mission with optional refinement
// layers, a start instant, and an optional duration label.
//
// MissionLineage and StartTime are immutable after sealing. Status moves
// from scheduled to exactly one of fulfilled/broken and is then final.
// Notified is flipped to true exactly once by the notification engine.
type Contract struct {
	ID             string         `json:"id"`
	MissionLineage []string       `json:"mission_lineage"`
	StartTime      time.Time      `json:"start_time"`
	DurationLabel  string         `json:"duration_label,omitempty"`
	Status         ContractStatus `json:"status"`
	Notified       bool           `json:"notified"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Mission returns the human-readable join of the mission lineage.
func (c *Contract) Mission() string {
	return strings.Join(c.MissionLineage, LineageSeparator)
}

// Due reports whether the contract's start instant has been reached.
func (c *Contract) Due(now time.Time) bool {
	return !c.StartTime.After(now)
}

// Terminal reports whether the contract has reached a final status.
func (c *Contract) Terminal() bool {
	return c.Status == StatusFulfilled || c.Status == StatusBroken
}
