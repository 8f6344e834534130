package models

import (
	"time"

	"github.com/benmeehan/locator/pkg/location"
)

// Trigger identifies what started a workflow run.
type Trigger string

const (
	TriggerForeground Trigger = "foreground"
	TriggerToggle     Trigger = "toggle"
	TriggerBackground Trigger = "background"
)

// Delivery describes a completed POST attempt.
type Delivery struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Timestamp  int64  `json:"timestamp"` // payload timestamp
}

// Outcome records one workflow run.
type Outcome struct {
	RunID      string           `json:"run_id"`
	Trigger    Trigger          `json:"trigger"`
	State      string           `json:"state"`
	Status     string           `json:"status"`
	Sample     *location.Sample `json:"sample,omitempty"`
	Delivery   *Delivery        `json:"delivery,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Reported reports whether the run reached the send step.
func (o Outcome) Reported() bool {
	return o.Delivery != nil
}
