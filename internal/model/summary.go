package model

import "time"

// RunSummary describes one finished dispatch invocation.
type RunSummary struct {
	Trigger    Trigger   `json:"trigger"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message"`
	EventID    string    `json:"eventId,omitempty"`
	TargetDate string    `json:"targetDate,omitempty"`
	Attempted  int       `json:"attempted"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}
