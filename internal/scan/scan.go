// Package scan turns verified subject identities into ENTRY/EXIT records with
// duration tracking, serialized per (subject, event) pair.
package scan

import (
	"context"
	"time"
)

// Kind classifies an accepted scan.
type Kind string

const (
	KindEntry Kind = "ENTRY"
	KindExit  Kind = "EXIT"
)

// Record is one immutable persisted scan. Corrections insert compensating
// records; a written record is never mutated.
type Record struct {
	ID              string    `json:"id"`
	SubjectKey      string    `json:"subject_key"`
	EventID         string    `json:"event_id"`
	VolunteerID     string    `json:"volunteer_id"`
	Seq             int64     `json:"seq"`
	Kind            Kind      `json:"kind"`
	ScannedAt       time.Time `json:"scanned_at"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Totals is the running aggregate per (subject, event).
type Totals struct {
	SubjectKey   string `json:"subject_key"`
	EventID      string `json:"event_id"`
	TotalSeconds int64  `json:"total_seconds"`
	Visits       int64  `json:"visits"`
}

// Repo is the persistence surface the service depends on.
type Repo interface {
	VolunteerAssigned(ctx context.Context, eventID, volunteerID string) (bool, error)
	HasConfirmedRegistration(ctx context.Context, subjectKey, eventID string) (bool, error)
	EventAllowsWalkIn(ctx context.Context, eventID string) (bool, error)
	Append(ctx context.Context, subjectKey, eventID, volunteerID string, at time.Time) (Record, error)
}
