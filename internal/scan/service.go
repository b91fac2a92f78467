package scan

import (
	"context"
	"errors"
	"time"

	"admission/internal/errs"
	"admission/internal/metrics"
)

// Result is the outcome of an accepted scan.
type Result struct {
	Kind            Kind   `json:"kind"`
	Seq             int64  `json:"seq"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
}

// Service runs the admission state machine over a repository.
type Service struct {
	repo    Repo
	clock   func() time.Time
	retries int
}

// NewService creates a service. nil clock means time.Now; retries bounds how
// often an ordering conflict is re-attempted before surfacing.
func NewService(repo Repo, clock func() time.Time, retries int) *Service {
	if clock == nil {
		clock = time.Now
	}
	if retries < 0 {
		retries = 2
	}
	return &Service{repo: repo, clock: clock, retries: retries}
}

// RecordScan applies one accepted scan for a verified subject. Preconditions:
// the volunteer must be assigned to the event, and the subject must hold a
// confirmed registration unless the event permits walk-ins. The transition
// itself toggles ENTRY/EXIT off the most recent record; an ordering conflict
// from a racing scan is retried by re-reading state, never resolved by
// picking an arbitrary transition.
func (s *Service) RecordScan(ctx context.Context, subjectKey, eventID, volunteerID string) (Result, error) {
	if subjectKey == "" || eventID == "" || volunteerID == "" {
		return Result{}, errors.New("subject, event and volunteer required")
	}

	assigned, err := s.repo.VolunteerAssigned(ctx, eventID, volunteerID)
	if err != nil {
		return Result{}, err
	}
	if !assigned {
		return Result{}, errs.ErrVolunteerNotAssigned
	}

	registered, err := s.repo.HasConfirmedRegistration(ctx, subjectKey, eventID)
	if err != nil {
		return Result{}, err
	}
	if !registered {
		walkIn, err := s.repo.EventAllowsWalkIn(ctx, eventID)
		if err != nil {
			return Result{}, err
		}
		if !walkIn {
			return Result{}, errs.ErrNotRegistered
		}
	}

	var rec Record
	for attempt := 0; ; attempt++ {
		rec, err = s.repo.Append(ctx, subjectKey, eventID, volunteerID, s.clock())
		if err == nil {
			break
		}
		if !errors.Is(err, errs.ErrOrderingConflict) || attempt >= s.retries {
			return Result{}, err
		}
	}

	metrics.ScansTotal.WithLabelValues(string(rec.Kind)).Inc()
	return Result{Kind: rec.Kind, Seq: rec.Seq, DurationSeconds: rec.DurationSeconds}, nil
}
