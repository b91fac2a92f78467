package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission/internal/errs"
)

type fakeRepo struct {
	assigned   bool
	registered bool
	walkIn     bool
	walkInErr  error

	appendCalls int
	appendErrs  []error
	appendOut   Record

	lastSubject, lastEvent, lastVolunteer string
	lastAt                                time.Time
}

var _ Repo = (*fakeRepo)(nil)

func (f *fakeRepo) VolunteerAssigned(_ context.Context, eventID, volunteerID string) (bool, error) {
	return f.assigned, nil
}
func (f *fakeRepo) HasConfirmedRegistration(_ context.Context, subjectKey, eventID string) (bool, error) {
	return f.registered, nil
}
func (f *fakeRepo) EventAllowsWalkIn(_ context.Context, eventID string) (bool, error) {
	return f.walkIn, f.walkInErr
}
func (f *fakeRepo) Append(_ context.Context, subjectKey, eventID, volunteerID string, at time.Time) (Record, error) {
	f.appendCalls++
	f.lastSubject, f.lastEvent, f.lastVolunteer, f.lastAt = subjectKey, eventID, volunteerID, at
	if len(f.appendErrs) > 0 {
		err := f.appendErrs[0]
		f.appendErrs = f.appendErrs[1:]
		if err != nil {
			return Record{}, err
		}
	}
	return f.appendOut, nil
}

func TestRecordScan_Validation(t *testing.T) {
	s := NewService(&fakeRepo{}, nil, 0)
	if _, err := s.RecordScan(context.Background(), "", "E1", "V1"); err == nil {
		t.Fatalf("want error on empty subject")
	}
	if _, err := s.RecordScan(context.Background(), "REG-100", "", "V1"); err == nil {
		t.Fatalf("want error on empty event")
	}
	if _, err := s.RecordScan(context.Background(), "REG-100", "E1", ""); err == nil {
		t.Fatalf("want error on empty volunteer")
	}
}

func TestRecordScan_VolunteerNotAssigned(t *testing.T) {
	repo := &fakeRepo{assigned: false, registered: true}
	s := NewService(repo, nil, 0)

	_, err := s.RecordScan(context.Background(), "REG-100", "E1", "V1")
	if !errors.Is(err, errs.ErrVolunteerNotAssigned) {
		t.Fatalf("want ErrVolunteerNotAssigned, got %v", err)
	}
	if repo.appendCalls != 0 {
		t.Fatalf("no scan record may be written on an unauthorized scan")
	}
}

func TestRecordScan_NotRegistered_NoWalkIn(t *testing.T) {
	repo := &fakeRepo{assigned: true, registered: false, walkIn: false}
	s := NewService(repo, nil, 0)

	_, err := s.RecordScan(context.Background(), "REG-100", "E1", "V1")
	if !errors.Is(err, errs.ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered, got %v", err)
	}
	if repo.appendCalls != 0 {
		t.Fatalf("no scan record may be written for an ineligible subject")
	}
}

func TestRecordScan_WalkInPermitted(t *testing.T) {
	repo := &fakeRepo{
		assigned:  true,
		walkIn:    true,
		appendOut: Record{Kind: KindEntry, Seq: 1},
	}
	s := NewService(repo, nil, 0)

	res, err := s.RecordScan(context.Background(), "REG-100", "E1", "V1")
	if err != nil {
		t.Fatalf("walk-in scan: %v", err)
	}
	if res.Kind != KindEntry {
		t.Fatalf("want ENTRY, got %s", res.Kind)
	}
}

func TestRecordScan_DelegatesToRepo(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	d := int64(125)
	repo := &fakeRepo{
		assigned:   true,
		registered: true,
		appendOut:  Record{Kind: KindExit, Seq: 2, DurationSeconds: &d},
	}
	s := NewService(repo, func() time.Time { return at }, 0)

	res, err := s.RecordScan(context.Background(), "REG-100", "E1", "V1")
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if repo.lastSubject != "REG-100" || repo.lastEvent != "E1" || repo.lastVolunteer != "V1" {
		t.Fatalf("repo got %s/%s/%s", repo.lastSubject, repo.lastEvent, repo.lastVolunteer)
	}
	if !repo.lastAt.Equal(at) {
		t.Fatalf("repo got scan time %v, want %v", repo.lastAt, at)
	}
	if res.Kind != KindExit || res.DurationSeconds == nil || *res.DurationSeconds != 125 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRecordScan_RetriesOrderingConflict(t *testing.T) {
	repo := &fakeRepo{
		assigned:   true,
		registered: true,
		appendErrs: []error{errs.ErrOrderingConflict, nil},
		appendOut:  Record{Kind: KindEntry, Seq: 1},
	}
	s := NewService(repo, nil, 2)

	res, err := s.RecordScan(context.Background(), "REG-100", "E1", "V1")
	if err != nil {
		t.Fatalf("conflict should have been retried: %v", err)
	}
	if repo.appendCalls != 2 {
		t.Fatalf("want 2 append attempts, got %d", repo.appendCalls)
	}
	if res.Kind != KindEntry {
		t.Fatalf("want ENTRY, got %s", res.Kind)
	}
}

func TestRecordScan_ConflictExhaustsRetries(t *testing.T) {
	repo := &fakeRepo{
		assigned:   true,
		registered: true,
		appendErrs: []error{errs.ErrOrderingConflict, errs.ErrOrderingConflict, errs.ErrOrderingConflict},
	}
	s := NewService(repo, nil, 2)

	_, err := s.RecordScan(context.Background(), "REG-100", "E1", "V1")
	if !errors.Is(err, errs.ErrOrderingConflict) {
		t.Fatalf("want ErrOrderingConflict after retries, got %v", err)
	}
	if repo.appendCalls != 3 {
		t.Fatalf("want 3 append attempts, got %d", repo.appendCalls)
	}
}
