package main

import (
	"errors"
	"net/http"
	"testing"

	"admission/internal/errs"
)

func TestScanErrStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{errs.ErrVolunteerNotAssigned, http.StatusForbidden, "volunteer_not_assigned"},
		{errs.ErrNotRegistered, http.StatusForbidden, "not_registered"},
		{errs.ErrOrderingConflict, http.StatusConflict, "ordering_conflict"},
		{errs.ErrNotFound, http.StatusNotFound, "event_not_found"},
	}
	for _, tc := range cases {
		status, reason := scanErrStatus(tc.err)
		if status != tc.status || reason != tc.reason {
			t.Errorf("scanErrStatus(%v) = %d %q, want %d %q", tc.err, status, reason, tc.status, tc.reason)
		}
	}
}

func TestScanErrStatus_UnknownErrorIsInternal(t *testing.T) {
	status, reason := scanErrStatus(errors.New("pq: connection reset by peer"))
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if reason != "internal_error" {
		t.Fatalf("reason = %q, must not echo the underlying error", reason)
	}
}
