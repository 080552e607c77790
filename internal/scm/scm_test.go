package scm

import (
	"fmt"
	"testing"
)

func TestAggregateChecks(t *testing.T) {
	tests := []struct {
		name        string
		conclusions []string
		want        CheckState
	}{
		{"none", nil, CheckUnknown},
		{"all success", []string{"success", "success"}, CheckSuccess},
		{"neutral and skipped count as done", []string{"success", "neutral", "skipped"}, CheckSuccess},
		{"running", []string{"success", ""}, CheckPending},
		{"queued", []string{"queued"}, CheckPending},
		{"failure wins over pending", []string{"", "failure"}, CheckFailure},
		{"cancelled", []string{"success", "cancelled"}, CheckFailure},
		{"timed out", []string{"timed_out"}, CheckFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateChecks(tt.conclusions); got != tt.want {
				t.Errorf("AggregateChecks(%v) = %s, want %s", tt.conclusions, got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 404})) {
		t.Error("wrapped 404 should be reported as not found")
	}
	if IsNotFound(&APIError{StatusCode: 500}) {
		t.Error("500 is not a not-found error")
	}
}

func TestStatusState_Valid(t *testing.T) {
	for _, s := range []StatusState{StatusError, StatusFailure, StatusPending, StatusSuccess} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if StatusState("done").Valid() {
		t.Error("unknown state should be invalid")
	}
}
