package domain

import (
	"testing"
	"time"
)

func TestIsStale(t *testing.T) {
	base := time.Date(2022, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		artifactLast time.Time
		current      time.Time
		expected     bool
	}{
		{"same day", base, base, false},
		{"one day behind is the expected publishing lag", base.AddDate(0, 0, -1), base, false},
		{"two days behind", base.AddDate(0, 0, -2), base, true},
		{"a week behind", base.AddDate(0, 0, -7), base, true},
		{"time of day is ignored", base.AddDate(0, 0, -1).Add(2 * time.Hour), base.Add(23 * time.Hour), false},
		{"artifact from the future", base.AddDate(0, 0, 1), base, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsStale(tc.artifactLast, tc.current); got != tc.expected {
				t.Errorf("IsStale(%v, %v) = %v, want %v", tc.artifactLast, tc.current, got, tc.expected)
			}
		})
	}
}
