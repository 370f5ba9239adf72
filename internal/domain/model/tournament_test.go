package model

import (
	"testing"
	"time"
)

func windowTournament() *Tournament {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &Tournament{
		EnrollStart: base,
		EnrollEnd:   base.Add(24 * time.Hour),
		EventStart:  base.Add(24 * time.Hour),
		EventEnd:    base.Add(30 * time.Hour),
	}
}

func TestValidateWindows(t *testing.T) {
	tournament := windowTournament()
	if !tournament.ValidateWindows() {
		t.Fatal("expected valid windows")
	}

	// Enrollment may end exactly when the event starts, but never after.
	tournament.EventStart = tournament.EnrollEnd.Add(-time.Minute)
	if tournament.ValidateWindows() {
		t.Error("event starting inside enrollment must be invalid")
	}

	tournament = windowTournament()
	tournament.EventEnd = tournament.EventStart
	if tournament.ValidateWindows() {
		t.Error("empty event window must be invalid")
	}

	tournament = windowTournament()
	tournament.EnrollEnd = tournament.EnrollStart
	if tournament.ValidateWindows() {
		t.Error("empty enrollment window must be invalid")
	}
}

func TestEventOpen_Boundaries(t *testing.T) {
	tournament := windowTournament()

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", tournament.EventStart.Add(-time.Nanosecond), false},
		{"inclusive start", tournament.EventStart, true},
		{"mid window", tournament.EventStart.Add(time.Hour), true},
		{"exclusive end", tournament.EventEnd, false},
		{"after end", tournament.EventEnd.Add(time.Nanosecond), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tournament.EventOpen(tc.now); got != tc.want {
				t.Errorf("EventOpen(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestEnrollmentOpen_IgnoresZoneRepresentation(t *testing.T) {
	tournament := windowTournament()
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	instant := tournament.EnrollStart.Add(time.Hour)
	if !tournament.EnrollmentOpen(instant.In(bangkok)) {
		t.Error("the same instant expressed in another zone must still be inside the window")
	}
}
