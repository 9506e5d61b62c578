// Package timeslot detects overlapping meeting times.
//
// A Slot is a half-open interval [Start, End) on a single calendar date,
// measured in minutes since midnight. Two slots conflict only when they fall
// on the same date and share at least one minute, so back-to-back meetings
// (one ending at 15:00, the next starting at 15:00) never conflict.
//
// Dates are compared as canonical YYYY-MM-DD strings in one implicit zone.
package timeslot

import (
	"fmt"
	"regexp"
	"strconv"
)

var clockRE = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)

// Slot is a half-open meeting interval on one date.
type Slot struct {
	Date  string // YYYY-MM-DD
	Start int    // minutes since midnight, inclusive
	End   int    // minutes since midnight, exclusive
}

// ParseClock converts a strict 24-hour "HH:MM" string to minutes since midnight.
func ParseClock(s string) (int, error) {
	if !clockRE.MatchString(s) {
		return 0, fmt.Errorf("invalid time %q: must be HH:MM (24-hour)", s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// New builds a Slot from a date and two clock strings.
// The end must be strictly after the start.
func New(date, start, end string) (Slot, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Slot{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Slot{}, err
	}
	if e <= s {
		return Slot{}, fmt.Errorf("end time must be later than start time")
	}
	return Slot{Date: date, Start: s, End: e}, nil
}

// Overlaps reports whether a and b share any minute on the same date.
// It is symmetric. A slot overlaps itself; callers exclude self-comparison.
func Overlaps(a, b Slot) bool {
	return a.Date == b.Date && a.Start < b.End && b.Start < a.End
}

// Conflicts returns every item whose slot overlaps candidate, in input order.
// Items whose slot cannot be derived (slotOf returns ok=false) are skipped.
func Conflicts[T any](candidate Slot, items []T, slotOf func(T) (Slot, bool)) []T {
	var out []T
	for _, it := range items {
		s, ok := slotOf(it)
		if !ok {
			continue
		}
		if Overlaps(candidate, s) {
			out = append(out, it)
		}
	}
	return out
}

// First returns the first item overlapping candidate.
func First[T any](candidate Slot, items []T, slotOf func(T) (Slot, bool)) (T, bool) {
	for _, it := range items {
		s, ok := slotOf(it)
		if ok && Overlaps(candidate, s) {
			return it, true
		}
	}
	var zero T
	return zero, false
}
