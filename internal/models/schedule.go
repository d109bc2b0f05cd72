/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOverlap indicates an entry starting before the previous one ended.
	ErrOverlap = errors.New("schedule entries overlap")

	// ErrOutsideWindow indicates an entry extending past the window.
	ErrOutsideWindow = errors.New("entry outside schedule window")

	// ErrSealed indicates a mutation of a finished schedule.
	ErrSealed = errors.New("schedule is sealed")
)

// Window is the night's schedulable span [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Valid reports whether the window has positive length.
func (w Window) Valid() bool { return w.End.After(w.Start) }

// Entry is one placed block.
type Entry struct {
	Block *Block
	Start time.Time
	End   time.Time
}

func (e Entry) Duration() time.Duration { return e.End.Sub(e.Start) }

// Schedule is a contiguous, time-ordered sequence of entries covering a
// window. Idle time is an explicit unallocated entry.
type Schedule struct {
	RunID   string
	Window  Window
	Entries []Entry

	gaps   int
	sealed bool
}

// NewSchedule returns an empty schedule for the window.
func NewSchedule(runID string, w Window) *Schedule {
	return &Schedule{RunID: runID, Window: w}
}

// Cursor is the end of the last entry, or the window start.
func (s *Schedule) Cursor() time.Time {
	if len(s.Entries) == 0 {
		return s.Window.Start
	}
	return s.Entries[len(s.Entries)-1].End
}

// Append places b at [start, end), inserting an unallocated entry for any
// idle time since the cursor.
func (s *Schedule) Append(b *Block, start, end time.Time) error {
	if s.sealed {
		return ErrSealed
	}
	cursor := s.Cursor()
	switch {
	case start.Before(cursor):
		return fmt.Errorf("block %s at %s before cursor %s: %w", b.ID, start.Format(time.RFC3339), cursor.Format(time.RFC3339), ErrOverlap)
	case !start.Before(end):
		return fmt.Errorf("block %s: empty span: %w", b.ID, ErrInvalidBlock)
	case end.After(s.Window.End):
		return fmt.Errorf("block %s ends %s after %s: %w", b.ID, end.Format(time.RFC3339), s.Window.End.Format(time.RFC3339), ErrOutsideWindow)
	}
	if start.After(cursor) {
		s.appendGap(cursor, start)
	}
	s.Entries = append(s.Entries, Entry{Block: b, Start: start, End: end})
	return nil
}

// Fill closes the schedule to the window end with an unallocated entry.
func (s *Schedule) Fill() {
	if s.sealed {
		return
	}
	if cursor := s.Cursor(); cursor.Before(s.Window.End) {
		s.appendGap(cursor, s.Window.End)
	}
}

func (s *Schedule) appendGap(start, end time.Time) {
	s.gaps++
	id := fmt.Sprintf("%s/unallocated-%03d", s.RunID, s.gaps)
	s.Entries = append(s.Entries, Entry{Block: NewUnallocated(id, start, end), Start: start, End: end})
}

// Seal freezes the schedule.
func (s *Schedule) Seal() { s.sealed = true }

func (s *Schedule) Sealed() bool { return s.sealed }

// Placed returns the submitted blocks in the schedule in order.
func (s *Schedule) Placed() []*Block {
	var out []*Block
	for _, e := range s.Entries {
		if e.Block.Kind.Submittable() {
			out = append(out, e.Block)
		}
	}
	return out
}

// Idle returns the total unallocated time.
func (s *Schedule) Idle() time.Duration {
	var total time.Duration
	for _, e := range s.Entries {
		if e.Block.Kind == BlockUnallocated {
			total += e.Duration()
		}
	}
	return total
}
