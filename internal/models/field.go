/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
)

// ErrInvalidField indicates a field whose exposure parameters are unusable.
var ErrInvalidField = errors.New("invalid field")

// FieldKind enumerates what an observation does.
type FieldKind string

const (
	FieldLight      FieldKind = "light"
	FieldAutofocus  FieldKind = "autofocus"
	FieldDark       FieldKind = "dark"
	FieldFlat       FieldKind = "flat"
	FieldTransition FieldKind = "transition"
)

// Calibration reports whether the kind is a calibration frame type.
func (k FieldKind) Calibration() bool {
	return k == FieldDark || k == FieldFlat || k == FieldAutofocus
}

// Field describes the observational action of a block.
type Field interface {
	Kind() FieldKind
	// Target is nil for fields without a pointing.
	Target() *astro.Target
	TotalDuration() time.Duration
	RequiredConfiguration() InstrumentConfiguration
	Validate() error
}

// Exposure is the shared exposure description of submitted fields.
type Exposure struct {
	Duration time.Duration           `json:"duration"`
	Overhead time.Duration           `json:"overhead"` // readout and bookkeeping per frame
	Repeat   int                     `json:"repeat"`
	Config   InstrumentConfiguration `json:"-"`
}

// TotalDuration is (duration + overhead) x repeat.
func (e Exposure) TotalDuration() time.Duration {
	return (e.Duration + e.Overhead) * time.Duration(e.Repeat)
}

func (e Exposure) RequiredConfiguration() InstrumentConfiguration { return e.Config }

func (e Exposure) validate(kind FieldKind, allowZero bool) error {
	switch {
	case e.Duration < 0 || (!allowZero && e.Duration == 0):
		return fmt.Errorf("%s: exposure %s: %w", kind, e.Duration, ErrInvalidField)
	case e.Overhead < 0:
		return fmt.Errorf("%s: overhead %s: %w", kind, e.Overhead, ErrInvalidField)
	case e.Repeat < 1:
		return fmt.Errorf("%s: repeat %d: %w", kind, e.Repeat, ErrInvalidField)
	case e.TotalDuration() <= 0:
		return fmt.Errorf("%s: zero total duration: %w", kind, ErrInvalidField)
	}
	return e.Config.Validate()
}

// LightField is a science exposure sequence on a target.
type LightField struct {
	Exposure
	Pointing astro.Target
}

func (f *LightField) Kind() FieldKind       { return FieldLight }
func (f *LightField) Target() *astro.Target { return &f.Pointing }

func (f *LightField) Validate() error {
	if f.Pointing.Dec < -90 || f.Pointing.Dec > 90 {
		return fmt.Errorf("light: dec %g out of range: %w", f.Pointing.Dec, ErrInvalidField)
	}
	return f.Exposure.validate(FieldLight, false)
}

// AutofocusField runs a focus sweep, optionally on a chosen star. Repeat is
// the number of focus positions.
type AutofocusField struct {
	Exposure
	Pointing *astro.Target
	StepSize int // focuser steps between positions
}

func (f *AutofocusField) Kind() FieldKind       { return FieldAutofocus }
func (f *AutofocusField) Target() *astro.Target { return f.Pointing }

func (f *AutofocusField) Validate() error {
	if f.StepSize < 0 {
		return fmt.Errorf("autofocus: step size %d: %w", f.StepSize, ErrInvalidField)
	}
	return f.Exposure.validate(FieldAutofocus, false)
}

// DarkField takes shuttered frames. Zero-length exposures are bias frames.
type DarkField struct {
	Exposure
}

func (f *DarkField) Kind() FieldKind       { return FieldDark }
func (f *DarkField) Target() *astro.Target { return nil }
func (f *DarkField) Validate() error       { return f.Exposure.validate(FieldDark, true) }

// FlatField takes flat-field frames on a screen or the twilight sky.
type FlatField struct {
	Exposure
}

func (f *FlatField) Kind() FieldKind       { return FieldFlat }
func (f *FlatField) Target() *astro.Target { return nil }
func (f *FlatField) Validate() error       { return f.Exposure.validate(FieldFlat, false) }

// TransitionField is synthesized between consecutive placements to account
// for slewing and reconfiguring.
type TransitionField struct {
	From        *astro.Target
	To          *astro.Target
	FromConfig  InstrumentConfiguration
	ToConfig    InstrumentConfiguration
	Slew        time.Duration
	Reconfigure time.Duration
}

func (f *TransitionField) Kind() FieldKind       { return FieldTransition }
func (f *TransitionField) Target() *astro.Target { return f.To }

func (f *TransitionField) TotalDuration() time.Duration {
	return f.Slew + f.Reconfigure
}

func (f *TransitionField) RequiredConfiguration() InstrumentConfiguration { return f.ToConfig }

func (f *TransitionField) Validate() error {
	if f.Slew < 0 || f.Reconfigure < 0 {
		return fmt.Errorf("transition: negative cost: %w", ErrInvalidField)
	}
	return nil
}
