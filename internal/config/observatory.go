/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/transition"
)

// ErrInvalidObservatory indicates an unusable observatory file.
var ErrInvalidObservatory = errors.New("invalid observatory configuration")

// Observatory is the static description of a site and its instrument.
type Observatory struct {
	Site astro.Site `yaml:"site"`
	// SlewRate in degrees per second; zero disables slew costs.
	SlewRate float64       `yaml:"slew_rate"`
	Settle   time.Duration `yaml:"settle_time"`
	// Reconfiguration maps an instrument setting to its change time.
	Reconfiguration map[string]transition.Reconfiguration `yaml:"instrument_reconfiguration_times"`
}

// LoadObservatory reads an observatory YAML file.
func LoadObservatory(path string) (*Observatory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observatory file: %w", err)
	}
	defer f.Close()
	return ParseObservatory(f)
}

// ParseObservatory decodes and validates an observatory document.
func ParseObservatory(r io.Reader) (*Observatory, error) {
	var obs Observatory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&obs); err != nil {
		return nil, fmt.Errorf("decode observatory: %v: %w", err, ErrInvalidObservatory)
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return &obs, nil
}

// Validate checks the site and cost parameters.
func (o *Observatory) Validate() error {
	s := o.Site
	switch {
	case s.Latitude < -90 || s.Latitude > 90:
		return fmt.Errorf("latitude %v: %w", s.Latitude, ErrInvalidObservatory)
	case s.Longitude < -180 || s.Longitude > 180:
		return fmt.Errorf("longitude %v: %w", s.Longitude, ErrInvalidObservatory)
	case o.SlewRate < 0:
		return fmt.Errorf("slew rate %v: %w", o.SlewRate, ErrInvalidObservatory)
	case o.Settle < 0:
		return fmt.Errorf("settle time %s: %w", o.Settle, ErrInvalidObservatory)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", s.Timezone, ErrInvalidObservatory)
		}
	}
	for key, r := range o.Reconfiguration {
		if r.Default < 0 {
			return fmt.Errorf("reconfiguration %s: negative default: %w", key, ErrInvalidObservatory)
		}
		for pair, d := range r.Pairs {
			if _, _, err := transition.ParsePairKey(pair); err != nil {
				return fmt.Errorf("reconfiguration %s: %v: %w", key, err, ErrInvalidObservatory)
			}
			if d < 0 {
				return fmt.Errorf("reconfiguration %s %s: negative time: %w", key, pair, ErrInvalidObservatory)
			}
		}
	}
	return nil
}

// CostModel builds the transition model; maxTransition caps each transition
// when positive.
func (o *Observatory) CostModel(maxTransition time.Duration) *transition.Model {
	return &transition.Model{
		SlewRate:        o.SlewRate,
		Settle:          o.Settle,
		Reconfiguration: o.Reconfiguration,
		MaxCost:         maxTransition,
	}
}
