/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package astro

import "time"

// Static is a function-backed Ephemeris. Nil functions fall back to a fixed
// sky: every target at the zenith, Sun and Moon at the nadir, new Moon.
type Static struct {
	PositionFunc     func(target Target, at time.Time) (AltAz, error)
	SunFunc          func(at time.Time) (AltAz, error)
	MoonFunc         func(at time.Time) (AltAz, error)
	IlluminationFunc func(at time.Time) (float64, error)
	AirmassFunc      func(altitude float64) (float64, error)
	TwilightFunc     func(date time.Time, kind TwilightKind) (Twilight, error)
}

func (s *Static) Position(target Target, at time.Time, _ Site) (AltAz, error) {
	if s.PositionFunc != nil {
		return s.PositionFunc(target, at)
	}
	return AltAz{Alt: 90}, nil
}

func (s *Static) SunPosition(at time.Time, _ Site) (AltAz, error) {
	if s.SunFunc != nil {
		return s.SunFunc(at)
	}
	return AltAz{Alt: -90}, nil
}

func (s *Static) MoonPosition(at time.Time, _ Site) (AltAz, error) {
	if s.MoonFunc != nil {
		return s.MoonFunc(at)
	}
	return AltAz{Alt: -90, Az: 180}, nil
}

func (s *Static) MoonIllumination(at time.Time) (float64, error) {
	if s.IlluminationFunc != nil {
		return s.IlluminationFunc(at)
	}
	return 0, nil
}

func (s *Static) Airmass(altitude float64) (float64, error) {
	if s.AirmassFunc != nil {
		return s.AirmassFunc(altitude)
	}
	return PickeringAirmass(altitude)
}

func (s *Static) TwilightTimes(date time.Time, site Site, kind TwilightKind) (Twilight, error) {
	if s.TwilightFunc != nil {
		return s.TwilightFunc(date, kind)
	}
	return FindTwilight(s, date, site, kind)
}
