/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package condition

import (
	"fmt"
	"math"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
)

// Quantity names a derived value a Boundary constrains.
type Quantity string

const (
	QuantityAltitude         Quantity = "altitude"
	QuantityAzimuth          Quantity = "azimuth"
	QuantityAirmass          Quantity = "airmass"
	QuantityHourAngle        Quantity = "hour_angle"
	QuantitySunAltitude      Quantity = "sun_altitude"
	QuantityMoonAltitude     Quantity = "moon_altitude"
	QuantityMoonIllumination Quantity = "moon_illumination"
	QuantityMoonSeparation   Quantity = "moon_separation"
	QuantitySunSeparation    Quantity = "sun_separation"
)

// needsTarget reports whether the quantity depends on a pointing.
func (q Quantity) needsTarget() bool {
	switch q {
	case QuantitySunAltitude, QuantityMoonAltitude, QuantityMoonIllumination:
		return false
	default:
		return true
	}
}

func (q Quantity) valid() bool {
	switch q {
	case QuantityAltitude, QuantityAzimuth, QuantityAirmass, QuantityHourAngle,
		QuantitySunAltitude, QuantityMoonAltitude, QuantityMoonIllumination,
		QuantityMoonSeparation, QuantitySunSeparation:
		return true
	}
	return false
}

// measure computes q. target must be non-nil when q.needsTarget().
func measure(q Quantity, eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) (float64, error) {
	switch q {
	case QuantitySunAltitude:
		pos, err := eph.SunPosition(at, site)
		return pos.Alt, err
	case QuantityMoonAltitude:
		pos, err := eph.MoonPosition(at, site)
		return pos.Alt, err
	case QuantityMoonIllumination:
		return eph.MoonIllumination(at)
	case QuantityHourAngle:
		ra, _ := target.At(at)
		return astro.HourAngle(at, site, ra), nil
	}

	pos, err := eph.Position(*target, at, site)
	if err != nil {
		return 0, err
	}
	switch q {
	case QuantityAltitude:
		return pos.Alt, nil
	case QuantityAzimuth:
		return pos.Az, nil
	case QuantityAirmass:
		return eph.Airmass(pos.Alt)
	case QuantityMoonSeparation:
		moon, err := eph.MoonPosition(at, site)
		if err != nil {
			return 0, err
		}
		return astro.Separation(pos, moon), nil
	case QuantitySunSeparation:
		sun, err := eph.SunPosition(at, site)
		if err != nil {
			return 0, err
		}
		return astro.Separation(pos, sun), nil
	}
	return 0, fmt.Errorf("quantity %q: %w", q, ErrUnknownKind)
}

// Boundary bounds a single derived quantity. It is the generic form the
// specialised conditions refine.
type Boundary struct {
	Quantity Quantity
	Range    Range
}

func (c *Boundary) Kind() string { return "boundary" }

func (c *Boundary) Validate() error {
	if !c.Quantity.valid() {
		return fmt.Errorf("boundary quantity %q: %w", c.Quantity, ErrUnknownKind)
	}
	return c.Range.validate("boundary")
}

func (c *Boundary) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	if target == nil && c.Quantity.needsTarget() {
		return pass
	}
	v, err := measure(c.Quantity, eph, site, at, target)
	if err != nil || !c.Range.Contains(v) {
		return fail
	}
	return pass
}

func (c *Boundary) String() string {
	return format(c.Kind(), kv{"quantity", string(c.Quantity)}, rangeKV("min", "max", c.Range)...)
}

// Frame selects the coordinate system of a Coordinate condition.
type Frame string

const (
	FrameICRS  Frame = "icrs"
	FrameAltAz Frame = "altaz"
)

// Coordinate restricts the target to a box in ICRS (RA/Dec) or horizontal
// (Az/Alt) coordinates.
type Coordinate struct {
	Frame     Frame
	Longitude Range // RA or azimuth, degrees
	Latitude  Range // Dec or altitude, degrees
}

func (c *Coordinate) Kind() string { return "coordinate" }

func (c *Coordinate) Validate() error {
	if c.Frame != FrameICRS && c.Frame != FrameAltAz {
		return fmt.Errorf("coordinate frame %q: %w", c.Frame, ErrUnknownKind)
	}
	if err := c.Longitude.validate("coordinate longitude"); err != nil {
		return err
	}
	return c.Latitude.validate("coordinate latitude")
}

func (c *Coordinate) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	if target == nil {
		return pass
	}
	var lon, lat float64
	if c.Frame == FrameAltAz {
		pos, err := eph.Position(*target, at, site)
		if err != nil {
			return fail
		}
		lon, lat = pos.Az, pos.Alt
	} else {
		lon, lat = target.At(at)
	}
	if c.Longitude.Contains(lon) && c.Latitude.Contains(lat) {
		return pass
	}
	return fail
}

func (c *Coordinate) String() string {
	pairs := append(rangeKV("lon_min", "lon_max", c.Longitude), rangeKV("lat_min", "lat_max", c.Latitude)...)
	return format(c.Kind(), kv{"frame", string(c.Frame)}, pairs...)
}

// HourAngle bounds the target's hour angle in hours, wrapped to [-12, 12).
type HourAngle struct {
	Range Range
}

func (c *HourAngle) Kind() string { return "hour_angle" }

func (c *HourAngle) Validate() error { return c.Range.validate("hour_angle") }

func (c *HourAngle) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	if target == nil {
		return pass
	}
	ha, _ := measure(QuantityHourAngle, eph, site, at, target)
	if c.Range.Contains(ha) {
		return pass
	}
	return fail
}

func (c *HourAngle) String() string {
	return format(c.Kind(), kv{}, rangeKV("min", "max", c.Range)...)
}

// Airmass bounds the target's airmass. The score is the normalised distance
// below the ceiling, (max - am) / (max - min), with min taken as 1 when open.
type Airmass struct {
	Range Range
}

func (c *Airmass) Kind() string { return "airmass" }

func (c *Airmass) Validate() error { return c.Range.validate("airmass") }

func (c *Airmass) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	if target == nil {
		return pass
	}
	am, err := measure(QuantityAirmass, eph, site, at, target)
	if err != nil || !c.Range.Contains(am) {
		return fail
	}
	lo := c.Range.Min
	if math.IsInf(lo, -1) {
		lo = 1
	}
	if math.IsInf(c.Range.Max, 1) || c.Range.Max <= lo {
		return pass
	}
	return graded((c.Range.Max - am) / (c.Range.Max - lo))
}

func (c *Airmass) String() string {
	return format(c.Kind(), kv{}, rangeKV("min", "max", c.Range)...)
}

// Sun bounds the Sun's altitude and its separation from the target.
type Sun struct {
	Separation Range
	Altitude   Range
}

func (c *Sun) Kind() string { return "sun" }

func (c *Sun) Validate() error {
	if err := c.Separation.validate("sun separation"); err != nil {
		return err
	}
	return c.Altitude.validate("sun altitude")
}

func (c *Sun) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	sun, err := eph.SunPosition(at, site)
	if err != nil || !c.Altitude.Contains(sun.Alt) {
		return fail
	}
	if target == nil || c.Separation == Any() {
		return pass
	}
	pos, err := eph.Position(*target, at, site)
	if err != nil || !c.Separation.Contains(astro.Separation(pos, sun)) {
		return fail
	}
	return pass
}

func (c *Sun) String() string {
	pairs := append(rangeKV("min_sep", "max_sep", c.Separation), rangeKV("min_alt", "max_alt", c.Altitude)...)
	return format(c.Kind(), kv{}, pairs...)
}

// Moon bounds the Moon's altitude, illumination and separation from the
// target. The score grows with separation across the allowed range.
type Moon struct {
	Separation   Range
	Altitude     Range
	Illumination Range
}

func (c *Moon) Kind() string { return "moon" }

func (c *Moon) Validate() error {
	if err := c.Separation.validate("moon separation"); err != nil {
		return err
	}
	if err := c.Altitude.validate("moon altitude"); err != nil {
		return err
	}
	return c.Illumination.validate("moon illumination")
}

func (c *Moon) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	moon, err := eph.MoonPosition(at, site)
	if err != nil || !c.Altitude.Contains(moon.Alt) {
		return fail
	}
	if c.Illumination != Any() {
		illum, err := eph.MoonIllumination(at)
		if err != nil || !c.Illumination.Contains(illum) {
			return fail
		}
	}
	if target == nil {
		return pass
	}
	pos, err := eph.Position(*target, at, site)
	if err != nil {
		return fail
	}
	sep := astro.Separation(pos, moon)
	if !c.Separation.Contains(sep) {
		return fail
	}

	lo, hi := math.Max(c.Separation.Min, 0), math.Min(c.Separation.Max, 180)
	if hi <= lo {
		return pass
	}
	return graded((sep - lo) / (hi - lo))
}

func (c *Moon) String() string {
	pairs := append(rangeKV("min_sep", "max_sep", c.Separation), rangeKV("min_alt", "max_alt", c.Altitude)...)
	pairs = append(pairs, rangeKV("min_illum", "max_illum", c.Illumination)...)
	return format(c.Kind(), kv{}, pairs...)
}

// Time restricts observation to an absolute closed interval. A zero Start or
// End leaves that side open.
type Time struct {
	Start time.Time
	End   time.Time
}

func (c *Time) Kind() string { return "time" }

func (c *Time) Validate() error {
	if !c.Start.IsZero() && !c.End.IsZero() && c.Start.After(c.End) {
		return fmt.Errorf("time: start %s after end %s: %w",
			c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339), ErrInvalidBound)
	}
	return nil
}

func (c *Time) Evaluate(_ astro.Ephemeris, _ astro.Site, at time.Time, _ *astro.Target) Result {
	if !c.Start.IsZero() && at.Before(c.Start) {
		return fail
	}
	if !c.End.IsZero() && at.After(c.End) {
		return fail
	}
	return pass
}

func (c *Time) String() string {
	var pairs []kv
	if !c.Start.IsZero() {
		pairs = append(pairs, kv{"start", c.Start.UTC().Format(time.RFC3339Nano)})
	}
	if !c.End.IsZero() {
		pairs = append(pairs, kv{"end", c.End.UTC().Format(time.RFC3339Nano)})
	}
	return format(c.Kind(), kv{}, pairs...)
}
