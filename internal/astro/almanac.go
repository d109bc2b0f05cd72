/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package astro

import (
	"fmt"
	"math"
	"time"
)

// Almanac is a low-precision analytic Ephemeris. Sun positions are good to
// about 0.01 degrees and Moon positions to a few tenths of a degree (no
// topocentric parallax), which is enough to decide observability at the
// scheduler's resolution.
type Almanac struct{}

// NewAlmanac returns the analytic ephemeris.
func NewAlmanac() *Almanac {
	return &Almanac{}
}

// Position returns the target's alt/az with proper motion applied.
func (a *Almanac) Position(target Target, at time.Time, site Site) (AltAz, error) {
	ra, dec := target.At(at)
	return EquatorialToHorizontal(ra, dec, at, site), nil
}

// SunPosition returns the Sun's alt/az.
func (a *Almanac) SunPosition(at time.Time, site Site) (AltAz, error) {
	ra, dec, _ := sunEquatorial(at)
	return EquatorialToHorizontal(ra, dec, at, site), nil
}

// MoonPosition returns the Moon's geocentric alt/az.
func (a *Almanac) MoonPosition(at time.Time, site Site) (AltAz, error) {
	ra, dec, _, _ := moonEquatorial(at)
	return EquatorialToHorizontal(ra, dec, at, site), nil
}

// MoonIllumination returns the illuminated fraction of the Moon's disk.
func (a *Almanac) MoonIllumination(at time.Time) (float64, error) {
	_, _, sunLon := sunEquatorial(at)
	_, _, moonLon, moonLat := moonEquatorial(at)
	cosElongation := math.Cos(deg2rad(moonLat)) * math.Cos(deg2rad(moonLon-sunLon))
	return clamp((1-cosElongation)/2, 0, 1), nil
}

// Airmass returns the Pickering (2002) airmass for an apparent altitude.
func (a *Almanac) Airmass(altitude float64) (float64, error) {
	return PickeringAirmass(altitude)
}

// TwilightTimes finds the evening and morning crossings of the twilight's Sun
// altitude for the night starting at local noon of date.
func (a *Almanac) TwilightTimes(date time.Time, site Site, kind TwilightKind) (Twilight, error) {
	return FindTwilight(a, date, site, kind)
}

// PickeringAirmass implements X = 1/sin(h + 244/(165 + 47 h^1.1)). Altitudes
// at or below the horizon have no defined airmass.
func PickeringAirmass(altitude float64) (float64, error) {
	if altitude <= 0 || math.IsNaN(altitude) {
		return 0, fmt.Errorf("airmass at altitude %.2f: %w", altitude, ErrUnavailable)
	}
	h := altitude + 244/(165+47*math.Pow(altitude, 1.1))
	return 1 / math.Sin(deg2rad(h)), nil
}

// LocalNoon returns noon at the site on the calendar date of d.
func LocalNoon(d time.Time, site Site) time.Time {
	loc := site.Location()
	local := d.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, loc)
}

const (
	twilightScanStep = 10 * time.Minute
	twilightAccuracy = time.Second
)

// FindTwilight scans the Sun's altitude from local noon for 24 hours and
// refines both crossings by bisection.
func FindTwilight(eph Ephemeris, date time.Time, site Site, kind TwilightKind) (Twilight, error) {
	threshold := kind.SunAltitude()
	start := LocalNoon(date, site)
	end := start.Add(24 * time.Hour)

	above := func(t time.Time) (bool, error) {
		pos, err := eph.SunPosition(t, site)
		if err != nil {
			return false, err
		}
		return pos.Alt > threshold, nil
	}

	out := Twilight{Kind: kind}
	prev, err := above(start)
	if err != nil {
		return out, err
	}
	for t := start.Add(twilightScanStep); !t.After(end); t = t.Add(twilightScanStep) {
		cur, err := above(t)
		if err != nil {
			return out, err
		}
		if prev && !cur && out.Evening.IsZero() {
			out.Evening, err = bisect(above, t.Add(-twilightScanStep), t)
			if err != nil {
				return out, err
			}
		}
		if !prev && cur && !out.Evening.IsZero() && out.Morning.IsZero() {
			out.Morning, err = bisect(above, t.Add(-twilightScanStep), t)
			if err != nil {
				return out, err
			}
		}
		prev = cur
	}

	if out.Evening.IsZero() || out.Morning.IsZero() {
		return out, fmt.Errorf("%s twilight on %s: %w", kind, start.Format("2006-01-02"), ErrUnavailable)
	}
	return out, nil
}

// bisect narrows a state change of fn inside [lo, hi] to twilightAccuracy.
func bisect(fn func(time.Time) (bool, error), lo, hi time.Time) (time.Time, error) {
	loState, err := fn(lo)
	if err != nil {
		return time.Time{}, err
	}
	for hi.Sub(lo) > twilightAccuracy {
		mid := lo.Add(hi.Sub(lo) / 2)
		state, err := fn(mid)
		if err != nil {
			return time.Time{}, err
		}
		if state == loState {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Truncate(time.Second), nil
}

// sunEquatorial returns RA, Dec and ecliptic longitude of the Sun in degrees.
func sunEquatorial(at time.Time) (ra, dec, lon float64) {
	n := JulianDate(at) - 2451545.0
	l := 280.460 + 0.9856474*n
	g := deg2rad(357.528 + 0.9856003*n)
	lon = normalizeDegrees(l + 1.915*math.Sin(g) + 0.020*math.Sin(2*g))
	eps := deg2rad(23.439 - 0.0000004*n)

	lam := deg2rad(lon)
	ra = normalizeDegrees(rad2deg(math.Atan2(math.Cos(eps)*math.Sin(lam), math.Cos(lam))))
	dec = rad2deg(math.Asin(math.Sin(eps) * math.Sin(lam)))
	return ra, dec, lon
}

// moonEquatorial returns RA, Dec and ecliptic longitude/latitude of the Moon
// in degrees.
func moonEquatorial(at time.Time) (ra, dec, lon, lat float64) {
	d := JulianDate(at) - 2451545.0
	meanLon := 218.316 + 13.176396*d
	anomaly := deg2rad(134.963 + 13.064993*d)
	argLat := deg2rad(93.272 + 13.229350*d)

	lon = normalizeDegrees(meanLon + 6.289*math.Sin(anomaly))
	lat = 5.128 * math.Sin(argLat)
	eps := deg2rad(23.439 - 0.0000004*d)

	lam := deg2rad(lon)
	beta := deg2rad(lat)
	ra = normalizeDegrees(rad2deg(math.Atan2(
		math.Sin(lam)*math.Cos(eps)-math.Tan(beta)*math.Sin(eps),
		math.Cos(lam),
	)))
	dec = rad2deg(math.Asin(clamp(
		math.Sin(beta)*math.Cos(eps)+math.Cos(beta)*math.Sin(eps)*math.Sin(lam),
		-1, 1,
	)))
	return ra, dec, lon, lat
}
