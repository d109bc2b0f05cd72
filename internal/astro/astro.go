/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package astro defines the ephemeris service the scheduler consumes.
//
// Every function here is pure: results depend only on the arguments. An
// Ephemeris that cannot answer (target never rises, Sun never reaches the
// requested altitude) returns ErrUnavailable and callers treat that as
// infeasibility rather than a failure to retry.
package astro

import (
	"errors"
	"math"
	"time"
)

// ErrUnavailable indicates the ephemeris has no defined answer for the inputs.
var ErrUnavailable = errors.New("ephemeris unavailable")

// Site is an observatory location.
type Site struct {
	Name      string  `yaml:"name" json:"name"`
	Longitude float64 `yaml:"longitude" json:"longitude"` // degrees, east positive
	Latitude  float64 `yaml:"latitude" json:"latitude"`   // degrees
	Elevation float64 `yaml:"elevation" json:"elevation"` // meters
	Timezone  string  `yaml:"timezone" json:"timezone"`
}

// Location returns the site's time zone, falling back to UTC.
func (s Site) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Target is a sidereal or slowly moving sky position.
type Target struct {
	Name  string    `yaml:"name" json:"name"`
	RA    float64   `yaml:"ra" json:"ra"`       // degrees
	Dec   float64   `yaml:"dec" json:"dec"`     // degrees
	PMRA  float64   `yaml:"pm_ra" json:"pm_ra"` // arcsec/hour, includes cos(dec)
	PMDec float64   `yaml:"pm_dec" json:"pm_dec"`
	Epoch time.Time `yaml:"epoch" json:"epoch"`
}

// NonSidereal reports whether the target carries a proper motion.
func (t Target) NonSidereal() bool {
	return t.PMRA != 0 || t.PMDec != 0
}

// At returns the target's equatorial position at the given instant with
// proper motion applied from Epoch.
func (t Target) At(at time.Time) (ra, dec float64) {
	if !t.NonSidereal() || t.Epoch.IsZero() {
		return t.RA, t.Dec
	}
	hours := at.Sub(t.Epoch).Hours()
	dec = t.Dec + t.PMDec*hours/3600
	cosDec := math.Cos(deg2rad(t.Dec))
	ra = t.RA
	if cosDec > 1e-9 {
		ra += t.PMRA * hours / 3600 / cosDec
	}
	return normalizeDegrees(ra), clamp(dec, -90, 90)
}

// AltAz is a horizontal position in degrees. Azimuth runs north through east.
type AltAz struct {
	Alt float64 `json:"alt"`
	Az  float64 `json:"az"`
}

// TwilightKind selects the Sun altitude that defines a twilight.
type TwilightKind string

const (
	TwilightSunset       TwilightKind = "sunset"
	TwilightCivil        TwilightKind = "civil"
	TwilightNautical     TwilightKind = "nautical"
	TwilightAstronomical TwilightKind = "astronomical"
)

// SunAltitude returns the Sun's altitude in degrees for the twilight kind.
func (k TwilightKind) SunAltitude() float64 {
	switch k {
	case TwilightCivil:
		return -6
	case TwilightNautical:
		return -12
	case TwilightAstronomical:
		return -18
	default:
		return -0.833
	}
}

// Twilight is the evening and following morning crossing of a Sun altitude.
type Twilight struct {
	Kind    TwilightKind `json:"kind"`
	Evening time.Time    `json:"evening"`
	Morning time.Time    `json:"morning"`
}

// Ephemeris is the astronomy service the scheduling core calls.
type Ephemeris interface {
	Position(target Target, at time.Time, site Site) (AltAz, error)
	SunPosition(at time.Time, site Site) (AltAz, error)
	MoonPosition(at time.Time, site Site) (AltAz, error)
	MoonIllumination(at time.Time) (float64, error)
	Airmass(altitude float64) (float64, error)
	TwilightTimes(date time.Time, site Site, kind TwilightKind) (Twilight, error)
}

// Separation returns the great-circle distance between two horizontal
// positions in degrees.
func Separation(a, b AltAz) float64 {
	return angularDistance(a.Az, a.Alt, b.Az, b.Alt)
}

// EquatorialSeparation returns the great-circle distance between two
// equatorial positions in degrees.
func EquatorialSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	return angularDistance(ra1, dec1, ra2, dec2)
}

func angularDistance(lon1, lat1, lon2, lat2 float64) float64 {
	// haversine keeps precision for small separations
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)
	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	return rad2deg(2 * math.Asin(math.Min(1, math.Sqrt(h))))
}

// JulianDate converts an instant to a Julian date.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + 2440587.5
}

// LocalSiderealTime returns the local mean sidereal time in degrees.
func LocalSiderealTime(t time.Time, longitude float64) float64 {
	d := JulianDate(t) - 2451545.0
	gmst := 280.46061837 + 360.98564736629*d
	return normalizeDegrees(gmst + longitude)
}

// HourAngle returns the hour angle of a right ascension in hours, wrapped to
// [-12, 12).
func HourAngle(t time.Time, site Site, ra float64) float64 {
	ha := LocalSiderealTime(t, site.Longitude) - ra
	ha = math.Mod(ha+180, 360)
	if ha < 0 {
		ha += 360
	}
	return (ha - 180) / 15
}

// EquatorialToHorizontal converts an equatorial position to alt/az.
func EquatorialToHorizontal(ra, dec float64, t time.Time, site Site) AltAz {
	ha := deg2rad(HourAngle(t, site, ra) * 15)
	lat := deg2rad(site.Latitude)
	d := deg2rad(dec)

	sinAlt := math.Sin(lat)*math.Sin(d) + math.Cos(lat)*math.Cos(d)*math.Cos(ha)
	alt := math.Asin(clamp(sinAlt, -1, 1))
	az := math.Atan2(-math.Cos(d)*math.Sin(ha), math.Sin(d)*math.Cos(lat)-math.Cos(d)*math.Cos(ha)*math.Sin(lat))

	return AltAz{Alt: rad2deg(alt), Az: normalizeDegrees(rad2deg(az))}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
