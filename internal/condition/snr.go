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

// Default photometric parameters for SNR when the text form omits them.
const (
	DefaultZeroPoint  = 25.0 // mag giving 1 e-/s
	DefaultSky        = 21.0 // mag/arcsec^2, dark sky
	DefaultAperture   = 5.0  // pixels, radius
	DefaultPixelArea  = 1.0  // arcsec^2 per pixel
	DefaultReadNoise  = 10.0 // e- rms
	DefaultExtinction = 0.2  // mag per airmass

	// full Moon at the zenith brightens the sky by about 2.3 mag
	moonBrightening = 7.5
)

// SNR requires a minimum signal-to-noise ratio for a point source of the
// given magnitude in a single exposure. The target is dimmed by extinction
// and the sky brightened by the Moon.
type SNR struct {
	Min        float64
	Magnitude  float64
	Exposure   time.Duration
	ZeroPoint  float64
	Sky        float64
	Aperture   float64
	PixelArea  float64
	ReadNoise  float64
	Extinction float64
}

// NewSNR returns an SNR condition with default photometric parameters.
func NewSNR(min, magnitude float64, exposure time.Duration) *SNR {
	return &SNR{
		Min:        min,
		Magnitude:  magnitude,
		Exposure:   exposure,
		ZeroPoint:  DefaultZeroPoint,
		Sky:        DefaultSky,
		Aperture:   DefaultAperture,
		PixelArea:  DefaultPixelArea,
		ReadNoise:  DefaultReadNoise,
		Extinction: DefaultExtinction,
	}
}

func (c *SNR) Kind() string { return "snr" }

func (c *SNR) Validate() error {
	switch {
	case c.Min < 0 || math.IsNaN(c.Min):
		return fmt.Errorf("snr: min %g: %w", c.Min, ErrInvalidBound)
	case c.Exposure <= 0:
		return fmt.Errorf("snr: exposure %s: %w", c.Exposure, ErrInvalidBound)
	case c.Aperture <= 0 || c.PixelArea <= 0 || c.ReadNoise < 0:
		return fmt.Errorf("snr: non-positive detector parameter: %w", ErrInvalidBound)
	}
	return nil
}

// Ratio computes the expected SNR for the given airmass and sky brightening
// factor (1 for a dark sky).
func (c *SNR) Ratio(airmass, skyFactor float64) float64 {
	t := c.Exposure.Seconds()
	signal := math.Pow(10, -0.4*(c.Magnitude+c.Extinction*airmass-c.ZeroPoint)) * t
	skyPerPixel := math.Pow(10, -0.4*(c.Sky-c.ZeroPoint)) * c.PixelArea * skyFactor * t
	npix := math.Pi * c.Aperture * c.Aperture
	noise := math.Sqrt(signal + npix*(skyPerPixel+c.ReadNoise*c.ReadNoise))
	if noise == 0 {
		return 0
	}
	return signal / noise
}

func (c *SNR) Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result {
	if target == nil {
		return pass
	}
	am, err := measure(QuantityAirmass, eph, site, at, target)
	if err != nil {
		return fail
	}

	skyFactor := 1.0
	moon, err := eph.MoonPosition(at, site)
	if err != nil {
		return fail
	}
	if moon.Alt > 0 {
		illum, err := eph.MoonIllumination(at)
		if err != nil {
			return fail
		}
		skyFactor += moonBrightening * illum * math.Sin(moon.Alt*math.Pi/180)
	}

	snr := c.Ratio(am, skyFactor)
	if snr < c.Min {
		return fail
	}
	if c.Min == 0 {
		return pass
	}
	return graded((snr - c.Min) / c.Min)
}

func (c *SNR) String() string {
	return format(c.Kind(), kv{},
		kv{"min", formatFloat(c.Min)},
		kv{"mag", formatFloat(c.Magnitude)},
		kv{"exposure", c.Exposure.String()},
		kv{"zero_point", formatFloat(c.ZeroPoint)},
		kv{"sky", formatFloat(c.Sky)},
		kv{"aperture", formatFloat(c.Aperture)},
		kv{"pixel_area", formatFloat(c.PixelArea)},
		kv{"read_noise", formatFloat(c.ReadNoise)},
		kv{"extinction", formatFloat(c.Extinction)},
	)
}
