/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package condition

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
)

var (
	fixtureSite   = astro.Site{Name: "test", Longitude: -111.6, Latitude: 35.2, Elevation: 2200}
	fixtureTime   = time.Date(2024, 10, 1, 4, 0, 0, 0, time.UTC)
	fixtureTarget = &astro.Target{Name: "M31", RA: 10.6847, Dec: 41.2687}
)

// skyAt returns a fake sky with the target at the given altitude due south,
// the Moon at moonAlt due north and the Sun well below the horizon.
func skyAt(targetAlt, moonAlt, illum float64) *astro.Static {
	return &astro.Static{
		PositionFunc: func(astro.Target, time.Time) (astro.AltAz, error) {
			return astro.AltAz{Alt: targetAlt, Az: 180}, nil
		},
		MoonFunc: func(time.Time) (astro.AltAz, error) {
			return astro.AltAz{Alt: moonAlt, Az: 0}, nil
		},
		IlluminationFunc: func(time.Time) (float64, error) { return illum, nil },
	}
}

func TestAirmassGrading(t *testing.T) {
	c := &Airmass{Range: Between(1, 2)}

	tests := []struct {
		name      string
		altitude  float64
		satisfied bool
		minScore  float64
		maxScore  float64
	}{
		{name: "zenith", altitude: 90, satisfied: true, minScore: 0.99, maxScore: 1},
		{name: "airmass 1.5", altitude: 41.8, satisfied: true, minScore: 0.45, maxScore: 0.55},
		{name: "below ceiling", altitude: 25, satisfied: false},
		{name: "below horizon", altitude: -10, satisfied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Evaluate(skyAt(tt.altitude, -30, 0), fixtureSite, fixtureTime, fixtureTarget)
			if r.Satisfied != tt.satisfied {
				t.Fatalf("Satisfied = %v, want %v", r.Satisfied, tt.satisfied)
			}
			if tt.satisfied && (r.Score < tt.minScore || r.Score > tt.maxScore) {
				t.Errorf("Score = %v, want in [%v, %v]", r.Score, tt.minScore, tt.maxScore)
			}
			if !tt.satisfied && r.Score != 0 {
				t.Errorf("unsatisfied Score = %v, want 0", r.Score)
			}
		})
	}
}

func TestEphemerisFailureIsUnsatisfied(t *testing.T) {
	broken := &astro.Static{
		PositionFunc: func(astro.Target, time.Time) (astro.AltAz, error) {
			return astro.AltAz{}, astro.ErrUnavailable
		},
		SunFunc: func(time.Time) (astro.AltAz, error) {
			return astro.AltAz{}, astro.ErrUnavailable
		},
		MoonFunc: func(time.Time) (astro.AltAz, error) {
			return astro.AltAz{}, astro.ErrUnavailable
		},
	}

	conds := []Condition{
		&Boundary{Quantity: QuantityAltitude, Range: AtLeast(30)},
		&Coordinate{Frame: FrameAltAz, Longitude: Any(), Latitude: Any()},
		&Airmass{Range: AtMost(2)},
		&Sun{Separation: Any(), Altitude: AtMost(-12)},
		&Moon{Separation: AtLeast(30), Altitude: Any(), Illumination: Any()},
		NewSNR(10, 15, time.Minute),
	}
	for _, c := range conds {
		if r := c.Evaluate(broken, fixtureSite, fixtureTime, fixtureTarget); r.Satisfied {
			t.Errorf("%s satisfied on ephemeris failure", c)
		}
	}
}

func TestNilTargetIsVacuous(t *testing.T) {
	sky := skyAt(-50, 20, 0.5)
	conds := []Condition{
		&Boundary{Quantity: QuantityAltitude, Range: AtLeast(30)},
		&Coordinate{Frame: FrameICRS, Longitude: Between(0, 1), Latitude: Between(0, 1)},
		&HourAngle{Range: Between(-1, 1)},
		&Airmass{Range: AtMost(1.5)},
		&Moon{Separation: AtLeast(30), Altitude: Any(), Illumination: Any()},
		NewSNR(1000, 20, time.Second),
	}
	for _, c := range conds {
		r := c.Evaluate(sky, fixtureSite, fixtureTime, nil)
		if !r.Satisfied || r.Score != 1 {
			t.Errorf("%s with nil target = %+v, want satisfied score 1", c, r)
		}
	}

	// the Sun's own altitude still applies without a target
	sunUp := &astro.Static{SunFunc: func(time.Time) (astro.AltAz, error) { return astro.AltAz{Alt: 10}, nil }}
	if r := (&Sun{Separation: Any(), Altitude: AtMost(-12)}).Evaluate(sunUp, fixtureSite, fixtureTime, nil); r.Satisfied {
		t.Error("sun altitude ceiling ignored for calibration target")
	}
}

func TestTimeConditionClosedInterval(t *testing.T) {
	start := time.Date(2024, 10, 1, 2, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	c := &Time{Start: start, End: end}

	tests := []struct {
		at   time.Time
		want bool
	}{
		{start.Add(-time.Second), false},
		{start, true},
		{start.Add(time.Hour), true},
		{end, true},
		{end.Add(time.Nanosecond), false},
	}
	for _, tt := range tests {
		if got := c.Evaluate(nil, fixtureSite, tt.at, nil).Satisfied; got != tt.want {
			t.Errorf("Evaluate(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}

	open := &Time{End: end}
	if !open.Evaluate(nil, fixtureSite, start.Add(-48*time.Hour), nil).Satisfied {
		t.Error("open lower bound rejected an early time")
	}
}

func TestMoonSeparationScore(t *testing.T) {
	c := &Moon{Separation: Between(30, 180), Altitude: Any(), Illumination: AtMost(0.9)}

	// target due south at 45, moon due north at moonAlt
	near := c.Evaluate(skyAt(45, 60, 0.5), fixtureSite, fixtureTime, fixtureTarget)
	far := c.Evaluate(skyAt(45, -10, 0.5), fixtureSite, fixtureTime, fixtureTarget)
	if !near.Satisfied || !far.Satisfied {
		t.Fatalf("near=%+v far=%+v, want both satisfied", near, far)
	}
	if near.Score >= far.Score {
		t.Errorf("near score %v >= far score %v", near.Score, far.Score)
	}

	bright := c.Evaluate(skyAt(45, -10, 0.95), fixtureSite, fixtureTime, fixtureTarget)
	if bright.Satisfied {
		t.Error("illumination ceiling ignored")
	}

	tooClose := c.Evaluate(skyAt(80, 80, 0.1), fixtureSite, fixtureTime, fixtureTarget)
	if tooClose.Satisfied {
		t.Error("minimum separation ignored")
	}
}

func TestSNRMoonDegradesScore(t *testing.T) {
	c := NewSNR(8, 20, time.Minute)

	dark := c.Evaluate(skyAt(70, -20, 1), fixtureSite, fixtureTime, fixtureTarget)
	moonlit := c.Evaluate(skyAt(70, 80, 1), fixtureSite, fixtureTime, fixtureTarget)
	if !dark.Satisfied {
		t.Fatalf("dark sky SNR unsatisfied: ratio=%v", c.Ratio(1.06, 1))
	}
	if dark.Score >= 1 {
		t.Errorf("dark score %v saturated, want graded", dark.Score)
	}
	if moonlit.Satisfied {
		t.Errorf("full Moon overhead still satisfied, ratio=%v", c.Ratio(1.06, 8.4))
	}

	faint := NewSNR(20, 24, time.Second)
	if faint.Evaluate(skyAt(70, -20, 0), fixtureSite, fixtureTime, fixtureTarget).Satisfied {
		t.Error("faint short exposure reached SNR 20")
	}
}

func TestValidateBounds(t *testing.T) {
	bad := []Condition{
		&Airmass{Range: Between(3, 2)},
		&Boundary{Quantity: "brightness", Range: Any()},
		&Coordinate{Frame: "galactic", Longitude: Any(), Latitude: Any()},
		&Time{Start: fixtureTime, End: fixtureTime.Add(-time.Hour)},
		&SNR{Min: 5},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", c)
		}
	}
}

func TestTextRoundTrip(t *testing.T) {
	conds := []Condition{
		&Boundary{Quantity: QuantityMoonIllumination, Range: AtMost(0.25)},
		&Coordinate{Frame: FrameICRS, Longitude: Between(0, 45.5), Latitude: AtLeast(-10)},
		&HourAngle{Range: Between(-3.5, 2.25)},
		&Airmass{Range: Between(1, 1.8)},
		&Sun{Separation: AtLeast(40), Altitude: AtMost(-12)},
		&Moon{Separation: Between(25, 170), Altitude: AtMost(60), Illumination: AtMost(0.7)},
		&Time{Start: time.Date(2024, 10, 1, 3, 0, 0, 500, time.UTC)},
		&Time{Start: fixtureTime.Add(-time.Hour), End: fixtureTime.Add(time.Hour)},
		NewSNR(12.5, 17.25, 90*time.Second),
	}

	sky := skyAt(52.3, 20, 0.4)
	for _, c := range conds {
		t.Run(c.Kind(), func(t *testing.T) {
			text := c.String()
			parsed, err := Parse(text)
			if err != nil {
				t.Fatalf("Parse(%q): %v", text, err)
			}
			if parsed.String() != text {
				t.Errorf("reformatted %q, want %q", parsed.String(), text)
			}
			want := c.Evaluate(sky, fixtureSite, fixtureTime, fixtureTarget)
			got := parsed.Evaluate(sky, fixtureSite, fixtureTime, fixtureTarget)
			if got != want {
				t.Errorf("parsed evaluates %+v, original %+v", got, want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		text string
		want error
	}{
		{"airmass", ErrSyntax},
		{"airmass(max)", ErrSyntax},
		{"airmass(max=2,max=3)", ErrSyntax},
		{"airmass(max=two)", ErrSyntax},
		{"airmass(max=2,color=red)", ErrSyntax},
		{"galaxy(max=2)", ErrUnknownKind},
		{"airmass(min=3,max=2)", ErrInvalidBound},
		{"time(start=yesterday)", ErrSyntax},
	}
	for _, tt := range tests {
		if _, err := Parse(tt.text); !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.text, err, tt.want)
		}
	}
}

func TestAllMean(t *testing.T) {
	sky := skyAt(41.8, -30, 0)
	conds := []Condition{
		&Airmass{Range: Between(1, 2)},
		&Time{},
	}
	ok, mean := All(conds, sky, fixtureSite, fixtureTime, fixtureTarget)
	if !ok {
		t.Fatal("All() not satisfied")
	}
	if math.Abs(mean-0.75) > 0.05 {
		t.Errorf("mean = %v, want ~0.75", mean)
	}

	if ok, mean := All(nil, sky, fixtureSite, fixtureTime, fixtureTarget); !ok || mean != 1 {
		t.Errorf("All(nil) = (%v, %v), want (true, 1)", ok, mean)
	}

	conds = append(conds, &Boundary{Quantity: QuantityAltitude, Range: AtLeast(60)})
	if ok, _ := All(conds, sky, fixtureSite, fixtureTime, fixtureTarget); ok {
		t.Error("All() satisfied with a failing member")
	}
}

func TestGlobalLimits(t *testing.T) {
	global := Global(Limits{MaxSunAltitude: -12, MinElevation: 30, MaxAirmass: 3, MinMoonSeparation: 30})

	if ok, _ := All(global, skyAt(60, -20, 0.5), fixtureSite, fixtureTime, fixtureTarget); !ok {
		t.Error("dark sky with high target rejected")
	}
	if ok, _ := All(global, skyAt(20, -20, 0.5), fixtureSite, fixtureTime, fixtureTarget); ok {
		t.Error("target below minimum elevation accepted")
	}
	sunUp := skyAt(60, -20, 0)
	sunUp.SunFunc = func(time.Time) (astro.AltAz, error) { return astro.AltAz{Alt: -5}, nil }
	if ok, _ := All(global, sunUp, fixtureSite, fixtureTime, fixtureTarget); ok {
		t.Error("twilight sky accepted")
	}
}
