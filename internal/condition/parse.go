/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package condition

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Text form: kind(key=value,...). Floats use the shortest representation that
// parses back to the same value, times RFC 3339 with nanoseconds in UTC, and
// durations Go syntax. Open bounds are omitted.

type kv struct {
	key   string
	value string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func rangeKV(minKey, maxKey string, r Range) []kv {
	var out []kv
	if !math.IsInf(r.Min, 0) {
		out = append(out, kv{minKey, formatFloat(r.Min)})
	}
	if !math.IsInf(r.Max, 0) {
		out = append(out, kv{maxKey, formatFloat(r.Max)})
	}
	return out
}

func format(kind string, first kv, rest ...kv) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('(')
	n := 0
	for _, p := range append([]kv{first}, rest...) {
		if p.key == "" {
			continue
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
		n++
	}
	b.WriteByte(')')
	return b.String()
}

// Parse reads one condition from its text form and validates it.
func Parse(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%q: expected kind(key=value,...): %w", s, ErrSyntax)
	}
	kind := strings.TrimSpace(s[:open])
	p, err := parseParams(s[open+1 : len(s)-1])
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, err)
	}

	var c Condition
	switch kind {
	case "boundary":
		c = &Boundary{Quantity: Quantity(p.str("quantity")), Range: p.rng("min", "max")}
	case "coordinate":
		c = &Coordinate{
			Frame:     Frame(p.str("frame")),
			Longitude: p.rng("lon_min", "lon_max"),
			Latitude:  p.rng("lat_min", "lat_max"),
		}
	case "hour_angle":
		c = &HourAngle{Range: p.rng("min", "max")}
	case "airmass":
		c = &Airmass{Range: p.rng("min", "max")}
	case "sun":
		c = &Sun{Separation: p.rng("min_sep", "max_sep"), Altitude: p.rng("min_alt", "max_alt")}
	case "moon":
		c = &Moon{
			Separation:   p.rng("min_sep", "max_sep"),
			Altitude:     p.rng("min_alt", "max_alt"),
			Illumination: p.rng("min_illum", "max_illum"),
		}
	case "time":
		c = &Time{Start: p.time("start"), End: p.time("end")}
	case "snr":
		c = &SNR{
			Min:        p.float("min", 0),
			Magnitude:  p.float("mag", 0),
			Exposure:   p.duration("exposure"),
			ZeroPoint:  p.float("zero_point", DefaultZeroPoint),
			Sky:        p.float("sky", DefaultSky),
			Aperture:   p.float("aperture", DefaultAperture),
			PixelArea:  p.float("pixel_area", DefaultPixelArea),
			ReadNoise:  p.float("read_noise", DefaultReadNoise),
			Extinction: p.float("extinction", DefaultExtinction),
		}
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}

	if err := p.finish(); err != nil {
		return nil, fmt.Errorf("%q: %w", s, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseAll parses a list of condition strings, stopping at the first error.
func ParseAll(texts []string) ([]Condition, error) {
	out := make([]Condition, 0, len(texts))
	for i, text := range texts {
		c, err := Parse(text)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Strings formats conditions in order.
func Strings(conds []Condition) []string {
	out := make([]string, len(conds))
	for i, c := range conds {
		out[i] = c.String()
	}
	return out
}

type params struct {
	values map[string]string
	used   map[string]bool
	err    error
}

func parseParams(body string) (*params, error) {
	p := &params{values: map[string]string{}, used: map[string]bool{}}
	body = strings.TrimSpace(body)
	if body == "" {
		return p, nil
	}
	for _, part := range strings.Split(body, ",") {
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q: %w", part, ErrSyntax)
		}
		if _, dup := p.values[key]; dup {
			return nil, fmt.Errorf("duplicate parameter %q: %w", key, ErrSyntax)
		}
		p.values[key] = strings.TrimSpace(value)
	}
	return p, nil
}

func (p *params) lookup(key string) (string, bool) {
	v, ok := p.values[key]
	if ok {
		p.used[key] = true
	}
	return v, ok
}

func (p *params) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parameter %q: %v: %w", key, err, ErrSyntax)
	}
}

func (p *params) str(key string) string {
	v, _ := p.lookup(key)
	return v
}

func (p *params) float(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *params) rng(minKey, maxKey string) Range {
	return Range{Min: p.float(minKey, math.Inf(-1)), Max: p.float(maxKey, math.Inf(1))}
}

func (p *params) time(key string) time.Time {
	v, ok := p.lookup(key)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		p.fail(key, err)
	}
	return t
}

func (p *params) duration(key string) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
	}
	return d
}

// finish reports the first conversion error or any parameter the kind does
// not accept.
func (p *params) finish() error {
	if p.err != nil {
		return p.err
	}
	var unknown []string
	for key := range p.values {
		if !p.used[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown parameters %s: %w", strings.Join(unknown, ","), ErrSyntax)
	}
	return nil
}
