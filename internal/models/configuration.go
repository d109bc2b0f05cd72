/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidConfiguration indicates an option key or value that cannot be
// represented in the text form.
var ErrInvalidConfiguration = errors.New("invalid instrument configuration")

// Option is one hardware setting, e.g. filter=r or binning=2x2.
type Option struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// InstrumentConfiguration is an immutable set of options kept sorted by key.
// The zero value is the empty configuration.
type InstrumentConfiguration struct {
	options []Option
}

// NewConfiguration builds a configuration. A later option replaces an earlier
// one with the same key.
func NewConfiguration(opts ...Option) InstrumentConfiguration {
	byKey := make(map[string]string, len(opts))
	for _, o := range opts {
		byKey[o.Key] = o.Value
	}
	return ConfigurationFromMap(byKey)
}

// ConfigurationFromMap builds a configuration from a key/value map.
func ConfigurationFromMap(m map[string]string) InstrumentConfiguration {
	out := make([]Option, 0, len(m))
	for k, v := range m {
		out = append(out, Option{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return InstrumentConfiguration{options: out}
}

// ParseConfiguration reads the form produced by String.
func ParseConfiguration(s string) (InstrumentConfiguration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return InstrumentConfiguration{}, nil
	}
	var opts []Option
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || k == "" {
			return InstrumentConfiguration{}, fmt.Errorf("option %q: %w", part, ErrInvalidConfiguration)
		}
		opts = append(opts, Option{Key: k, Value: v})
	}
	return NewConfiguration(opts...), nil
}

// Get returns the value of a setting.
func (c InstrumentConfiguration) Get(key string) (string, bool) {
	i := sort.Search(len(c.options), func(i int) bool { return c.options[i].Key >= key })
	if i < len(c.options) && c.options[i].Key == key {
		return c.options[i].Value, true
	}
	return "", false
}

// Keys returns the setting names in order.
func (c InstrumentConfiguration) Keys() []string {
	keys := make([]string, len(c.options))
	for i, o := range c.options {
		keys[i] = o.Key
	}
	return keys
}

// Options returns a copy of the settings in key order.
func (c InstrumentConfiguration) Options() []Option {
	return append([]Option(nil), c.options...)
}

func (c InstrumentConfiguration) Len() int { return len(c.options) }

func (c InstrumentConfiguration) Equal(other InstrumentConfiguration) bool {
	if len(c.options) != len(other.options) {
		return false
	}
	for i := range c.options {
		if c.options[i] != other.options[i] {
			return false
		}
	}
	return true
}

// Diff returns the keys whose value differs between the two configurations,
// including keys present in only one of them.
func (c InstrumentConfiguration) Diff(other InstrumentConfiguration) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range c.options {
		seen[o.Key] = true
		if v, ok := other.Get(o.Key); !ok || v != o.Value {
			out = append(out, o.Key)
		}
	}
	for _, o := range other.options {
		if !seen[o.Key] {
			out = append(out, o.Key)
		}
	}
	sort.Strings(out)
	return out
}

// Validate rejects keys and values containing the separators of the text form.
func (c InstrumentConfiguration) Validate() error {
	for _, o := range c.options {
		if o.Key == "" || strings.ContainsAny(o.Key, "=;") || strings.ContainsAny(o.Value, ";") {
			return fmt.Errorf("option %q=%q: %w", o.Key, o.Value, ErrInvalidConfiguration)
		}
	}
	return nil
}

// String formats the configuration as key=value pairs joined by ';'.
func (c InstrumentConfiguration) String() string {
	parts := make([]string, len(c.options))
	for i, o := range c.options {
		parts[i] = o.Key + "=" + o.Value
	}
	return strings.Join(parts, ";")
}

// Map returns the settings as a map.
func (c InstrumentConfiguration) Map() map[string]string {
	m := make(map[string]string, len(c.options))
	for _, o := range c.options {
		m[o.Key] = o.Value
	}
	return m
}
