/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/telrun/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Commit returns the VCS revision embedded by the Go toolchain, if any.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

// String is the one-line version banner.
func String() string {
	if c := Commit(); c != "" {
		return fmt.Sprintf("schedtel %s (%s, %s)", Version, c, runtime.Version())
	}
	return fmt.Sprintf("schedtel %s (%s)", Version, runtime.Version())
}
