/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the build version.
package version

import "fmt"

// Version is the current version of smartlists.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/smartlists/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Commit is the git revision, also set via ldflags.
var Commit = ""

// String returns the version with the commit when known.
func String() string {
	if Commit == "" {
		return Version
	}
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, short)
}
