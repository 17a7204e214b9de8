/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import "testing"

func TestString(t *testing.T) {
	origVersion, origCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = origVersion, origCommit })

	tests := []struct {
		version, commit, want string
	}{
		{"1.2.3", "", "1.2.3"},
		{"1.2.3", "abc", "1.2.3 (abc)"},
		{"1.2.3", "0123456789abcdef", "1.2.3 (0123456)"},
	}
	for _, tt := range tests {
		Version, Commit = tt.version, tt.commit
		if got := String(); got != tt.want {
			t.Errorf("String() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}
