// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestStampPrefersInjectedCommit(t *testing.T) {
	original := GitCommit
	t.Cleanup(func() { GitCommit = original })
	GitCommit = "abc1234"

	commit, dirty, _ := stamp(func() (*debug.BuildInfo, bool) {
		t.Error("build info read despite injected commit")
		return nil, false
	})
	if commit != "abc1234" || dirty {
		t.Errorf("stamp = %s, %v", commit, dirty)
	}
}

func TestStampFallsBackToVCS(t *testing.T) {
	original := GitCommit
	t.Cleanup(func() { GitCommit = original })
	GitCommit = "unknown"

	commit, dirty, buildTime := stamp(func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
		}}, true
	})
	if commit != "0123456" || !dirty {
		t.Errorf("stamp = %s, %v; want 0123456, dirty", commit, dirty)
	}
	if BuildTime == "unknown" && buildTime != "2026-03-01T10:00:00Z" {
		t.Errorf("buildTime = %s", buildTime)
	}
}

func TestInfoContainsVersion(t *testing.T) {
	if !strings.HasPrefix(Info(), Version+" (") {
		t.Errorf("Info() = %q", Info())
	}
	if !strings.Contains(Full(), "Go: ") {
		t.Errorf("Full() = %q", Full())
	}
	if Short() != Version {
		t.Errorf("Short() = %q", Short())
	}
}
