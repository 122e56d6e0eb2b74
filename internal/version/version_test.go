package version

import (
	"runtime/debug"
	"testing"
)

func TestResolvePrefersLdflags(t *testing.T) {
	t.Parallel()

	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main:     debug.Module{Version: "v0.9.0"},
			Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
		}, true
	}
	info := resolve("v1.2.3", "abc", "", read)
	if info.Version != "v1.2.3" || info.Commit != "abc" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestResolveFallsBackToBuildInfo(t *testing.T) {
	t.Parallel()

	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			},
		}, true
	}
	info := resolve("", "", "", read)
	if info.Commit != "0123456789abcdef0123" {
		t.Fatalf("commit: got %q", info.Commit)
	}
	if info.Version != "2026-01-02T03:04:05Z" {
		t.Fatalf("version: got %q want build time", info.Version)
	}
	if info.GoVersion == "" {
		t.Fatal("expected go version")
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()

	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
