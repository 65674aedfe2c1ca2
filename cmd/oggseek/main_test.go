package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agleyzer/oggseek/internal/ogg/oggtest"
)

type cliTestEnv struct {
	dir        string
	mediaPath  string
	configPath string
	pages      []oggtest.PageInfo
}

// setupCLITestEnv writes 16 s of Opus and a config with a small match range.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	dir := t.TempDir()
	data, pages := oggtest.OpusStream(0xABCD, 400, 2, 60)
	mediaPath := filepath.Join(dir, "test.opus")
	if err := os.WriteFile(mediaPath, data, 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	configPath := filepath.Join(dir, "oggseek.toml")
	config := "[logging]\nlevel = \"error\"\n\n[demux]\nmatch_range = 2000\n"
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{dir: dir, mediaPath: mediaPath, configPath: configPath, pages: pages}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIProbe(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"probe", env.mediaPath}, env.configPath)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	for _, want := range []string{"test.opus", "opus", "48000 Hz", "16s", "yes", "TITLE=Synthetic"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected probe output to contain %q, got:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, []string{"probe", "--json", env.mediaPath}, env.configPath)
	if err != nil {
		t.Fatalf("probe --json failed: %v", err)
	}
	var info probeOutput
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode probe output: %v", err)
	}
	if info.Codec != "opus" || info.Channels != 2 || info.Duration != 16 || !info.Seekable {
		t.Errorf("Unexpected probe output %+v", info)
	}
	if info.DataOffset != env.pages[0].Offset {
		t.Errorf("Expected data offset %d, got %d", env.pages[0].Offset, info.DataOffset)
	}
}

func TestCLIDemux(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"demux", env.mediaPath}, env.configPath)
	if err != nil {
		t.Fatalf("demux failed: %v", err)
	}
	if !strings.Contains(out, "800 packets, 47 KiB, 0s to 15.98s") {
		t.Errorf("Unexpected demux summary:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"demux", "--packets", "--limit", "3", env.mediaPath}, env.configPath)
	if err != nil {
		t.Fatalf("demux --packets failed: %v", err)
	}
	if !strings.Contains(out, "40ms") || strings.Contains(out, "60ms") {
		t.Errorf("Expected the first three packets, got:\n%s", out)
	}
}

func decodeSeek(t *testing.T, out string) []seekOutput {
	t.Helper()
	var results []seekOutput
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode seek output: %v\n%s", err, out)
	}
	return results
}

func TestCLISeek(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, extra := range [][]string{nil, {"--use-index"}} {
		args := append([]string{"seek", "--json", env.mediaPath, "5s", "1.5"}, extra...)
		out, _, err := runCLI(t, args, env.configPath)
		if err != nil {
			t.Fatalf("seek %v failed: %v", extra, err)
		}
		results := decodeSeek(t, out)
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		if results[0].Granule != 240000 || results[0].Offset != env.pages[125].Offset {
			t.Errorf("%v: expected 5s to resume at granule 240000 on page 125, got %+v", extra, results[0])
		}
		if results[1].Granule != 71040 || math.Abs(results[1].Time-1.48) > 1e-9 {
			t.Errorf("%v: expected 1.5s to resume at 1.48s, got %+v", extra, results[1])
		}
	}

	out, _, err := runCLI(t, []string{"seek", env.mediaPath, "5s"}, env.configPath)
	if err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if !strings.Contains(out, "240000") || !strings.Contains(out, "Resumes at") {
		t.Errorf("Unexpected seek table:\n%s", out)
	}
}

func TestCLIIndexAndSeekFromPlaylist(t *testing.T) {
	env := setupCLITestEnv(t)
	playlistPath := filepath.Join(env.dir, "test.m3u8")

	_, _, err := runCLI(t, []string{"index", "-o", playlistPath, env.mediaPath}, env.configPath)
	if err != nil {
		t.Fatalf("index failed: %v", err)
	}
	content, err := os.ReadFile(playlistPath)
	if err != nil {
		t.Fatalf("read playlist: %v", err)
	}
	for _, want := range []string{`#EXT-X-MAP:URI="test.opus"`, "#EXT-X-BYTERANGE", "#EXT-X-ENDLIST", "granule=768000"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("Expected playlist to contain %q, got:\n%s", want, content)
		}
	}

	out, _, err := runCLI(t, []string{"seek", "--json", "--index", playlistPath, env.mediaPath, "5s"}, env.configPath)
	if err != nil {
		t.Fatalf("seek --index failed: %v", err)
	}
	results := decodeSeek(t, out)
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	// Segments start at 0, 6 and 12 s, so 5 s resumes inside the first.
	if results[0].Granule != 239040 || results[0].Offset != env.pages[124].Offset {
		t.Errorf("Expected to resume at granule 239040 on page 124, got %+v", results[0])
	}
}

func TestCLIIndexToStdout(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"index", "--uri", "/audio.opus", "--target-duration", "4", "--loop-after", "8s", env.mediaPath}, env.configPath)
	if err != nil {
		t.Fatalf("index failed: %v", err)
	}
	if !strings.HasPrefix(out, "#EXTM3U") {
		t.Errorf("Expected a playlist on stdout, got:\n%s", out)
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:4") {
		t.Errorf("Expected target duration 4, got:\n%s", out)
	}
	// Three 4 s segments: the third overshoots 8 s by less than half.
	if got := strings.Count(out, "#EXTINF"); got != 3 {
		t.Errorf("Expected 3 segments, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "/audio.opus") {
		t.Errorf("Expected the custom URI, got:\n%s", out)
	}
}

func TestCLIConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.dir, "new.toml")

	if _, _, err := runCLI(t, []string{"config", "init", path}, ""); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", path}, ""); err == nil {
		t.Error("Expected config init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--overwrite", path}, ""); err != nil {
		t.Errorf("config init --overwrite failed: %v", err)
	}

	out, _, err := runCLI(t, []string{"config", "show"}, path)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "match_range = 100000") {
		t.Errorf("Expected default match range, got:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"--log-level", "debug", "config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "match_range = 2000") || !strings.Contains(out, "debug") {
		t.Errorf("Expected file values with the flag override, got:\n%s", out)
	}
}

func TestCLIErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	badConfig := filepath.Join(env.dir, "bad.toml")
	if err := os.WriteFile(badConfig, []byte("[demux]\nunknown = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	tests := []struct {
		name   string
		args   []string
		config string
	}{
		{"missing media", []string{"probe", filepath.Join(env.dir, "missing.opus")}, env.configPath},
		{"not ogg", []string{"probe", env.configPath}, env.configPath},
		{"bad seek time", []string{"seek", env.mediaPath, "soon"}, env.configPath},
		{"seek without time", []string{"seek", env.mediaPath}, env.configPath},
		{"bad loop-after", []string{"index", "--loop-after", "-5s", env.mediaPath}, env.configPath},
		{"negative window", []string{"serve", "--window-size", "-1", env.mediaPath}, env.configPath},
		{"raft without window", []string{"serve", "--raft-bind", "127.0.0.1:21300", env.mediaPath}, env.configPath},
		{"unknown config key", []string{"probe", env.mediaPath}, badConfig},
		{"missing config", []string{"probe", env.mediaPath}, filepath.Join(env.dir, "none.toml")},
		{"bad log level", []string{"--log-level", "loud", "probe", env.mediaPath}, env.configPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := runCLI(t, tt.args, tt.config); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestParseLoopAfter(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{value: "", want: 0},
		{value: "10s", want: 10 * time.Second},
		{value: "1m30s", want: 90 * time.Second},
		{value: "0s", wantErr: true},
		{value: "ten", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLoopAfter(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got nil", tt.value)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q: expected %v, got %v (%v)", tt.value, tt.want, got, err)
		}
	}
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, []string{"--version"}, "")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("Expected version %s, got %q", version, out)
	}
}
