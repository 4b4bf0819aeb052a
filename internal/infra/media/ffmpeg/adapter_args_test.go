// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func flagValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestBuildArgs_UsesOptionalMaps(t *testing.T) {
	w := NewWorker(Config{}, zerolog.New(io.Discard))
	args := w.buildArgs(ports.SpawnSpec{SessionID: "sid-1", WorkDir: "/tmp/sid-1"}, "http://example.com/stream")

	assert.Contains(t, args, "0:v:0?", "video map should be optional for audio-only inputs")
	assert.Contains(t, args, "0:a:0?", "audio map should remain optional")
	assert.Equal(t, filepath.Join("/tmp/sid-1", PlaylistName), args[len(args)-1])
	v, _ := flagValue(args, "-hls_segment_filename")
	assert.Equal(t, filepath.Join("/tmp/sid-1", "seg_%06d.ts"), v)
	v, _ = flagValue(args, "-progress")
	assert.Equal(t, "pipe:2", v)
}

func TestBuildArgs_FailurePolicy(t *testing.T) {
	w := NewWorker(Config{}, zerolog.New(io.Discard))

	strict := w.buildArgs(ports.SpawnSpec{SessionID: "a", WorkDir: "/w"}, "http://h/s")
	assert.Contains(t, strict, "-xerror")
	assert.NotContains(t, strict, "-err_detect")
	fflags, _ := flagValue(strict, "-fflags")
	assert.NotContains(t, fflags, "discardcorrupt")

	tolerant := w.buildArgs(ports.SpawnSpec{SessionID: "a", WorkDir: "/w", IgnoreFailure: true}, "http://h/s")
	assert.NotContains(t, tolerant, "-xerror")
	v, ok := flagValue(tolerant, "-err_detect")
	assert.True(t, ok)
	assert.Equal(t, "ignore_err", v)
	fflags, _ = flagValue(tolerant, "-fflags")
	assert.Contains(t, fflags, "+discardcorrupt")
}

func TestBuildArgs_Tunables(t *testing.T) {
	w := NewWorker(Config{SegmentSeconds: 4, ListSize: 10, ReconnectDelayMax: 9, UserAgent: "relay/1"}, zerolog.New(io.Discard))
	args := w.buildArgs(ports.SpawnSpec{SessionID: "a", WorkDir: "/w"}, "https://h/s")

	for flag, want := range map[string]string{
		"-hls_time":            "4",
		"-hls_list_size":       "10",
		"-reconnect_delay_max": "9",
		"-user_agent":          "relay/1",
		"-c:v":                 "copy",
	} {
		got, ok := flagValue(args, flag)
		assert.True(t, ok, flag)
		assert.Equal(t, want, got, flag)
	}
	flags, _ := flagValue(args, "-hls_flags")
	assert.Contains(t, flags, "delete_segments")
}

func TestBuildArgs_NoReconnectForNonHTTP(t *testing.T) {
	w := NewWorker(Config{}, zerolog.New(io.Discard))
	args := w.buildArgs(ports.SpawnSpec{SessionID: "a", WorkDir: "/w"}, "rtsp://cam/stream")
	assert.NotContains(t, args, "-reconnect")
	assert.NotContains(t, args, "-user_agent")
}

func TestInjectCredentials(t *testing.T) {
	assert.Equal(t, "http://h/s", injectCredentials("http://h/s", nil))
	assert.Equal(t, "http://h/s", injectCredentials("http://h/s", &model.Credentials{}))
	assert.Equal(t, "http://u:p@h/s", injectCredentials("http://h/s", &model.Credentials{Username: "u", Password: "p"}))
	assert.Equal(t, "http://u@h/s", injectCredentials("http://h/s", &model.Credentials{Username: "u"}))
	assert.Equal(t, "/local/file.ts", injectCredentials("/local/file.ts", &model.Credentials{Username: "u"}))
}

func TestSanitizeURLForLog(t *testing.T) {
	assert.Equal(t, "http://h/s?x=1", sanitizeURLForLog("http://u:p@h/s?x=1"))
}

func TestIsProgressLine(t *testing.T) {
	assert.True(t, isProgressLine("frame=12"))
	assert.True(t, isProgressLine("progress=continue"))
	assert.False(t, isProgressLine("[hls @ 0x55] Opening 'seg_000001.ts' for writing"))
	assert.False(t, isProgressLine("Input #0, mpegts, from 'http://h/s':"))
	assert.False(t, isProgressLine("=oops"))
}
