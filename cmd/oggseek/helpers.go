package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agleyzer/oggseek/internal/playlist"
	"github.com/agleyzer/oggseek/internal/probe"
)

// streamOptions shapes the segments of a byte-range playlist.
type streamOptions struct {
	uri            string
	targetDuration time.Duration
	loopAfter      time.Duration
}

// buildStream indexes media and groups its pages into playlist segments.
func buildStream(ctx context.Context, media *mediaFile, opts probe.Options, so streamOptions, logger *slog.Logger) (playlist.Stream, error) {
	info, err := probe.Probe(ctx, media, media.size, opts)
	if err != nil {
		return playlist.Stream{}, fmt.Errorf("probe %s: %w", media.name, err)
	}
	index, err := probe.Index(ctx, media, media.size, opts)
	if err != nil {
		return playlist.Stream{}, fmt.Errorf("index %s: %w", media.name, err)
	}
	logger.Info("indexed media",
		"file", media.name,
		"codec", info.Variant.String(),
		"pages", len(index.Entries),
		"duration", info.Duration,
	)

	stream, err := playlist.FromIndex(index, info.DataOffset, info.Format.SampleRate, so.targetDuration, so.uri)
	if err != nil {
		return playlist.Stream{}, err
	}

	if so.loopAfter > 0 {
		total := len(stream.Segments)
		stream.Segments = playlist.Subset(stream.Segments, so.loopAfter)
		logger.Info("applied loop-after",
			"originalSegments", total,
			"includedSegments", len(stream.Segments),
			"duration", so.loopAfter,
		)
	}
	return stream, nil
}

func parseLoopAfter(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --loop-after duration '%s': %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--loop-after duration must be positive, got: %s", value)
	}
	return d, nil
}
