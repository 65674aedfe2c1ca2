// Package playlist builds HLS playlists that address an Ogg file by byte range,
// either as a complete VOD playlist or as a looping live window.
package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/agleyzer/oggseek/internal/segment"
	"github.com/grafov/m3u8"
)

// Playlist defines the interface for HLS playlist generation.
type Playlist interface {
	// Generate creates the HLS media playlist for the current window.
	Generate() (string, error)

	// Advance moves a live window forward by one segment. It does nothing
	// for VOD playlists.
	Advance()

	// StartAutoAdvance advances a live window every target duration until
	// ctx is cancelled.
	StartAutoAdvance(ctx context.Context)

	// GetStats returns current statistics about the playlist.
	GetStats() map[string]interface{}
}

// Window is a live window position held outside the playlist, such as one
// replicated between servers. Only the leader advances it.
type Window interface {
	Position() (position int, sequence uint64)
	AdvanceWindow() error
	IsLeader() bool
}

// New creates a media playlist over stream. A window size of zero produces a
// VOD playlist listing every segment; a positive window size produces a live
// playlist that loops over the segments.
func New(stream Stream, windowSize int, logger *slog.Logger) (Playlist, error) {
	if len(stream.Segments) == 0 {
		return nil, fmt.Errorf("cannot create playlist with zero segments")
	}

	if windowSize < 0 {
		return nil, fmt.Errorf("window size must not be negative")
	}

	if windowSize > len(stream.Segments) {
		windowSize = len(stream.Segments)
		logger.Warn("window size larger than segment count, using all segments", "windowSize", windowSize)
	}

	if stream.TargetDuration <= 0 {
		stream.TargetDuration = maxDuration(stream.Segments)
	}

	return &mediaPlaylist{
		stream:     stream,
		windowSize: windowSize,
		logger:     logger,
	}, nil
}

// NewShared creates a live playlist whose window position is read from
// window instead of being kept locally.
func NewShared(stream Stream, windowSize int, window Window, logger *slog.Logger) (Playlist, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("shared playlist needs a positive window size")
	}
	p, err := New(stream, windowSize, logger)
	if err != nil {
		return nil, err
	}
	mp := p.(*mediaPlaylist)
	mp.shared = window
	return mp, nil
}

// mediaPlaylist manages the segment window of a single media playlist.
type mediaPlaylist struct {
	mu              sync.RWMutex
	stream          Stream
	windowSize      int
	currentPosition int
	sequenceNumber  uint64
	shared          Window
	logger          *slog.Logger
}

func (mp *mediaPlaylist) live() bool {
	return mp.windowSize > 0
}

// Generate creates an HLS media playlist for the current window.
func (mp *mediaPlaylist) Generate() (string, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	position, sequence := mp.position()
	window := mp.stream.Segments
	if mp.live() {
		window = mp.getCurrentWindow(position)
	}

	p, err := m3u8.NewMediaPlaylist(uint(mp.windowSize), uint(len(window)))
	if err != nil {
		return "", fmt.Errorf("failed to create media playlist: %w", err)
	}
	p.TargetDuration = float64(mp.stream.TargetDuration)
	p.SeqNo = sequence
	if h := mp.stream.Header; h.Length > 0 {
		p.SetDefaultMap(mp.stream.URI, h.Length, h.Offset)
	}

	for i, seg := range window {
		if err := p.Append(mp.stream.URI, seg.Duration, Title(mp.stream.Serial, seg.Granule)); err != nil {
			return "", fmt.Errorf("failed to append segment %d: %w", seg.Sequence, err)
		}
		if err := p.SetRange(seg.Length, seg.Offset); err != nil {
			return "", fmt.Errorf("failed to set byte range of segment %d: %w", seg.Sequence, err)
		}
		// The window wrapped around to the start of the file.
		if i > 0 && seg.Sequence < window[i-1].Sequence {
			if err := p.SetDiscontinuity(); err != nil {
				return "", fmt.Errorf("failed to mark discontinuity: %w", err)
			}
		}
	}

	if !mp.live() {
		p.MediaType = m3u8.VOD
		p.Close()
	}
	return p.Encode().String(), nil
}

// Advance moves the sliding window forward by one segment.
func (mp *mediaPlaylist) Advance() {
	if !mp.live() {
		return
	}

	if mp.shared != nil {
		if !mp.shared.IsLeader() {
			return
		}
		if err := mp.shared.AdvanceWindow(); err != nil {
			mp.logger.Warn("failed to advance shared window", "error", err)
		}
		return
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	totalSegments := len(mp.stream.Segments)
	mp.currentPosition = (mp.currentPosition + 1) % totalSegments
	mp.sequenceNumber++

	mp.logger.Debug("advanced window",
		"position", mp.currentPosition,
		"sequence", mp.sequenceNumber,
	)
}

// StartAutoAdvance advances the window at the target duration interval.
func (mp *mediaPlaylist) StartAutoAdvance(ctx context.Context) {
	if !mp.live() {
		return
	}

	interval := time.Duration(mp.stream.TargetDuration) * time.Second

	mp.logger.Info("starting auto-advance",
		"interval", interval,
		"windowSize", mp.windowSize,
		"totalSegments", len(mp.stream.Segments),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mp.logger.Info("stopping auto-advance")
			return
		case <-ticker.C:
			mp.Advance()
		}
	}
}

// GetStats returns current statistics about the playlist.
func (mp *mediaPlaylist) GetStats() map[string]interface{} {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	position, sequence := mp.position()
	return map[string]interface{}{
		"live":             mp.live(),
		"shared":           mp.shared != nil,
		"window_size":      mp.windowSize,
		"sequence_number":  sequence,
		"target_duration":  mp.stream.TargetDuration,
		"total_segments":   len(mp.stream.Segments),
		"current_position": position,
		"duration":         mp.stream.Duration().Seconds(),
	}
}

// position returns the window start and media sequence.
// Caller must hold at least a read lock.
func (mp *mediaPlaylist) position() (int, uint64) {
	if mp.shared != nil {
		position, sequence := mp.shared.Position()
		return position % len(mp.stream.Segments), sequence
	}
	return mp.currentPosition, mp.sequenceNumber
}

// getCurrentWindow returns the window of segments starting at position.
func (mp *mediaPlaylist) getCurrentWindow(position int) []segment.Segment {
	totalSegments := len(mp.stream.Segments)
	window := make([]segment.Segment, 0, mp.windowSize)

	for i := 0; i < mp.windowSize; i++ {
		idx := (position + i) % totalSegments
		window = append(window, mp.stream.Segments[idx])
	}

	return window
}

// maxDuration returns the longest segment duration rounded up to whole seconds.
func maxDuration(segments []segment.Segment) int {
	longest := 0.0
	for _, seg := range segments {
		longest = max(longest, seg.Duration)
	}
	return max(int(math.Ceil(longest)), 1)
}
