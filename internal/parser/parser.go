// Package parser reads byte-range index playlists back into streams whose
// page index can drive direct seeking.
package parser

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/agleyzer/oggseek/internal/playlist"
	"github.com/agleyzer/oggseek/internal/segment"
	"github.com/grafov/m3u8"
)

// PlaylistInfo contains the parsed playlist information.
type PlaylistInfo struct {
	// Stream holds the header range and segments of the indexed file.
	Stream playlist.Stream

	// Closed reports whether the playlist is complete (VOD).
	Closed bool
}

// ParsePlaylist reads a playlist from an http(s) URL or a file path.
func ParsePlaylist(source string) (*PlaylistInfo, error) {
	rc, err := FetchContent(source)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer rc.Close()

	return Parse(rc, source)
}

// Parse decodes a media playlist. Segment URIs are resolved against base
// when it is a URL.
func Parse(r io.Reader, base string) (*PlaylistInfo, error) {
	p, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("expected media playlist, got master playlist")
	}
	mediaPlaylist, ok := p.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	info := &PlaylistInfo{Closed: mediaPlaylist.Closed}
	stream := &info.Stream

	for i, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}
		if seg.Limit <= 0 {
			return nil, fmt.Errorf("segment %d has no byte range", i)
		}

		serial, granule, err := playlist.ParseTitle(seg.Title)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if i == 0 {
			stream.Serial = serial
		} else if serial != stream.Serial {
			return nil, fmt.Errorf("segment %d belongs to bitstream %d, not %d", i, serial, stream.Serial)
		}

		segmentURL, err := resolveURL(base, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve segment URL: %w", err)
		}
		if i == 0 {
			stream.URI = segmentURL
		}

		stream.Segments = append(stream.Segments, segment.Segment{
			URI:      segmentURL,
			Offset:   seg.Offset,
			Length:   seg.Limit,
			Duration: seg.Duration,
			Granule:  granule,
			Sequence: i,
		})
	}

	if len(stream.Segments) == 0 {
		return nil, fmt.Errorf("playlist contains no segments")
	}

	if m := playlist.HeaderMap(mediaPlaylist); m != nil {
		headerURL, err := resolveURL(base, m.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve header URL: %w", err)
		}
		stream.Header = segment.Segment{URI: headerURL, Offset: m.Offset, Length: m.Limit, Sequence: -1}
	}

	stream.TargetDuration = int(mediaPlaylist.TargetDuration)
	if stream.TargetDuration == 0 {
		// If target duration is not set, use the max segment duration
		maxDuration := 0.0
		for _, seg := range stream.Segments {
			if seg.Duration > maxDuration {
				maxDuration = seg.Duration
			}
		}
		stream.TargetDuration = int(maxDuration) + 1
	}

	return info, nil
}

// resolveURL resolves a possibly relative URL against a base URL. References
// are returned unchanged when base is not an http(s) URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	if !isURL(baseURL) {
		return relativeURL, nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// FetchContent opens an http(s) URL or a local file.
func FetchContent(source string) (io.ReadCloser, error) {
	if !isURL(source) {
		return os.Open(source)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(source)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return resp.Body, nil
}
