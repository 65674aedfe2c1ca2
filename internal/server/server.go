// Package server serves an Ogg file over HTTP together with the byte-range
// playlist that indexes it and a seek endpoint backed by the demuxer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/agleyzer/oggseek/internal/ogg"
	"github.com/agleyzer/oggseek/internal/playlist"
	"github.com/agleyzer/oggseek/internal/probe"
	"github.com/google/uuid"
)

// MediaPath is where the Ogg file is served. Playlists handed to the server
// must address their segments by this URI.
const MediaPath = "/media"

const requestIDHeader = "X-Request-ID"

// Source is the served file.
type Source struct {
	Name    string
	Reader  io.ReaderAt
	Size    int64
	ModTime time.Time
}

// ClusterStatus reports the replication state of a shared live window.
type ClusterStatus interface {
	Stats() map[string]interface{}
}

// Config holds the listener settings.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration

	// Cluster is added to health checks when set.
	Cluster ClusterStatus
}

// Server serves the playlist, the media and seek lookups.
type Server struct {
	playlist   playlist.Playlist
	source     Source
	demux      probe.Options
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server
func New(pl playlist.Playlist, source Source, demux probe.Options, config Config, logger *slog.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		playlist: pl,
		source:   source,
		demux:    demux,
		config:   config,
		logger:   logger,
	}
}

// Handler returns the routes wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/playlist.m3u8", s.handlePlaylist)
	mux.HandleFunc(MediaPath, s.handleMedia)
	mux.HandleFunc("/seek", s.handleSeek)
	mux.HandleFunc("/health", s.handleHealth)

	return s.requestIDMiddleware(s.loggingMiddleware(mux))
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String(), "media", s.source.Name)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handlePlaylist serves the current playlist
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	content, err := s.playlist.Generate()
	if err != nil {
		s.logger.Error("failed to generate playlist", "error", err, "request_id", requestID(r))
		http.Error(w, "failed to generate playlist", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// handleMedia serves the file with range support, which the byte-range
// segments rely on.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/ogg")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	content := io.NewSectionReader(s.source.Reader, 0, s.source.Size)
	http.ServeContent(w, r, s.source.Name, s.source.ModTime, content)
}

type seekResponse struct {
	Target  float64 `json:"target"`
	Time    float64 `json:"time"`
	Granule int64   `json:"granule"`
	Offset  int64   `json:"offset"`
}

// handleSeek resolves ?t= to the first packet a player resumes at.
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	t, err := ParseTime(r.URL.Query().Get("t"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	point, err := probe.Seek(r.Context(), s.source.Reader, s.source.Size, t, s.demux)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ogg.ErrSeekFailed):
			status = http.StatusConflict
		case errors.Is(err, extractor.ErrInterrupted):
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("seek failed", "target", t, "error", err, "request_id", requestID(r))
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, seekResponse{
		Target:  point.Target.Seconds(),
		Time:    point.Time.Seconds(),
		Granule: point.Granule,
		Offset:  point.Offset,
	})
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"stats":  s.playlist.GetStats(),
		"media": map[string]interface{}{
			"name": s.source.Name,
			"size": s.source.Size,
		},
	}
	if s.config.Cluster != nil {
		health["cluster"] = s.config.Cluster.Stats()
	}
	writeJSON(w, http.StatusOK, health)
}

// ParseTime accepts a Go duration ("1m30s") or seconds ("90.5").
func ParseTime(value string) (time.Duration, error) {
	if value == "" {
		return 0, errors.New("missing time")
	}
	t, err := time.ParseDuration(value)
	if err != nil {
		seconds, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid time %q", value)
		}
		t = time.Duration(seconds * float64(time.Second))
	}
	if t < 0 {
		return 0, fmt.Errorf("negative time %q", value)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type contextKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(contextKey{}).(string)
	return id
}

// requestIDMiddleware tags each request with an ID, reusing the client's.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"request_id", requestID(r),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
