package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/agleyzer/oggseek/internal/cluster"
	"github.com/agleyzer/oggseek/internal/playlist"
	"github.com/agleyzer/oggseek/internal/segment"
)

func TestStartCluster_NamedNode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stream := playlist.Stream{Serial: 7, Segments: make([]segment.Segment, 3)}

	mgr, err := startCluster(context.Background(), cluster.Config{RaftID: "edge-1", BindAddr: "127.0.0.1:21320"}, stream, logger)
	if err != nil {
		t.Fatalf("startCluster() error = %v", err)
	}
	defer mgr.Shutdown()

	if mgr.NodeID() != "edge-1" || !mgr.IsLeader() {
		t.Errorf("Expected edge-1 to lead its own cluster, got %q leader=%v", mgr.NodeID(), mgr.IsLeader())
	}
}

func TestStartCluster_SingleNode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stream := playlist.Stream{Serial: 7, Segments: make([]segment.Segment, 3)}

	mgr, err := startCluster(context.Background(), cluster.Config{BindAddr: "127.0.0.1:21310"}, stream, logger)
	if err != nil {
		t.Fatalf("startCluster() error = %v", err)
	}
	defer mgr.Shutdown()

	if mgr.NodeID() != "127.0.0.1:21310" {
		t.Errorf("Expected node ID to default to the bind address, got %q", mgr.NodeID())
	}
	state := mgr.GetState()
	if state.TotalSegments != 3 || state.Serial != 7 {
		t.Errorf("Expected the leader to initialize the window, got %+v", state)
	}

	pl, err := playlist.NewShared(stream, 2, mgr, logger)
	if err != nil {
		t.Fatalf("NewShared() error = %v", err)
	}
	pl.Advance()
	if _, sequence := mgr.Position(); sequence != 1 {
		t.Errorf("Expected the leader's advance to replicate, got sequence %d", sequence)
	}
}
