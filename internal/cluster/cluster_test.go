package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestManager_NewManager(t *testing.T) {
	logger := createTestLogger()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				RaftID:   "node1",
				BindAddr: "127.0.0.1:9000",
				Peers:    []string{"node1=127.0.0.1:9000", "127.0.0.1:9001"},
			},
			wantErr: false,
		},
		{
			name: "address as id",
			config: Config{
				RaftID:   "127.0.0.1:9000",
				BindAddr: "127.0.0.1:9000",
				Peers:    []string{"127.0.0.1:9000"},
			},
			wantErr: false,
		},
		{
			name: "own peer entry with another id",
			config: Config{
				RaftID:   "node1",
				BindAddr: "127.0.0.1:9000",
				Peers:    []string{"127.0.0.1:9000"},
			},
			wantErr: true,
		},
		{
			name: "missing raft-id",
			config: Config{
				BindAddr: "127.0.0.1:9000",
				Peers:    []string{"127.0.0.1:9000"},
			},
			wantErr: true,
		},
		{
			name: "missing bind-addr",
			config: Config{
				RaftID: "node1",
				Peers:  []string{"127.0.0.1:9000"},
			},
			wantErr: true,
		},
		{
			name: "missing peers",
			config: Config{
				RaftID:   "node1",
				BindAddr: "127.0.0.1:9000",
			},
			wantErr: true,
		},
		{
			name: "invalid bind-addr",
			config: Config{
				RaftID:   "node1",
				BindAddr: "invalid",
				Peers:    []string{"127.0.0.1:9000"},
			},
			wantErr: true,
		},
		{
			name: "invalid peer",
			config: Config{
				RaftID:   "node1",
				BindAddr: "127.0.0.1:9000",
				Peers:    []string{"127.0.0.1:9000", "nope"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.config, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	config := Config{RaftID: "n", BindAddr: "127.0.0.1:9000", Peers: []string{"n=127.0.0.1:9000"}}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if config.HeartbeatTimeout != time.Second || config.ElectionTimeout != time.Second {
		t.Errorf("Unexpected timeouts %v/%v", config.HeartbeatTimeout, config.ElectionTimeout)
	}
	if config.SnapshotInterval != 120*time.Second || config.SnapshotThreshold != 8192 {
		t.Errorf("Unexpected snapshot settings %v/%d", config.SnapshotInterval, config.SnapshotThreshold)
	}
}

func TestParsePeers(t *testing.T) {
	got := ParsePeers(" 127.0.0.1:7000, ,127.0.0.1:7001,")
	want := []string{"127.0.0.1:7000", "127.0.0.1:7001"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePeers() = %v, want %v", got, want)
	}
	if got := ParsePeers(""); len(got) != 0 {
		t.Errorf("ParsePeers(\"\") = %v, want empty", got)
	}
}

func TestManager_NotStarted(t *testing.T) {
	manager, err := NewManager(Config{
		RaftID:   "node1",
		BindAddr: "127.0.0.1:9000",
		Peers:    []string{"node1=127.0.0.1:9000"},
	}, createTestLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if manager.State() != "NotStarted" || manager.IsLeader() || manager.LeaderAddr() != "" {
		t.Error("Expected an idle manager before Start")
	}
	if err := manager.AdvanceWindow(); err == nil {
		t.Error("Expected AdvanceWindow to fail before Start")
	}
	if err := manager.Initialize(WindowState{TotalSegments: 1}); err == nil {
		t.Error("Expected Initialize to fail before Start")
	}
	if err := manager.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := manager.Start(context.Background()); err == nil {
		t.Error("Expected Start to fail after Shutdown")
	}
}

func TestManager_StartAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	config := Config{
		RaftID:            "node1",
		BindAddr:          "127.0.0.1:0",
		Peers:             []string{"node1=127.0.0.1:0"},
		HeartbeatTimeout:  100 * time.Millisecond,
		ElectionTimeout:   100 * time.Millisecond,
		SnapshotInterval:  1 * time.Hour,
		SnapshotThreshold: 10000,
	}

	manager, err := NewManager(config, createTestLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if manager.State() == "NotStarted" {
		t.Error("Manager should be started")
	}
	if err := manager.Start(context.Background()); err == nil {
		t.Error("Expected a second Start to fail")
	}

	if err := manager.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := manager.Shutdown(); err != nil {
		t.Errorf("Second Shutdown() error = %v", err)
	}
}

func TestManager_ReplicatesWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	manager := createTestCluster(t, 1, 21000)[0]
	defer manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.WaitForLeader(ctx); err != nil {
		t.Fatalf("WaitForLeader() error = %v", err)
	}

	if err := manager.Initialize(WindowState{TotalSegments: 3, Serial: 0xBEEF}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := manager.AdvanceWindow(); err != nil {
			t.Fatalf("AdvanceWindow() error = %v", err)
		}
	}

	// Apply returns once the command is applied on the leader.
	position, sequence := manager.Position()
	if position != 1 || sequence != 4 {
		t.Errorf("Position() = %d/%d, want 1/4", position, sequence)
	}
	if !manager.IsLeader() {
		t.Error("Expected the single node to lead")
	}

	stats := manager.Stats()
	if stats["state"] != "Leader" || stats["sequence"] != uint64(4) {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestManager_ThreeNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	managers := createTestCluster(t, 3, 21100)
	defer func() {
		for _, m := range managers {
			m.Shutdown()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var leader *Manager
	for leader == nil {
		if err := managers[0].WaitForLeader(ctx); err != nil {
			t.Fatalf("WaitForLeader() error = %v", err)
		}
		for _, m := range managers {
			if m.IsLeader() {
				leader = m
			}
		}
		if leader == nil {
			time.Sleep(50 * time.Millisecond)
		}
	}

	if err := leader.Initialize(WindowState{TotalSegments: 5, Serial: 1}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := leader.AdvanceWindow(); err != nil {
		t.Fatalf("AdvanceWindow() error = %v", err)
	}

	// Followers apply the log asynchronously.
	for _, m := range managers {
		for {
			if _, sequence := m.Position(); sequence == 1 {
				break
			}
			select {
			case <-ctx.Done():
				t.Fatalf("node %s did not catch up: %+v", m.NodeID(), m.GetState())
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}

func TestManager_NamedNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	addrs := []string{"127.0.0.1:21200", "127.0.0.1:21201"}
	peers := []string{"alpha=" + addrs[0], "beta=" + addrs[1]}
	names := []string{"alpha", "beta"}

	managers := make([]*Manager, len(addrs))
	for i := range addrs {
		m, err := NewManager(Config{
			RaftID:           names[i],
			BindAddr:         addrs[i],
			Peers:            peers,
			HeartbeatTimeout: 100 * time.Millisecond,
			ElectionTimeout:  100 * time.Millisecond,
		}, createTestLogger())
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer m.Shutdown()
		managers[i] = m
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		for _, m := range managers {
			if m.IsLeader() {
				// Raft reports the leader by the id each node bootstrapped with.
				_, id := m.raft.LeaderWithID()
				if string(id) != m.NodeID() {
					t.Errorf("Expected leader id %q, got %q", m.NodeID(), id)
				}
				return
			}
		}
		select {
		case <-ctx.Done():
			t.Fatal("no leader elected")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestSplitPeer(t *testing.T) {
	tests := []struct {
		peer, id, addr string
	}{
		{"127.0.0.1:7000", "127.0.0.1:7000", "127.0.0.1:7000"},
		{"node1=127.0.0.1:7000", "node1", "127.0.0.1:7000"},
	}
	for _, tt := range tests {
		id, addr := splitPeer(tt.peer)
		if id != tt.id || addr != tt.addr {
			t.Errorf("splitPeer(%q) = %q, %q, want %q, %q", tt.peer, id, addr, tt.id, tt.addr)
		}
	}
}

// createTestCluster starts nodeCount nodes on consecutive ports.
func createTestCluster(t *testing.T, nodeCount, basePort int) []*Manager {
	t.Helper()

	peers := make([]string, nodeCount)
	for i := 0; i < nodeCount; i++ {
		peers[i] = fmt.Sprintf("127.0.0.1:%d", basePort+i)
	}

	managers := make([]*Manager, nodeCount)
	for i := 0; i < nodeCount; i++ {
		config := Config{
			RaftID:            peers[i],
			BindAddr:          peers[i],
			Peers:             peers,
			HeartbeatTimeout:  100 * time.Millisecond,
			ElectionTimeout:   100 * time.Millisecond,
			SnapshotInterval:  1 * time.Hour,
			SnapshotThreshold: 10000,
		}

		manager, err := NewManager(config, createTestLogger())
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if err := manager.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		managers[i] = manager
	}

	return managers
}
