package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

const applyTimeout = 5 * time.Second

// Manager runs the Raft node that holds the window state.
type Manager struct {
	config    Config
	raft      *raft.Raft
	fsm       *WindowFSM
	transport *raft.NetworkTransport
	logger    *slog.Logger
	mu        sync.RWMutex
	shutdown  bool
}

// NewManager creates a new cluster manager.
func NewManager(config Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{
		config: config,
		fsm:    NewWindowFSM(logger),
		logger: logger,
	}, nil
}

// Start initializes and starts the Raft node.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return fmt.Errorf("cluster is shut down")
	}
	if m.raft != nil {
		return fmt.Errorf("cluster already started")
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(m.config.RaftID)
	raftConfig.HeartbeatTimeout = m.config.HeartbeatTimeout
	raftConfig.ElectionTimeout = m.config.ElectionTimeout
	raftConfig.LeaderLeaseTimeout = m.config.HeartbeatTimeout
	raftConfig.SnapshotInterval = m.config.SnapshotInterval
	raftConfig.SnapshotThreshold = m.config.SnapshotThreshold
	raftConfig.Logger = raftLogger(m.config.Logger)

	// The window is cheap to rebuild, so nothing is persisted.
	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()
	snapshotStore := raft.NewInmemSnapshotStore()

	addr, err := net.ResolveTCPAddr("tcp", m.config.BindAddr)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.config.BindAddr, addr, 3, 10*time.Second, nil)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	m.transport = transport

	r, err := raft.NewRaft(raftConfig, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		transport.Close()
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: make([]raft.Server, 0, len(m.config.Peers)),
	}
	for _, peer := range m.config.Peers {
		id, addr := splitPeer(peer)
		configuration.Servers = append(configuration.Servers, raft.Server{
			ID:       raft.ServerID(id),
			Address:  raft.ServerAddress(addr),
			Suffrage: raft.Voter,
		})
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		// The node may be joining an existing cluster.
		m.logger.Error("failed to bootstrap cluster", "error", err)
	}

	m.logger.Info("cluster started",
		"node_id", m.config.RaftID,
		"bind", m.config.BindAddr,
		"peers", len(m.config.Peers))

	return nil
}

func (m *Manager) node() (*raft.Raft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shutdown {
		return nil, fmt.Errorf("cluster is shut down")
	}
	if m.raft == nil {
		return nil, fmt.Errorf("cluster not started")
	}
	return m.raft, nil
}

func (m *Manager) apply(cmd Command) error {
	r, err := m.node()
	if err != nil {
		return err
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	future := r.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if err, ok := future.Response().(error); ok {
		return err
	}
	return nil
}

// AdvanceWindow moves the replicated window forward by one segment.
func (m *Manager) AdvanceWindow() error {
	return m.apply(Command{
		Type: CommandAdvance,
		Data: AdvanceCommand{From: m.fsm.GetState().Sequence},
	})
}

// Initialize sets the stream the window loops over.
func (m *Manager) Initialize(state WindowState) error {
	return m.apply(Command{
		Type: CommandInitialize,
		Data: InitializeCommand{State: state},
	})
}

// GetState returns the current window state.
func (m *Manager) GetState() WindowState {
	return m.fsm.GetState()
}

// Position returns the window position and media sequence.
func (m *Manager) Position() (int, uint64) {
	state := m.fsm.GetState()
	return state.Position, state.Sequence
}

// IsLeader returns true if this node is the Raft leader.
func (m *Manager) IsLeader() bool {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return false
	}

	return r.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return ""
	}

	leaderAddr, _ := r.LeaderWithID()
	return string(leaderAddr)
}

// State returns the current Raft state.
func (m *Manager) State() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return "NotStarted"
	}

	return r.State().String()
}

// Peers returns the list of peer addresses.
func (m *Manager) Peers() []string {
	return m.config.Peers
}

// NodeID returns this node's Raft ID.
func (m *Manager) NodeID() string {
	return m.config.RaftID
}

// Stats reports the node's view of the cluster for health checks.
func (m *Manager) Stats() map[string]interface{} {
	state := m.GetState()
	return map[string]interface{}{
		"node_id":  m.NodeID(),
		"state":    m.State(),
		"leader":   m.LeaderAddr(),
		"peers":    len(m.config.Peers),
		"position": state.Position,
		"sequence": state.Sequence,
	}
}

// Shutdown gracefully shuts down the Raft node.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}

	m.shutdown = true

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			m.logger.Error("failed to shutdown raft", "error", err)
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}

	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Error("failed to close transport", "error", err)
			return fmt.Errorf("close transport: %w", err)
		}
	}

	m.logger.Info("cluster shut down")
	return nil
}

// WaitForLeader blocks until a leader is elected or ctx is cancelled.
func (m *Manager) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.LeaderAddr() != "" {
				return nil
			}
		}
	}
}
