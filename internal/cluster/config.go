package cluster

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Config holds the configuration for a cluster node.
type Config struct {
	// RaftID is the unique identifier for this Raft node.
	RaftID string
	// BindAddr is the address to bind for Raft communication (host:port).
	BindAddr string
	// Peers lists every voter, this node included, as host:port or
	// id=host:port. A peer without an id uses its address as its id.
	Peers []string
	// HeartbeatTimeout is the Raft heartbeat timeout.
	HeartbeatTimeout time.Duration
	// ElectionTimeout is the Raft election timeout.
	ElectionTimeout time.Duration
	// SnapshotInterval is how often to take snapshots.
	SnapshotInterval time.Duration
	// SnapshotThreshold is the number of logs before taking a snapshot.
	SnapshotThreshold uint64
	// Logger receives Raft's own logs. Nil discards them.
	Logger hclog.Logger
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RaftID == "" {
		return fmt.Errorf("raft-id is required")
	}

	if c.BindAddr == "" {
		return fmt.Errorf("raft-bind is required")
	}

	if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
		return fmt.Errorf("invalid raft-bind address %q: %w", c.BindAddr, err)
	}

	if len(c.Peers) == 0 {
		return fmt.Errorf("at least one peer is required")
	}

	for i, peer := range c.Peers {
		id, addr := splitPeer(peer)
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid peer address %d %q: %w", i, peer, err)
		}
		// Every node must bootstrap with the same ids.
		if addr == c.BindAddr && id != c.RaftID {
			return fmt.Errorf("peer %q has id %q, want raft-id %q (write it as %s=%s)", peer, id, c.RaftID, c.RaftID, addr)
		}
	}

	// Set defaults
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 1 * time.Second
	}
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = 1 * time.Second
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = 120 * time.Second
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = 8192
	}

	return nil
}

// splitPeer returns the id and address of a peer entry.
func splitPeer(peer string) (id, addr string) {
	if id, addr, ok := strings.Cut(peer, "="); ok {
		return id, addr
	}
	return peer, peer
}

// ParsePeers splits a comma-separated peer list, dropping empty entries.
func ParsePeers(list string) []string {
	var peers []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
