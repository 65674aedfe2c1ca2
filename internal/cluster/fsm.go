// Package cluster replicates the live playlist window between oggseek servers
// with Raft, so every node serves the same segments at the same sequence.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"
)

func init() {
	gob.Register(AdvanceCommand{})
	gob.Register(InitializeCommand{})
}

// WindowState is the replicated position of the live window.
type WindowState struct {
	// Position is the index of the first segment in the window.
	Position int
	// Sequence is the HLS media sequence number.
	Sequence uint64
	// TotalSegments is the number of segments the window loops over.
	TotalSegments int
	// Serial identifies the bitstream being served.
	Serial uint32
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandAdvance moves the window forward by one segment.
	CommandAdvance CommandType = 1
	// CommandInitialize sets the stream the window loops over.
	CommandInitialize CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// AdvanceCommand advances the window if it is still at sequence From. A
// leader that retries after losing its lease cannot advance twice.
type AdvanceCommand struct {
	From uint64
}

// InitializeCommand sets the initial state. A state for the same stream is
// kept so that a restarted leader does not rewind the window.
type InitializeCommand struct {
	State WindowState
}

// WindowFSM implements raft.FSM over the window state.
type WindowFSM struct {
	mu     sync.RWMutex
	state  WindowState
	logger *slog.Logger
}

// NewWindowFSM creates an empty WindowFSM.
func NewWindowFSM(logger *slog.Logger) *WindowFSM {
	return &WindowFSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM.
func (f *WindowFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandAdvance:
		return f.applyAdvance(cmd.Data)
	case CommandInitialize:
		return f.applyInitialize(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *WindowFSM) applyAdvance(data any) any {
	adv, ok := data.(AdvanceCommand)
	if !ok {
		return fmt.Errorf("invalid advance command data")
	}
	if f.state.TotalSegments == 0 {
		return fmt.Errorf("window not initialized")
	}
	if adv.From != f.state.Sequence {
		f.logger.Debug("ignoring stale advance", "from", adv.From, "sequence", f.state.Sequence)
		return nil
	}

	f.state.Position = (f.state.Position + 1) % f.state.TotalSegments
	f.state.Sequence++
	f.logger.Debug("advanced window", "position", f.state.Position, "sequence", f.state.Sequence)
	return nil
}

func (f *WindowFSM) applyInitialize(data any) any {
	ic, ok := data.(InitializeCommand)
	if !ok {
		return fmt.Errorf("invalid initialize command data")
	}
	if ic.State.TotalSegments <= 0 {
		return fmt.Errorf("window needs at least one segment")
	}

	current := f.state
	if current.TotalSegments == ic.State.TotalSegments && current.Serial == ic.State.Serial {
		f.logger.Debug("window already initialized", "position", current.Position, "sequence", current.Sequence)
		return nil
	}

	f.state = ic.State
	f.state.Position %= f.state.TotalSegments
	f.logger.Info("initialized window state", "serial", f.state.Serial, "total_segments", f.state.TotalSegments)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *WindowFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{state: f.state}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *WindowFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state WindowState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored window state from snapshot", "serial", state.Serial, "total_segments", state.TotalSegments)
	return nil
}

// GetState returns a copy of the current state.
func (f *WindowFSM) GetState() WindowState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

type fsmSnapshot struct {
	state WindowState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
