package cluster

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/hashicorp/raft"
)

func newTestFSM() *WindowFSM {
	return NewWindowFSM(slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)))
}

func mustEncode(t *testing.T, cmd Command) []byte {
	t.Helper()
	data, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("failed to encode command: %v", err)
	}
	return data
}

func initialize(t *testing.T, fsm *WindowFSM, state WindowState) any {
	t.Helper()
	return fsm.Apply(&raft.Log{Data: mustEncode(t, Command{
		Type: CommandInitialize,
		Data: InitializeCommand{State: state},
	})})
}

func advance(t *testing.T, fsm *WindowFSM, from uint64) any {
	t.Helper()
	return fsm.Apply(&raft.Log{Data: mustEncode(t, Command{
		Type: CommandAdvance,
		Data: AdvanceCommand{From: from},
	})})
}

func TestWindowFSM_Apply_Advance(t *testing.T) {
	fsm := newTestFSM()
	if resp := initialize(t, fsm, WindowState{TotalSegments: 5, Serial: 7}); resp != nil {
		t.Fatalf("initialize returned %v", resp)
	}

	tests := []struct {
		name         string
		wantPosition int
		wantSequence uint64
	}{
		{"first advance", 1, 1},
		{"second advance", 2, 2},
		{"third advance", 3, 3},
		{"fourth advance", 4, 4},
		{"wrap around", 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := advance(t, fsm, fsm.GetState().Sequence); resp != nil {
				t.Fatalf("advance returned %v", resp)
			}
			state := fsm.GetState()

			if state.Position != tt.wantPosition {
				t.Errorf("Position = %d, want %d", state.Position, tt.wantPosition)
			}
			if state.Sequence != tt.wantSequence {
				t.Errorf("Sequence = %d, want %d", state.Sequence, tt.wantSequence)
			}
		})
	}
}

func TestWindowFSM_Apply_StaleAdvance(t *testing.T) {
	fsm := newTestFSM()
	initialize(t, fsm, WindowState{TotalSegments: 5})

	advance(t, fsm, 0)
	// A retry of the same tick arrives after the window already moved.
	advance(t, fsm, 0)

	state := fsm.GetState()
	if state.Position != 1 || state.Sequence != 1 {
		t.Errorf("Expected one advance, got position=%d sequence=%d", state.Position, state.Sequence)
	}
}

func TestWindowFSM_Apply_Initialize(t *testing.T) {
	fsm := newTestFSM()

	if resp := advance(t, fsm, 0); resp == nil {
		t.Error("Expected advancing an uninitialized window to fail")
	}
	if resp := initialize(t, fsm, WindowState{TotalSegments: 0}); resp == nil {
		t.Error("Expected an empty window to be rejected")
	}

	initialize(t, fsm, WindowState{TotalSegments: 4, Serial: 1})
	advance(t, fsm, 0)
	advance(t, fsm, 1)

	// Same stream: the window keeps its place.
	initialize(t, fsm, WindowState{TotalSegments: 4, Serial: 1})
	if state := fsm.GetState(); state.Position != 2 || state.Sequence != 2 {
		t.Errorf("Expected window to be kept at 2/2, got %d/%d", state.Position, state.Sequence)
	}

	// Another stream replaces it.
	initialize(t, fsm, WindowState{Position: 9, Sequence: 100, TotalSegments: 4, Serial: 2})
	state := fsm.GetState()
	if state.Serial != 2 || state.Sequence != 100 {
		t.Errorf("Expected the new stream's state, got %+v", state)
	}
	if state.Position != 1 {
		t.Errorf("Expected position reduced modulo the segment count, got %d", state.Position)
	}
}

func TestWindowFSM_Apply_Invalid(t *testing.T) {
	fsm := newTestFSM()

	if resp := fsm.Apply(&raft.Log{Data: []byte("garbage")}); resp == nil {
		t.Error("Expected an error for undecodable data")
	}
	if resp := fsm.Apply(&raft.Log{Data: mustEncode(t, Command{Type: 99, Data: AdvanceCommand{}})}); resp == nil {
		t.Error("Expected an error for an unknown command")
	}
	if resp := fsm.Apply(&raft.Log{Data: mustEncode(t, Command{Type: CommandAdvance, Data: InitializeCommand{}})}); resp == nil {
		t.Error("Expected an error for mismatched command data")
	}
}

func TestWindowFSM_Snapshot_Restore(t *testing.T) {
	fsm := newTestFSM()
	initialize(t, fsm, WindowState{Position: 3, Sequence: 42, TotalSegments: 10, Serial: 0xBEEF})

	snapshot, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	var buf bytes.Buffer
	sink := &mockSnapshotSink{buf: &buf}
	if err := snapshot.Persist(sink); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	fsm2 := newTestFSM()
	if err := fsm2.Restore(io.NopCloser(&buf)); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	want := WindowState{Position: 3, Sequence: 42, TotalSegments: 10, Serial: 0xBEEF}
	if state := fsm2.GetState(); state != want {
		t.Errorf("Restored state = %+v, want %+v", state, want)
	}
}

func TestWindowFSM_GetState_Concurrent(t *testing.T) {
	fsm := newTestFSM()
	initialize(t, fsm, WindowState{TotalSegments: 100})

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = fsm.GetState()
			}
			done <- true
		}()
	}

	commands := make([][]byte, 50)
	for j := range commands {
		commands[j] = mustEncode(t, Command{Type: CommandAdvance, Data: AdvanceCommand{From: uint64(j)}})
	}
	go func() {
		for _, data := range commands {
			fsm.Apply(&raft.Log{Data: data})
		}
		done <- true
	}()

	for i := 0; i < 11; i++ {
		<-done
	}

	if state := fsm.GetState(); state.Sequence != 50 {
		t.Errorf("Sequence = %d, want 50", state.Sequence)
	}
}

// mockSnapshotSink implements raft.SnapshotSink for testing.
type mockSnapshotSink struct {
	buf *bytes.Buffer
}

func (m *mockSnapshotSink) Write(p []byte) (n int, err error) {
	return m.buf.Write(p)
}

func (m *mockSnapshotSink) Close() error {
	return nil
}

func (m *mockSnapshotSink) ID() string {
	return "mock"
}

func (m *mockSnapshotSink) Cancel() error {
	return nil
}
