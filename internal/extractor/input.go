// Package extractor defines the contracts shared by media extractors: the byte
// source they read from, the sink they write tracks and samples to, and the
// seek map they publish.
package extractor

import (
	"context"
	"fmt"
	"io"
)

// LengthUnknown is returned by Input.Length when the size of the source is not known.
const LengthUnknown int64 = -1

// DefaultChunkSize bounds a single read against the underlying source.
const DefaultChunkSize = 64 * 1024

// Input is a random-access byte source with a separate peek cursor.
//
// Peek operations read ahead of the read position without consuming bytes;
// ResetPeek moves the peek cursor back to the read position. ReadFully and
// PeekFully return io.EOF if no bytes were available and io.ErrUnexpectedEOF
// if the source ended part way, leaving both cursors unchanged.
type Input interface {
	// Read reads up to len(p) bytes and advances the read position.
	Read(p []byte) (int, error)

	// ReadFully reads exactly len(p) bytes and advances the read position.
	ReadFully(p []byte) error

	// Skip advances the read position by n bytes.
	Skip(n int64) error

	// PeekFully reads exactly len(p) bytes at the peek position and advances it.
	PeekFully(p []byte) error

	// AdvancePeek advances the peek position by n bytes.
	AdvancePeek(n int64) error

	// ResetPeek moves the peek position back to the read position.
	ResetPeek()

	// Position returns the current read position.
	Position() int64

	// PeekPosition returns the current peek position.
	PeekPosition() int64

	// Length returns the total length of the source, or LengthUnknown.
	Length() int64
}

// ReaderInput implements Input over an io.ReaderAt.
//
// Every blocking read is split into chunks and the context is checked before
// each chunk, so a cancelled context interrupts a long read promptly.
type ReaderInput struct {
	ctx       context.Context
	r         io.ReaderAt
	length    int64
	pos       int64
	peek      int64
	chunkSize int
}

// InputOption configures a ReaderInput.
type InputOption func(*ReaderInput)

// WithChunkSize sets the maximum number of bytes requested from the source per call.
func WithChunkSize(n int) InputOption {
	return func(in *ReaderInput) {
		if n > 0 {
			in.chunkSize = n
		}
	}
}

// WithPosition starts the input at the given read position.
func WithPosition(pos int64) InputOption {
	return func(in *ReaderInput) {
		in.pos = pos
		in.peek = pos
	}
}

// NewReaderInput creates an Input reading from r. length may be LengthUnknown.
func NewReaderInput(ctx context.Context, r io.ReaderAt, length int64, opts ...InputOption) *ReaderInput {
	in := &ReaderInput{
		ctx:       ctx,
		r:         r,
		length:    length,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Position returns the read position.
func (in *ReaderInput) Position() int64 { return in.pos }

// PeekPosition returns the peek position.
func (in *ReaderInput) PeekPosition() int64 { return in.peek }

// Length returns the source length or LengthUnknown.
func (in *ReaderInput) Length() int64 { return in.length }

// ResetPeek moves the peek position back to the read position.
func (in *ReaderInput) ResetPeek() { in.peek = in.pos }

// SetPosition repositions the input. Both cursors move to pos.
func (in *ReaderInput) SetPosition(pos int64) error {
	if pos < 0 || (in.length != LengthUnknown && pos > in.length) {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, pos)
	}
	in.pos = pos
	in.peek = pos
	return nil
}

// Read reads up to len(p) bytes at the read position.
func (in *ReaderInput) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := in.readAt(p, in.pos)
	in.pos += int64(n)
	if in.peek < in.pos {
		in.peek = in.pos
	}
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}

// ReadFully reads exactly len(p) bytes at the read position.
func (in *ReaderInput) ReadFully(p []byte) error {
	n, err := in.readAt(p, in.pos)
	if err != nil {
		return fullReadError(n, err)
	}
	in.pos += int64(n)
	if in.peek < in.pos {
		in.peek = in.pos
	}
	return nil
}

// PeekFully reads exactly len(p) bytes at the peek position.
func (in *ReaderInput) PeekFully(p []byte) error {
	n, err := in.readAt(p, in.peek)
	if err != nil {
		return fullReadError(n, err)
	}
	in.peek += int64(n)
	return nil
}

// Skip advances the read position by n bytes.
func (in *ReaderInput) Skip(n int64) error {
	if err := in.ensureAvailable(in.pos, n); err != nil {
		return err
	}
	in.pos += n
	if in.peek < in.pos {
		in.peek = in.pos
	}
	return nil
}

// AdvancePeek advances the peek position by n bytes.
func (in *ReaderInput) AdvancePeek(n int64) error {
	if err := in.ensureAvailable(in.peek, n); err != nil {
		return err
	}
	in.peek += n
	return nil
}

// ensureAvailable checks that n bytes exist from off. When the length is
// unknown the last byte of the range is probed.
func (in *ReaderInput) ensureAvailable(off, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative skip %d", ErrInvalidPosition, n)
	}
	if err := in.checkInterrupted(); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if in.length != LengthUnknown {
		if off+n > in.length {
			if off >= in.length {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		}
		return nil
	}
	var probe [1]byte
	if _, err := in.readAt(probe[:], off+n-1); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// readAt fills p from off in chunks, checking for cancellation between them.
// It returns io.EOF when the source ends before p is full.
func (in *ReaderInput) readAt(p []byte, off int64) (int, error) {
	if in.length != LengthUnknown && off >= in.length && len(p) > 0 {
		return 0, io.EOF
	}
	read := 0
	for read < len(p) {
		if err := in.checkInterrupted(); err != nil {
			return read, err
		}
		end := min(read+in.chunkSize, len(p))
		if in.length != LengthUnknown {
			end = int(min(int64(end), in.length-off))
			if end <= read {
				return read, io.EOF
			}
		}
		n, err := in.r.ReadAt(p[read:end], off+int64(read))
		read += n
		if err != nil {
			if err == io.EOF && read == len(p) {
				return read, nil
			}
			return read, err
		}
		if n == 0 {
			return read, io.ErrNoProgress
		}
	}
	return read, nil
}

func (in *ReaderInput) checkInterrupted() error {
	if err := in.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

func fullReadError(n int, err error) error {
	if err == io.EOF {
		if n == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	return err
}
