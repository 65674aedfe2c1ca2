package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Extractor demultiplexes one container stream into tracks.
//
// Callers must not invoke Read or SeekTo concurrently on the same extractor.
type Extractor interface {
	// Init registers the tracks of the stream with out.
	Init(out Output) error

	// SeekTo prepares the extractor for reading from position, targeting time t.
	// Position 0 restarts extraction from the beginning of the stream.
	SeekTo(position int64, t time.Duration)

	// Read consumes input and forwards samples to the output.
	Read(in Input) (ReadResult, error)

	// Release frees resources held by the extractor. It is safe to call more than once.
	Release()
}

// Factory probes an input and returns an extractor committed to its format.
type Factory struct {
	Name string

	// Sniff returns an error wrapping ErrUnrecognized when the input is not
	// in this factory's format.
	Sniff func(in Input) (Extractor, error)
}

// Registry is an ordered table of factories, consulted first to last.
type Registry struct {
	factories []Factory
}

// NewRegistry creates a registry from factories in priority order.
func NewRegistry(factories ...Factory) *Registry {
	return &Registry{factories: factories}
}

// Names returns the factory names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.factories))
	for i, f := range r.factories {
		names[i] = f.Name
	}
	return names
}

// Detect returns the first extractor whose factory recognizes in, along with
// the factory name. The read position of in is left unchanged.
func (r *Registry) Detect(in Input) (Extractor, string, error) {
	for _, f := range r.factories {
		in.ResetPeek()
		ext, err := f.Sniff(in)
		in.ResetPeek()
		if err == nil {
			return ext, f.Name, nil
		}
		if errors.Is(err, ErrInterrupted) {
			return nil, "", err
		}
	}
	return nil, "", ErrUnrecognized
}

// Step performs one Read and applies a Seek result to in. It reports whether
// the end of input was reached.
func Step(ext Extractor, in *ReaderInput) (bool, error) {
	res, err := ext.Read(in)
	if err != nil {
		return false, err
	}
	switch res.Status {
	case Seek:
		if err := in.SetPosition(res.Position); err != nil {
			return false, fmt.Errorf("reposition input: %w", err)
		}
	case EndOfInput:
		return true, nil
	}
	return false, nil
}

// Drive calls Read until the end of input, repositioning in whenever asked to.
func Drive(ctx context.Context, ext Extractor, in *ReaderInput) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		done, err := Step(ext, in)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
