package transport

import (
	"sync"

	"github.com/rs/zerolog"

	"vizbridged/internal/protocol"
	"vizbridged/pkg/types"
)

// Mode identifies which channel carries audio snapshots.
type Mode string

const (
	// ModeShm publishes frames into the shared-memory region.
	ModeShm Mode = "shm"
	// ModePipe embeds the snapshot in render requests over stdin.
	ModePipe Mode = "pipe"
)

// Selector owns the snapshot channel choice. It tries shared memory at
// startup and silently degrades to the inline pipe form when the region
// cannot be mapped; the choice is sticky until Reconnect, which the bridge
// calls after a runtime restart.
type Selector struct {
	log   zerolog.Logger
	path  string
	codec protocol.FrameCodec

	mu sync.Mutex
	w  *Writer
}

// NewSelector builds a selector for the region at path. Call Open before
// publishing.
func NewSelector(log zerolog.Logger, path string, codec protocol.FrameCodec) *Selector {
	return &Selector{log: log, path: path, codec: codec}
}

// Open attempts the shared-memory channel and returns the selected mode.
// A mapping failure is not an error: the pipe fallback always works.
func (s *Selector) Open() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open()
}

func (s *Selector) open() Mode {
	w, err := NewWriter(s.path, s.codec)
	if err != nil {
		s.log.Warn().Err(err).Str("region", s.path).
			Msg("shared memory unavailable, falling back to pipe transport")
		s.w = nil
		return ModePipe
	}
	s.log.Info().Str("region", s.path).Int("bytes", s.codec.Size()).
		Msg("shared memory region mapped")
	s.w = w
	return ModeShm
}

// Mode reports the current channel.
func (s *Selector) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ModePipe
	}
	return ModeShm
}

// Publish writes snap to the active channel. inline reports whether the
// caller must embed the snapshot in its next render request instead; a
// publish failure demotes the selector to the pipe channel for the rest of
// this runtime generation.
func (s *Selector) Publish(snap *types.AudioSnapshot) (inline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return true
	}
	if err := s.w.Publish(snap); err != nil {
		s.log.Warn().Err(err).Msg("shared memory publish failed, demoting to pipe")
		_ = s.w.Close()
		s.w = nil
		return true
	}
	return false
}

// Reconnect tears the region down and re-evaluates the channel choice.
// Called after the supervisor replaces the runtime process.
func (s *Selector) Reconnect() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w != nil {
		_ = s.w.Close()
		s.w = nil
	}
	return s.open()
}

// RegionPath returns the backing path handed to the runtime so it can map
// the same region.
func (s *Selector) RegionPath() string { return s.path }

// Close releases the region if one is mapped.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}
