package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"vizbridged/internal/protocol"
	"vizbridged/pkg/types"
)

// DefaultRegionDir is where named snapshot regions live on Linux.
const DefaultRegionDir = "/dev/shm"

// RegionPath resolves a region name to its backing file path.
func RegionPath(name string) string {
	return filepath.Join(DefaultRegionDir, name)
}

// Writer is the producer side of the shared-memory snapshot channel. It owns
// the backing file and the mapping; Publish writes straight into the mapped
// region without allocating or locking, so it is safe to call from a
// fixed-cadence producer.
type Writer struct {
	f     *os.File
	mem   []byte
	codec protocol.FrameCodec
}

// NewWriter creates (or truncates) the region at path, sized for codec, and
// maps it read-write.
func NewWriter(path string, codec protocol.FrameCodec) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, ErrUnavailable(fmt.Sprintf("open region %s: %v", path, err))
	}
	size := codec.Size()
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, ErrUnavailable(fmt.Sprintf("size region to %d: %v", size, err))
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, ErrUnavailable(fmt.Sprintf("mmap region: %v", err))
	}
	// Start from an all-zero region so a reader attached before the first
	// Publish sees a bad-magic frame, not garbage.
	for i := range mem {
		mem[i] = 0
	}
	return &Writer{f: f, mem: mem, codec: codec}, nil
}

// Publish encodes snap into the region. The codec writes the frame counter
// last, which is what lets a concurrent reader detect a torn frame.
func (w *Writer) Publish(snap *types.AudioSnapshot) error {
	_, err := w.codec.Encode(w.mem, snap)
	return err
}

// Close unmaps the region, closes the file and removes the backing path.
// The writer created the region, so it owns cleanup.
func (w *Writer) Close() error {
	path := w.f.Name()
	err := unix.Munmap(w.mem)
	w.mem = nil
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if rerr := os.Remove(path); err == nil && !os.IsNotExist(rerr) {
		err = rerr
	}
	return err
}

// Reader is the consumer side of the channel. The daemon itself only reads
// regions in tests and debug tooling; the production consumer is the plugin
// runtime, which implements the same generation check.
type Reader struct {
	f     *os.File
	mem   []byte
	codec protocol.FrameCodec

	// StaleAfter bounds how long the counter may sit unchanged before Read
	// reports a stale frame. Zero disables the progress check.
	StaleAfter time.Duration

	lastCounter uint32
	lastChange  time.Time
}

// NewReader maps an existing region at path read-only.
func NewReader(path string, codec protocol.FrameCodec) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrUnavailable(fmt.Sprintf("open region %s: %v", path, err))
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, codec.Size(),
		unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, ErrUnavailable(fmt.Sprintf("mmap region: %v", err))
	}
	return &Reader{f: f, mem: mem, codec: codec, lastChange: time.Now()}, nil
}

// Read decodes the current frame into snap. It brackets the body read with
// two counter loads; on a mismatch it retries exactly once, then gives up
// with a stale error. A counter that makes no progress for longer than
// StaleAfter is also reported stale.
func (r *Reader) Read(snap *types.AudioSnapshot) error {
	after, err := readFrame(r.mem, r.codec, snap, nil)
	if err != nil {
		return err
	}

	if after != r.lastCounter {
		r.lastCounter = after
		r.lastChange = time.Now()
	} else if r.StaleAfter > 0 && time.Since(r.lastChange) > r.StaleAfter {
		return ErrStale(fmt.Sprintf("counter %d unchanged for %s", after, r.StaleAfter))
	}
	return nil
}

// readFrame is the generation check: load the counter, decode the body,
// load the counter again; a mismatch means a concurrent writer tore the
// frame, so decode once more, and give up if the second bracket tears too.
// between, when non-nil, runs after each body decode and stands in for the
// concurrent writer in tests.
func readFrame(mem []byte, codec protocol.FrameCodec, snap *types.AudioSnapshot, between func()) (uint32, error) {
	before := protocol.Counter(mem)
	if err := codec.Decode(mem, snap); err != nil {
		return 0, err
	}
	if between != nil {
		between()
	}
	after := protocol.Counter(mem)
	if after == before {
		return after, nil
	}

	before = after
	if err := codec.Decode(mem, snap); err != nil {
		return 0, err
	}
	if between != nil {
		between()
	}
	after = protocol.Counter(mem)
	if after != before {
		return 0, ErrStale("torn frame after retry")
	}
	return after, nil
}

// Close unmaps the region and closes the file. Readers never remove the
// backing path.
func (r *Reader) Close() error {
	err := unix.Munmap(r.mem)
	r.mem = nil
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
