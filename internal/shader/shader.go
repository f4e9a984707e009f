// Package shader caches compiled GPU pipelines for plugin-supplied shader
// instructions. Compilation is delegated to an injected Compiler so the
// package never touches a GPU API directly; the host renderer supplies the
// real backend and tests supply fakes.
package shader

import (
	"fmt"
)

// Path names the execution strategy chosen for a program.
type Path string

const (
	// PathParallelPersistent runs the compute stage against a
	// host-allocated buffer that survives across frames.
	PathParallelPersistent Path = "parallel_persistent"
	// PathStateless re-dispatches every frame with a bounded work-item
	// count and no retained buffer.
	PathStateless Path = "stateless"
)

// Capability describes what the backing GPU supports. Probed once per
// cache lifetime.
type Capability struct {
	// PersistentCompute is true when buffers may survive across frames.
	PersistentCompute bool
	// MaxWorkItems caps a stateless dispatch.
	MaxWorkItems int
}

// Request identifies a pipeline to resolve. Key is the identity: two
// requests with the same key share one compiled program regardless of the
// uniform values later bound to it.
type Request struct {
	Key            string
	FragmentSource string
	ComputeSource  string
	BufferSize     int
}

// Program is a resolved cache entry.
type Program struct {
	Key    string
	Handle uint32
	Path   Path
	// BufferSize is the persistent buffer byte size on the
	// parallel-persistent path, zero otherwise.
	BufferSize int
	// WorkItemLimit is the active dispatch cap on the stateless path,
	// zero otherwise.
	WorkItemLimit int
}

// Compiler is the GPU backend seam.
type Compiler interface {
	// Compile builds a pipeline from the given stages and returns an
	// opaque handle. compute may be empty for fragment-only programs.
	Compile(fragment, compute string) (uint32, error)
	// Release frees a compiled pipeline.
	Release(handle uint32)
	// Capability reports what the device supports.
	Capability() Capability
}

// compileFailedError carries the backend diagnostic for one shader. The
// render path drops the offending instruction and keeps the frame.
type compileFailedError struct {
	key  string
	diag error
}

func (e compileFailedError) Error() string {
	return fmt.Sprintf("shader %s: compile failed: %v", e.key, e.diag)
}

func (e compileFailedError) Unwrap() error { return e.diag }

// ErrCompileFailed wraps a backend compile diagnostic.
func ErrCompileFailed(key string, diag error) error {
	return compileFailedError{key: key, diag: diag}
}

// IsCompileFailed reports whether err is a shader compile failure.
func IsCompileFailed(err error) bool {
	_, ok := err.(compileFailedError)
	return ok
}
