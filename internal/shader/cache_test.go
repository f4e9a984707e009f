package shader

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// fakeCompiler counts compiles and fails keys listed in fail.
type fakeCompiler struct {
	caps     Capability
	compiles int
	releases []uint32
	fail     map[string]error
	next     uint32
}

func (f *fakeCompiler) Compile(fragment, compute string) (uint32, error) {
	f.compiles++
	if err, ok := f.fail[fragment]; ok {
		return 0, err
	}
	f.next++
	return f.next, nil
}

func (f *fakeCompiler) Release(handle uint32) { f.releases = append(f.releases, handle) }

func (f *fakeCompiler) Capability() Capability { return f.caps }

func newTestCache(caps Capability) (*Cache, *fakeCompiler) {
	comp := &fakeCompiler{caps: caps, fail: map[string]error{}}
	return NewCache(zerolog.Nop(), comp), comp
}

func TestResolveCompilesOnce(t *testing.T) {
	c, comp := newTestCache(Capability{PersistentCompute: true, MaxWorkItems: 1024})
	req := Request{Key: "spectrum.v1", FragmentSource: "frag", ComputeSource: "comp",
		BufferSize: 4096}

	first, err := c.Resolve(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Changed uniforms mean the same request key; identity must hold.
	second, err := c.Resolve(req)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first != second {
		t.Fatalf("cache returned distinct programs for one key")
	}
	if comp.compiles != 1 {
		t.Fatalf("expected 1 compile, got %d", comp.compiles)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestResolvePersistentPath(t *testing.T) {
	c, _ := newTestCache(Capability{PersistentCompute: true, MaxWorkItems: 256})
	p, err := c.Resolve(Request{Key: "k", FragmentSource: "f", ComputeSource: "c",
		BufferSize: 8192})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Path != PathParallelPersistent {
		t.Fatalf("path: %q", p.Path)
	}
	if p.BufferSize != 8192 {
		t.Fatalf("buffer size: %d", p.BufferSize)
	}
	if p.WorkItemLimit != 0 {
		t.Fatalf("work item limit set on persistent path: %d", p.WorkItemLimit)
	}
}

func TestResolveStatelessFallback(t *testing.T) {
	c, _ := newTestCache(Capability{PersistentCompute: false, MaxWorkItems: 256})
	p, err := c.Resolve(Request{Key: "k", FragmentSource: "f", ComputeSource: "c",
		BufferSize: 8192})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Path != PathStateless {
		t.Fatalf("path: %q", p.Path)
	}
	if p.WorkItemLimit != 256 {
		t.Fatalf("work item limit not reported: %d", p.WorkItemLimit)
	}
	if p.BufferSize != 0 {
		t.Fatalf("persistent buffer on stateless path: %d", p.BufferSize)
	}
}

func TestResolveFragmentOnlyIsStateless(t *testing.T) {
	c, _ := newTestCache(Capability{PersistentCompute: true, MaxWorkItems: 512})
	p, err := c.Resolve(Request{Key: "k", FragmentSource: "f"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Path != PathStateless {
		t.Fatalf("fragment-only program must be stateless, got %q", p.Path)
	}
}

func TestResolveCompileFailure(t *testing.T) {
	c, comp := newTestCache(Capability{MaxWorkItems: 64})
	comp.fail["bad"] = errors.New("syntax error at line 3")

	if _, err := c.Resolve(Request{Key: "good", FragmentSource: "f"}); err != nil {
		t.Fatalf("resolve good: %v", err)
	}
	_, err := c.Resolve(Request{Key: "broken", FragmentSource: "bad"})
	if !IsCompileFailed(err) {
		t.Fatalf("expected compile-failed, got %v", err)
	}
	// Other entries survive a failure.
	if c.Len() != 1 {
		t.Fatalf("cache len: %d", c.Len())
	}
	if _, err := c.Resolve(Request{Key: "good", FragmentSource: "f"}); err != nil {
		t.Fatalf("resolve good after failure: %v", err)
	}
	// Good compile, broken compile, then a cache hit for the good key.
	if comp.compiles != 2 {
		t.Fatalf("compiles: %d", comp.compiles)
	}
	if c.Stats().Failures != 1 {
		t.Fatalf("failures: %d", c.Stats().Failures)
	}
}

func TestClearReleasesPrograms(t *testing.T) {
	c, comp := newTestCache(Capability{MaxWorkItems: 64})
	if _, err := c.Resolve(Request{Key: "a", FragmentSource: "fa"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := c.Resolve(Request{Key: "b", FragmentSource: "fb"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	c.Clear()
	if len(comp.releases) != 2 {
		t.Fatalf("released %d programs, want 2", len(comp.releases))
	}
	if c.Len() != 0 {
		t.Fatalf("cache not empty after clear")
	}
	// A cleared key recompiles.
	if _, err := c.Resolve(Request{Key: "a", FragmentSource: "fa"}); err != nil {
		t.Fatalf("resolve after clear: %v", err)
	}
	if comp.compiles != 3 {
		t.Fatalf("compiles after clear: %d", comp.compiles)
	}
}
