package shader

import (
	"github.com/rs/zerolog"
)

// Stats counts cache activity since construction or the last Clear.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Failures uint64
}

// Cache maps shader cache keys to compiled programs. It is confined to the
// render goroutine and therefore takes no locks; callers that expose its
// state elsewhere serialize around it.
type Cache struct {
	log  zerolog.Logger
	comp Compiler

	caps    Capability
	capOnce bool

	programs map[string]*Program
	stats    Stats
}

// NewCache builds an empty cache over comp.
func NewCache(log zerolog.Logger, comp Compiler) *Cache {
	return &Cache{log: log, comp: comp, programs: make(map[string]*Program)}
}

func (c *Cache) capability() Capability {
	if !c.capOnce {
		c.caps = c.comp.Capability()
		c.capOnce = true
		c.log.Info().Bool("persistent_compute", c.caps.PersistentCompute).
			Int("max_work_items", c.caps.MaxWorkItems).
			Msg("gpu capability probed")
	}
	return c.caps
}

// Resolve returns the program for req, compiling on first use. Uniform
// values play no part in identity; only the key does. A compile failure is
// returned as a compile-failed error and leaves every other entry intact.
func (c *Cache) Resolve(req Request) (*Program, error) {
	if p, ok := c.programs[req.Key]; ok {
		c.stats.Hits++
		return p, nil
	}

	handle, err := c.comp.Compile(req.FragmentSource, req.ComputeSource)
	if err != nil {
		c.stats.Failures++
		c.log.Warn().Str("key", req.Key).Err(err).Msg("shader compile failed")
		return nil, ErrCompileFailed(req.Key, err)
	}

	p := &Program{Key: req.Key, Handle: handle, Path: PathStateless}
	caps := c.capability()
	if req.ComputeSource != "" && caps.PersistentCompute {
		p.Path = PathParallelPersistent
		p.BufferSize = req.BufferSize
	} else {
		p.WorkItemLimit = caps.MaxWorkItems
	}

	c.stats.Misses++
	c.programs[req.Key] = p
	c.log.Debug().Str("key", req.Key).Str("path", string(p.Path)).
		Uint32("handle", handle).Msg("shader compiled")
	return p, nil
}

// Len reports the number of cached programs.
func (c *Cache) Len() int { return len(c.programs) }

// Stats returns the activity counters.
func (c *Cache) Stats() Stats { return c.stats }

// Capability reports the probed device capability, probing on first call.
func (c *Cache) Capability() Capability { return c.capability() }

// Clear releases every cached program through the compiler and resets the
// counters. Used on runtime reload and shutdown.
func (c *Cache) Clear() {
	for _, p := range c.programs {
		c.comp.Release(p.Handle)
	}
	c.programs = make(map[string]*Program)
	c.stats = Stats{}
}
