package shader

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// SoftCompiler is the backend used when no GPU renderer is attached, such as
// headless daemon runs and debug renders over HTTP. It validates sources just
// enough to reject obviously broken programs and hands out synthetic handles;
// the command buffer still carries the original source so a real renderer can
// compile it later.
type SoftCompiler struct {
	caps Capability
	next uint32
}

// NewSoftCompiler returns a software backend advertising caps.
func NewSoftCompiler(caps Capability) *SoftCompiler {
	if caps.MaxWorkItems <= 0 {
		caps.MaxWorkItems = 1 << 16
	}
	return &SoftCompiler{caps: caps}
}

func (c *SoftCompiler) Compile(fragment, compute string) (uint32, error) {
	if strings.TrimSpace(fragment) == "" {
		return 0, fmt.Errorf("empty fragment source")
	}
	if compute != "" && !strings.Contains(compute, "main") {
		return 0, fmt.Errorf("compute source has no entry point")
	}
	return atomic.AddUint32(&c.next, 1), nil
}

func (c *SoftCompiler) Release(uint32) {}

func (c *SoftCompiler) Capability() Capability { return c.caps }
