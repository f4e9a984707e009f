package bridge

import (
	"encoding/json"
	"time"
)

// Instance is one live plugin instance inside the runtime. The bridge owns
// the bookkeeping; the plugin object itself lives out of process.
type Instance struct {
	ID         string
	ManifestID string
	W, H       int

	// State is the opaque per-instance blob, round-tripped verbatim for
	// project persistence. The bridge never interprets the values.
	State map[string]json.RawMessage

	FramesRendered uint64
	LastRendered   time.Time
}

func (i *Instance) cloneState() map[string]json.RawMessage {
	if i.State == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(i.State))
	for k, v := range i.State {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
