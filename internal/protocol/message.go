package protocol

import (
	"encoding/json"

	"vizbridged/pkg/types"
)

// Request/response types for the line-delimited control channel. Every line
// is one self-contained JSON object tagged by "type". The runtime may be a
// newer or older protocol revision than the host, so both sides ignore
// message types and fields they do not know.
const (
	MsgScan        = "scan"
	MsgList        = "list"
	MsgCreate      = "create"
	MsgRender      = "render"
	MsgSetProperty = "set_property"
	MsgResize      = "resize"
	MsgDestroy     = "destroy"
	MsgSave        = "save"
	MsgLoad        = "load"
	MsgReload      = "reload"
	MsgShutdown    = "shutdown"
)

// Response type discriminators produced by the runtime.
const (
	RespScanResult     = "scan_result"
	RespManifestList   = "manifest_list"
	RespCreated        = "created"
	RespRenderCommands = "render_commands"
	RespSaveData       = "save_data"
	RespOK             = "ok"
	RespError          = "error"
)

// Request is a host-to-runtime control message. Only the fields relevant to
// the message type are populated; the rest are omitted from the wire form.
type Request struct {
	Type       string `json:"type"`
	ManifestID string `json:"manifest_id,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	// Audio carries the snapshot inline on the fallback channel only; when
	// shared memory is live the runtime reads the snapshot there instead.
	Audio *types.AudioSnapshot `json:"audio,omitempty"`
	// Key/Value for set_property.
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`
	// Data for load: the opaque per-instance state blobs.
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is a runtime-to-host message. Commands and Data stay raw so the
// command parser and the state pass-through can apply their own rules.
type Response struct {
	Type       string           `json:"type"`
	Message    string           `json:"message,omitempty"`
	InstanceID string           `json:"instance_id,omitempty"`
	Manifests  []types.Manifest `json:"manifests,omitempty"`
	Commands   json.RawMessage  `json:"commands,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
	HasError   bool             `json:"has_error,omitempty"`
	Count      int              `json:"count,omitempty"`
}

// IsError reports whether the runtime answered with an error message.
func (r *Response) IsError() bool { return r.Type == RespError }
