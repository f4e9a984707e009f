package types

// ManifestsResponse wraps the list returned by GET /manifests.
type ManifestsResponse struct {
	// Discovered plugin manifests.
	Manifests []Manifest `json:"manifests"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: manifest not found: com.example.nope
	Error string `json:"error" example:"manifest not found: com.example.nope"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// CreateInstanceRequest is the POST /instances payload.
type CreateInstanceRequest struct {
	// Manifest id to instantiate.
	// example: com.example.spectrum_wheel
	ManifestID string `json:"manifest_id" example:"com.example.spectrum_wheel"`
}

// CreateInstanceResponse returns the id of the created instance.
type CreateInstanceResponse struct {
	// Unique instance identifier.
	InstanceID string `json:"instance_id"`
	// Manifest the instance was created from.
	ManifestID string `json:"manifest_id"`
}

// RenderRequest is the POST /instances/{id}/render debug payload.
type RenderRequest struct {
	// Target width in logical pixels.
	// example: 300
	Width int `json:"width" example:"300"`
	// Target height in logical pixels.
	// example: 200
	Height int `json:"height" example:"200"`
}

// RenderResponse carries the parsed command buffer of one debug render.
type RenderResponse struct {
	// Instance that produced the frame.
	InstanceID string `json:"instance_id"`
	// Number of instructions in the frame.
	CommandCount int `json:"command_count"`
	// Wire-form instructions, one JSON object per command.
	Commands []map[string]any `json:"commands"`
	// Instructions dropped by validation this frame.
	Dropped int `json:"dropped,omitempty"`
}

// InstanceStatus summarizes one live plugin instance for /status.
type InstanceStatus struct {
	// Instance identifier.
	InstanceID string `json:"instance_id"`
	// Manifest the instance was created from.
	ManifestID string `json:"manifest_id"`
	// Last time the instance rendered (unix seconds).
	// example: 1700000000
	LastRendered int64 `json:"last_rendered_unix,omitempty"`
	// Frames rendered since creation.
	FramesRendered uint64 `json:"frames_rendered"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Live plugin instances.
	Instances []InstanceStatus `json:"instances"`
	// Supervisor state of the external runtime
	// (starting, running, crashed, restarting, stopped).
	// example: running
	RuntimeState string `json:"runtime_state" example:"running"`
	// Process id of the runtime, when running.
	PID int `json:"pid,omitempty"`
	// Consecutive failed round trips since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
	// Total restarts performed this session.
	RestartsTotal uint64 `json:"restarts_total"`
	// Terminal error once the restart budget is exhausted.
	TerminalError string `json:"terminal_error,omitempty"`
	// Active snapshot transport: "shm" or "pipe".
	// example: shm
	Transport string `json:"transport"`
	// Shader programs currently cached.
	ShaderPrograms int `json:"shader_programs"`
	// Whether the GPU capability probe found persistent compute support.
	PersistentCompute bool `json:"persistent_compute"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
