package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
// Default remains 1 MiB for backward compatibility.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// renderTimeout controls the maximum duration a debug render request may run
// before timing out. Zero means no additional timeout beyond server/connection
// timeouts.
var renderTimeout = int64(0) // seconds

// SetRenderTimeoutSeconds sets the render timeout in seconds (0 disables).
func SetRenderTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	renderTimeout = sec
}

// renderInflight bounds concurrent debug renders. Renders serialize on the
// runtime round trip anyway, so anything past a short queue is rejected with
// 429 instead of piling up.
var renderInflight = make(chan struct{}, 2)

// SetRenderQueueDepth resizes the debug render admission queue.
func SetRenderQueueDepth(n int) {
	if n <= 0 {
		n = 2
	}
	renderInflight = make(chan struct{}, n)
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
