package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// generateTimeout bounds one /generate stream. The job is cancelled when it
// elapses. Zero means no limit beyond the client connection.
var generateTimeout = int64(0) // seconds

// SetGenerateTimeoutSeconds sets the generate timeout in seconds (0 disables).
func SetGenerateTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	generateTimeout = sec
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

func corsDefaults() (origins, methods, headers []string) {
	origins, methods, headers = corsAllowedOrigins, corsAllowedMethods, corsAllowedHeaders
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
	}
	return origins, methods, headers
}
