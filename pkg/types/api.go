package types

// Turn is one message of a conversation as it travels over the wire.
type Turn struct {
	// Either "user" or "assistant".
	// example: user
	Role string `json:"role" example:"user"`
	// Message text.
	// example: What is the first-line treatment for community-acquired pneumonia?
	Text string `json:"text" example:"What is the first-line treatment for community-acquired pneumonia?"`
}

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// Required question text (non-empty after trimming).
	// example: fever in a 2 year old
	Query string `json:"query" example:"fever in a 2 year old"`
	// Prior turns in conversation order, excluding the question being asked.
	History []Turn `json:"history,omitempty"`
	// Whether to retrieve guideline passages. Defaults to true when omitted.
	// example: true
	UseRetrieval *bool `json:"use_retrieval,omitempty" example:"true"`
	// Optional conversation to load history from and append the exchange to.
	// example: 1f0c2a9e-7d43-4a4e-9a53-64a3f43c9f10
	ConversationID string `json:"conversation_id,omitempty" example:"1f0c2a9e-7d43-4a4e-9a53-64a3f43c9f10"`
}

// RetrievalEnabled resolves the default-true use_retrieval flag.
func (r GenerateRequest) RetrievalEnabled() bool {
	if r.UseRetrieval == nil {
		return true
	}
	return *r.UseRetrieval
}

// ErrorDetail is the out-of-band failure signal of a generation stream.
type ErrorDetail struct {
	// example: generation_failed
	Kind string `json:"kind" example:"generation_failed"`
	// example: llama model not initialized
	Message string `json:"message" example:"llama model not initialized"`
}

// StreamLine is one NDJSON line of a /generate response. Exactly one field is set.
type StreamLine struct {
	Results    []string     `json:"results,omitempty"`
	Response   *string      `json:"response,omitempty"`
	Done       bool         `json:"done,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	Cancelled  bool         `json:"cancelled,omitempty"`
	HadPartial bool         `json:"had_partial,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// CancelResponse is returned by POST /cancel.
type CancelResponse struct {
	// Whether a live job was cancelled.
	Cancelled bool `json:"cancelled"`
	// Identifier of the cancelled job (0 when nothing was live).
	JobID uint64 `json:"job_id,omitempty"`
	// Whether partial text had already been streamed for the cancelled job.
	HadPartial bool `json:"had_partial,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Backend readiness: idle, loading, ready or failed.
	// example: ready
	Backend string `json:"backend" example:"ready"`
	// Initialization failure, if any.
	BackendError string `json:"backend_error,omitempty"`
	// Identifier of the live job (0 when idle).
	LiveJobID uint64 `json:"live_job_id,omitempty"`
	// Lifecycle state of the live job.
	// example: generating
	LiveJobState string `json:"live_job_state,omitempty" example:"generating"`
	// Total jobs submitted since start.
	JobsSubmitted uint64 `json:"jobs_submitted"`
	// Jobs that completed successfully.
	JobsCompleted uint64 `json:"jobs_completed"`
	// Jobs cancelled explicitly or by preemption.
	JobsCancelled uint64 `json:"jobs_cancelled"`
	// Jobs that failed.
	JobsFailed uint64 `json:"jobs_failed"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Exchange is one question/answer pair of a stored conversation.
type Exchange struct {
	Query    string   `json:"query"`
	Answer   string   `json:"answer"`
	Passages []string `json:"passages,omitempty"`
	// One of complete, interrupted, failed.
	// example: complete
	Status string `json:"status" example:"complete"`
}

// Conversation is a stored chat.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Exchanges []Exchange `json:"exchanges"`
	UpdatedAt int64      `json:"updated_at_unix"`
}

// ConversationSummary is an entry of GET /conversations.
type ConversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updated_at_unix"`
}
