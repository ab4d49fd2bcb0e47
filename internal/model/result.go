package model

// TierResult is returned by every tier and by the orchestrator itself
// (spec.md §3). Success guarantee: Success=true implies Content is the
// fetched body and DetectedChallenge is empty.
type TierResult struct {
	Success           bool                   `json:"success"`
	Content           string                 `json:"content,omitempty"`
	StatusCode        int                    `json:"status_code,omitempty"`
	TierUsed          TierLevel              `json:"tier_used"`
	ExecutionTimeMS   int64                  `json:"execution_time_ms"`
	ResponseSizeBytes int                    `json:"response_size_bytes"`
	Error             string                 `json:"error,omitempty"`
	ErrorType         ErrorType              `json:"error_type"`
	DetectedChallenge ChallengeType          `json:"detected_challenge,omitempty"`
	ShouldEscalate    bool                   `json:"should_escalate"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// WithMetadata sets a metadata key, allocating the map on first use.
func (r *TierResult) WithMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// Status derives the client-facing status per spec.md §6.
func (r TierResult) Status() ResultStatus {
	switch {
	case r.Success:
		return StatusSuccess
	case r.ErrorType == ErrorBlocked || r.ErrorType == ErrorRateLimit:
		return StatusBlocked
	case r.ErrorType == ErrorTimeout:
		return StatusTimeout
	default:
		return StatusFailed
	}
}
