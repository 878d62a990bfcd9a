package domain

// VerificationResult is the verifier's structured call on one step attempt.
type VerificationResult struct {
	Decision    VerifyDecision `json:"decision"`
	Reason      string         `json:"reason,omitempty"`
	Verifier    string         `json:"verifier,omitempty"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	Expected    map[string]any `json:"expected,omitempty"`
	Actual      map[string]any `json:"actual,omitempty"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// HandlerResult is the structured payload every action handler returns. The
// executor boundary never propagates a panic across it.
type HandlerResult struct {
	Status  StepStatus     `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Method  string         `json:"method,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}
