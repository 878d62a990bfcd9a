package domain

// GateDecision is the outcome of a pre-flight gate. Deterministic for a given
// (action, params, work dir, allow-roots) tuple.
type GateDecision struct {
	Allow          bool     `json:"allow"`
	Reason         string   `json:"reason,omitempty"`
	Rule           string   `json:"rule,omitempty"`
	OriginalPath   string   `json:"original_path,omitempty"`
	NormalizedPath string   `json:"normalized_path,omitempty"`
	AllowedRoots   []string `json:"allowed_roots,omitempty"`
}

// RiskAssessment classifies a step before dispatch. It is a pure function of
// the step, the work dir, and the last focus target; it is never persisted
// beyond the step's evidence.
type RiskAssessment struct {
	Level  RiskLevel `json:"level"`
	Reason string    `json:"reason,omitempty"`
	Tags   []string  `json:"tags,omitempty"`
}

// FocusTarget is the expected foreground window for input-affecting steps,
// established by activation steps or explicit per-step hints.
type FocusTarget struct {
	Handle        uintptr  `json:"handle,omitempty"`
	PID           int      `json:"pid,omitempty"`
	Title         string   `json:"title,omitempty"`
	Class         string   `json:"class,omitempty"`
	TitleKeywords []string `json:"title_keywords,omitempty"`
}

// WindowSnapshot is an observed top-level window. A zero handle uniformly
// means "no handle".
type WindowSnapshot struct {
	Handle uintptr `json:"handle"`
	PID    int     `json:"pid"`
	Title  string  `json:"title"`
	Class  string  `json:"class"`
}
