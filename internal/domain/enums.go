// Package domain defines the core domain models for the execution engine.
package domain

// ActionKind identifies one of the closed set of step actions a plan may use.
type ActionKind string

const (
	// Window / app control
	ActionOpenApp        ActionKind = "open_app"
	ActionActivateWindow ActionKind = "activate_window"
	ActionCloseWindow    ActionKind = "close_window"
	ActionMinimizeWindow ActionKind = "minimize_window"
	ActionMaximizeWindow ActionKind = "maximize_window"

	// Pointer / keyboard input
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionRightClick  ActionKind = "right_click"
	ActionClickText   ActionKind = "click_text"
	ActionMouseMove   ActionKind = "mouse_move"
	ActionDrag        ActionKind = "drag"
	ActionScroll      ActionKind = "scroll"
	ActionTypeText    ActionKind = "type_text"
	ActionKeyPress    ActionKind = "key_press"
	ActionHotkey      ActionKind = "hotkey"

	// Waiting / suspension
	ActionWait      ActionKind = "wait"
	ActionWaitUntil ActionKind = "wait_until"
	ActionTakeOver  ActionKind = "take_over"

	// Observation
	ActionScreenshot ActionKind = "screenshot"
	ActionReadText   ActionKind = "read_text"

	// Filesystem
	ActionListFiles    ActionKind = "list_files"
	ActionReadFile     ActionKind = "read_file"
	ActionWriteFile    ActionKind = "write_file"
	ActionDeleteFile   ActionKind = "delete_file"
	ActionMoveFile     ActionKind = "move_file"
	ActionCopyFile     ActionKind = "copy_file"
	ActionRenameFile   ActionKind = "rename_file"
	ActionCreateFolder ActionKind = "create_folder"
	ActionOpenFile     ActionKind = "open_file"

	// Browser-targeted
	ActionOpenURL            ActionKind = "open_url"
	ActionBrowserClick       ActionKind = "browser_click"
	ActionBrowserInput       ActionKind = "browser_input"
	ActionBrowserExtractText ActionKind = "browser_extract_text"

	// Misc
	ActionAdjustVolume ActionKind = "adjust_volume"
)

// AllActionKinds lists every valid action kind, used by plan validation.
var AllActionKinds = []ActionKind{
	ActionOpenApp, ActionActivateWindow, ActionCloseWindow, ActionMinimizeWindow,
	ActionMaximizeWindow, ActionClick, ActionDoubleClick, ActionRightClick,
	ActionClickText, ActionMouseMove, ActionDrag, ActionScroll, ActionTypeText,
	ActionKeyPress, ActionHotkey, ActionWait, ActionWaitUntil, ActionTakeOver,
	ActionScreenshot, ActionReadText, ActionListFiles, ActionReadFile,
	ActionWriteFile, ActionDeleteFile, ActionMoveFile, ActionCopyFile,
	ActionRenameFile, ActionCreateFolder, ActionOpenFile, ActionOpenURL,
	ActionBrowserClick, ActionBrowserInput, ActionBrowserExtractText,
	ActionAdjustVolume,
}

// IsFileMutation reports whether the action mutates the filesystem.
func (k ActionKind) IsFileMutation() bool {
	switch k {
	case ActionWriteFile, ActionDeleteFile, ActionMoveFile, ActionCopyFile,
		ActionRenameFile, ActionCreateFolder:
		return true
	}
	return false
}

// IsFileRead reports whether the action reads the filesystem without mutating it.
func (k ActionKind) IsFileRead() bool {
	switch k {
	case ActionListFiles, ActionReadFile, ActionOpenFile:
		return true
	}
	return false
}

// AffectsInput reports whether the action drives pointer or keyboard state and
// therefore depends on the foreground window.
func (k ActionKind) AffectsInput() bool {
	switch k {
	case ActionClick, ActionDoubleClick, ActionRightClick, ActionClickText,
		ActionMouseMove, ActionDrag, ActionScroll, ActionTypeText,
		ActionKeyPress, ActionHotkey:
		return true
	}
	return false
}

// IsBrowserAction reports whether the action targets browser content.
func (k ActionKind) IsBrowserAction() bool {
	switch k {
	case ActionOpenURL, ActionBrowserClick, ActionBrowserInput, ActionBrowserExtractText:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle status of a task record.
type TaskStatus string

const (
	TaskStatusRunning      TaskStatus = "running"
	TaskStatusAwaitingUser TaskStatus = "awaiting_user"
	TaskStatusCompleted    TaskStatus = "completed"
	TaskStatusFailed       TaskStatus = "failed"
)

// OverallStatus summarizes a whole run.
type OverallStatus string

const (
	OverallSuccess      OverallStatus = "success"
	OverallReplanned    OverallStatus = "replanned"
	OverallError        OverallStatus = "error"
	OverallUnsafe       OverallStatus = "unsafe"
	OverallAwaitingUser OverallStatus = "awaiting_user"
	OverallDryRun       OverallStatus = "dry_run"
)

// StepStatus is the terminal status of a single executed step.
type StepStatus string

const (
	StepStatusSuccess      StepStatus = "success"
	StepStatusError        StepStatus = "error"
	StepStatusUnsafe       StepStatus = "unsafe"
	StepStatusSkipped      StepStatus = "skipped"
	StepStatusNoop         StepStatus = "noop"
	StepStatusAwaitingUser StepStatus = "awaiting_user"
)

// RiskLevel classifies a step's blast radius before dispatch.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
	RiskBlock  RiskLevel = "block"
)

// VerifyDecision is the verifier's call on one attempt.
type VerifyDecision string

const (
	VerifySuccess VerifyDecision = "success"
	VerifyRetry   VerifyDecision = "retry"
	VerifyFailed  VerifyDecision = "failed"
)

// VerifyMode controls whether outcome verification runs for a step.
type VerifyMode string

const (
	VerifyModeAuto   VerifyMode = "auto"
	VerifyModeNever  VerifyMode = "never"
	VerifyModeAlways VerifyMode = "always"
)

// EventType represents the type of an evidence event.
type EventType string

const (
	EventTypeRunStarted    EventType = "run_started"
	EventTypePlanValidated EventType = "plan_validated"
	EventTypePlanRewritten EventType = "plan_rewritten"
	EventTypeGateDecision  EventType = "gate_decision"
	EventTypeStepStarted   EventType = "step_started"
	EventTypeStepAttempt   EventType = "step_attempt"
	EventTypeStepVerified  EventType = "step_verified"
	EventTypeStepResult    EventType = "step_result"
	EventTypeLocatorResult EventType = "locator_result"
	EventTypeReplanStarted EventType = "replan_started"
	EventTypeReplanDone    EventType = "replan_done"
	EventTypeTakeOver      EventType = "take_over"
	EventTypeRunDone       EventType = "run_done"
	EventTypeArtifact      EventType = "artifact"
)

// ReasonCategory is the operator-facing triage bucket for a reason code.
type ReasonCategory string

const (
	CategoryFocusGate      ReasonCategory = "focus_gate"
	CategoryConsentGate    ReasonCategory = "consent_gate"
	CategoryFileGuardrail  ReasonCategory = "file_guardrail"
	CategoryVerification   ReasonCategory = "verification"
	CategoryHandler        ReasonCategory = "handler"
	CategoryTimeout        ReasonCategory = "timeout"
	CategoryUnsafePolicy   ReasonCategory = "unsafe_policy"
	CategoryPlanValidation ReasonCategory = "plan_validation_error"
)
