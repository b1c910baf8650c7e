package model

import "time"

// ViolationType tags a detected integrity violation.
type ViolationType string

const (
	ViolationTabSwitch        ViolationType = "tab_switch"
	ViolationWindowBlur       ViolationType = "window_blur"
	ViolationCopyPaste        ViolationType = "copy_paste"
	ViolationRightClick       ViolationType = "right_click"
	ViolationKeyboardShortcut ViolationType = "keyboard_shortcut"
	ViolationMultipleTabs     ViolationType = "multiple_tabs"
	ViolationFullscreenExit   ViolationType = "fullscreen_exit"
)

// Severity grades a violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ViolationEvent is one entry of the append-only violation log.
type ViolationEvent struct {
	Type        ViolationType  `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	// Count is the counter value after this event was recorded.
	Count int `json:"count"`
}
