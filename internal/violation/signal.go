// Package violation turns raw environment signals from the exam UI into
// debounced violation events and escalates on the cumulative count.
package violation

import (
	"strings"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SignalKind names a raw environment signal reported by the exam UI.
type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "visibility_hidden"
	SignalVisibilityVisible SignalKind = "visibility_visible"
	SignalWindowBlur        SignalKind = "window_blur"
	SignalWindowFocus       SignalKind = "window_focus"
	SignalCopy              SignalKind = "copy"
	SignalCut               SignalKind = "cut"
	SignalPaste             SignalKind = "paste"
	SignalContextMenu       SignalKind = "context_menu"
	SignalKeyDown           SignalKind = "key_down"
	SignalWindowCount       SignalKind = "window_count"
	SignalFullscreenExit    SignalKind = "fullscreen_exit"
)

// Signal is one raw observation from the UI.
type Signal struct {
	Kind SignalKind `json:"kind" binding:"required,signal_kind"`

	// Keyboard fields, set for key_down.
	Key   string `json:"key,omitempty" binding:"max=32"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`

	// Windows is the number of open exam window handles, set for window_count.
	Windows int `json:"windows,omitempty" binding:"min=0"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Verdict tells the UI what to do with the action that produced a signal.
type Verdict struct {
	// Block asks the UI to cancel the default action.
	Block bool                `json:"block"`
	Type  model.ViolationType `json:"type,omitempty"`
}

// Rule is the classification of a signal.
type Rule struct {
	Type        model.ViolationType
	Severity    model.Severity
	Description string
	// Block is true for actions the UI must cancel synchronously.
	Block bool
	// Debounce suppresses repeats of the same type inside the window.
	Debounce time.Duration
}

// IsKnown reports whether k is a signal kind the monitor understands.
func IsKnown(k SignalKind) bool {
	switch k {
	case SignalVisibilityHidden, SignalVisibilityVisible, SignalWindowBlur,
		SignalWindowFocus, SignalCopy, SignalCut, SignalPaste, SignalContextMenu,
		SignalKeyDown, SignalWindowCount, SignalFullscreenExit:
		return true
	}
	return false
}

// Classify maps a signal to its violation rule. State-only signals (focus
// regained, tab visible, window count) are not violations by themselves.
// Debounce windows are filled in by the Monitor from its config.
func Classify(sig Signal) (Rule, bool) {
	switch sig.Kind {
	case SignalVisibilityHidden:
		return Rule{
			Type:        model.ViolationTabSwitch,
			Severity:    model.SeverityMedium,
			Description: "switched away from the exam tab",
		}, true
	case SignalWindowBlur:
		return Rule{
			Type:        model.ViolationWindowBlur,
			Severity:    model.SeverityMedium,
			Description: "exam window lost focus",
		}, true
	case SignalCopy, SignalCut, SignalPaste:
		return Rule{
			Type:        model.ViolationCopyPaste,
			Severity:    model.SeverityHigh,
			Description: string(sig.Kind) + " attempted",
			Block:       true,
		}, true
	case SignalContextMenu:
		return Rule{
			Type:        model.ViolationRightClick,
			Severity:    model.SeverityMedium,
			Description: "context menu requested",
			Block:       true,
		}, true
	case SignalKeyDown:
		return classifyKey(sig)
	case SignalFullscreenExit:
		return Rule{
			Type:        model.ViolationFullscreenExit,
			Severity:    model.SeverityMedium,
			Description: "left fullscreen mode",
		}, true
	}
	return Rule{}, false
}

// devtoolsLetters open developer tools or the element inspector together
// with Ctrl+Shift (Cmd+Option on macOS).
var devtoolsLetters = map[string]bool{"I": true, "J": true, "C": true}

// editingLetters are clipboard, select-all, save and print shortcuts.
var editingLetters = map[string]bool{"C": true, "V": true, "X": true, "A": true, "S": true, "P": true}

func classifyKey(sig Signal) (Rule, bool) {
	key := strings.ToUpper(strings.TrimSpace(sig.Key))
	if key == "" {
		return Rule{}, false
	}
	mod := sig.Ctrl || sig.Meta

	combo := Combo(sig)
	critical := Rule{
		Type:        model.ViolationKeyboardShortcut,
		Severity:    model.SeverityCritical,
		Description: "developer tools shortcut " + combo,
		Block:       true,
	}
	high := Rule{
		Type:        model.ViolationKeyboardShortcut,
		Severity:    model.SeverityHigh,
		Description: "reserved shortcut " + combo,
		Block:       true,
	}

	switch {
	case key == "F12":
		return critical, true
	case mod && (sig.Shift || sig.Alt) && devtoolsLetters[key]:
		return critical, true
	case mod && key == "U":
		return critical, true
	case key == "PRINTSCREEN":
		return high, true
	case mod && editingLetters[key]:
		return high, true
	}
	return Rule{}, false
}

// Combo renders the key combination of a keyboard signal, e.g. "Ctrl+Shift+I".
func Combo(sig Signal) string {
	var parts []string
	if sig.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if sig.Meta {
		parts = append(parts, "Meta")
	}
	if sig.Alt {
		parts = append(parts, "Alt")
	}
	if sig.Shift {
		parts = append(parts, "Shift")
	}
	key := strings.TrimSpace(sig.Key)
	if len(key) == 1 {
		key = strings.ToUpper(key)
	}
	parts = append(parts, key)
	return strings.Join(parts, "+")
}
