package plugin

// Position identifies a lifecycle point at which callbacks run.
type Position int

// Callback positions.
const (
	// Whole lifetime.

	// PositionLaunch - the program has started.
	PositionLaunch Position = iota
	// PositionExit - the program is about to end.
	PositionExit

	// Window activity.

	// PositionInputBoxShow - the input box was shown.
	PositionInputBoxShow
	// PositionInputBoxHide - the input box was hidden (enter, escape, or focus loss).
	PositionInputBoxHide
	// PositionSettingsShow - the settings view was opened.
	PositionSettingsShow
	// PositionSettingsHide - the settings view was closed (save or cancel).
	PositionSettingsHide

	// Input events.

	// PositionPasteInBox - text was pasted into the input box.
	PositionPasteInBox
	// PositionTextChanged - the input box content changed.
	PositionTextChanged
	// PositionEnterPressed - enter was pressed in the input box.
	PositionEnterPressed
	// PositionEscapePressed - escape was pressed in the input box.
	PositionEscapePressed

	// System events.

	// PositionHotkeyTriggered - the global hotkey fired.
	PositionHotkeyTriggered
	// PositionFocusGained - the input box gained focus.
	PositionFocusGained
	// PositionFocusLost - the input box lost focus.
	PositionFocusLost

	numPositions
)

// String returns the wire name of the position, as used by plugin units.
func (p Position) String() string {
	switch p {
	case PositionLaunch:
		return "on_launch"
	case PositionExit:
		return "on_exit"
	case PositionInputBoxShow:
		return "on_input_box_show"
	case PositionInputBoxHide:
		return "on_input_box_hide"
	case PositionSettingsShow:
		return "on_settings_show"
	case PositionSettingsHide:
		return "on_settings_hide"
	case PositionPasteInBox:
		return "on_paste_in_box"
	case PositionTextChanged:
		return "on_text_changed"
	case PositionEnterPressed:
		return "on_enter_pressed"
	case PositionEscapePressed:
		return "on_escape_pressed"
	case PositionHotkeyTriggered:
		return "on_hotkey_triggered"
	case PositionFocusGained:
		return "on_focus_gained"
	case PositionFocusLost:
		return "on_focus_lost"
	default:
		return "unknown"
	}
}

// Valid returns true for positions within the closed enumeration.
func (p Position) Valid() bool {
	return p >= PositionLaunch && p < numPositions
}

// ParsePosition maps a wire name back to its Position.
// Returns false for names outside the enumeration.
func ParsePosition(name string) (Position, bool) {
	for _, p := range Positions() {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}

// Positions returns all positions in declaration order.
func Positions() []Position {
	out := make([]Position, 0, int(numPositions))
	for p := PositionLaunch; p < numPositions; p++ {
		out = append(out, p)
	}
	return out
}
