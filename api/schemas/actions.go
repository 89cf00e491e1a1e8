package schemas

import (
	"fmt"
)

// -- Action Schemas --

// ActionType identifies one primitive UI action the model may request.
// The set is closed: anything outside it is rejected before dispatch.
type ActionType string

const (
	ActionScreenshot     ActionType = "screenshot"
	ActionMouseMove      ActionType = "mouse_move"
	ActionLeftClickDrag  ActionType = "left_click_drag"
	ActionLeftClick      ActionType = "left_click"
	ActionRightClick     ActionType = "right_click"
	ActionMiddleClick    ActionType = "middle_click"
	ActionDoubleClick    ActionType = "double_click"
	ActionKey            ActionType = "key"
	ActionTypeText       ActionType = "type"
	ActionCursorPosition ActionType = "cursor_position"
)

// knownActions is the authoritative membership set for ParseActionType.
var knownActions = map[ActionType]struct{}{
	ActionScreenshot:     {},
	ActionMouseMove:      {},
	ActionLeftClickDrag:  {},
	ActionLeftClick:      {},
	ActionRightClick:     {},
	ActionMiddleClick:    {},
	ActionDoubleClick:    {},
	ActionKey:            {},
	ActionTypeText:       {},
	ActionCursorPosition: {},
}

// ParseActionType maps a raw action name onto the closed action set.
// The second return is false for any name outside the set.
func ParseActionType(name string) (ActionType, bool) {
	t := ActionType(name)
	_, ok := knownActions[t]
	return t, ok
}

// IsClick reports whether the action is one of the click variants performed
// at the current pointer position.
func (t ActionType) IsClick() bool {
	switch t {
	case ActionLeftClick, ActionRightClick, ActionMiddleClick, ActionDoubleClick:
		return true
	}
	return false
}

// ActionParams carries the parameter object attached to a tool-use request.
// Which fields are required depends on the action variant.
type ActionParams struct {
	// Action is the raw action name from the model; ParseActionType maps it
	// onto the closed set.
	Action string `json:"action"`
	// Coordinate is a logical-space [x, y] pair for pointer actions.
	Coordinate []int `json:"coordinate,omitempty"`
	// Text is the payload for "key" (a combo such as "ctrl+a") and "type".
	Text string `json:"text,omitempty"`
}

// Point returns the coordinate pair, or an error if it is not exactly two
// elements. Callers must not touch the OS before this check passes.
func (p ActionParams) Point() (int, int, error) {
	if len(p.Coordinate) != 2 {
		return 0, 0, fmt.Errorf("coordinate must be a pair, got %d element(s)", len(p.Coordinate))
	}
	return p.Coordinate[0], p.Coordinate[1], nil
}

// ToolUse is one decoded tool-use request: the block identifier assigned by
// the model, the requested action name, and its raw parameter object.
type ToolUse struct {
	ID     string
	Name   string
	Params ActionParams
}
