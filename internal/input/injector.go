// File: internal/input/injector.go
package input

import "time"

// Button identifies a mouse button in action terms. Adapters translate to
// whatever the OS layer calls them.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Injector is the OS input boundary. It exposes only primitives; pacing and
// choreography (drags, chunked typing, key combos) belong to the caller so
// they stay testable without a real desktop.
type Injector interface {
	// MoveMouse warps the pointer to an absolute screen coordinate.
	MoveMouse(x, y int) error
	// Click presses and releases a button at the current pointer position.
	Click(button Button, double bool) error
	// ToggleMouse holds or releases a button without moving the pointer.
	ToggleMouse(button Button, down bool) error
	// ToggleKey holds or releases a single named key.
	ToggleKey(key string, down bool) error
	// TypeText enters literal text at the current focus, pausing perKey
	// between keystrokes when perKey is positive.
	TypeText(text string, perKey time.Duration) error
	// CursorPosition reports the pointer's absolute screen coordinate.
	CursorPosition() (int, int, error)
}
