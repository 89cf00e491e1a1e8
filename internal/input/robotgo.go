// File: internal/input/robotgo.go
package input

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

// keyAliases maps the names the model tends to emit onto the names the OS
// layer understands.
var keyAliases = map[string]string{
	"return":    "enter",
	"super":     "cmd",
	"win":       "cmd",
	"windows":   "cmd",
	"escape":    "esc",
	"page_up":   "pageup",
	"page_down": "pagedown",
}

// RobotgoInjector drives the local desktop.
type RobotgoInjector struct{}

func NewRobotgoInjector() *RobotgoInjector { return &RobotgoInjector{} }

func (*RobotgoInjector) MoveMouse(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (*RobotgoInjector) Click(button Button, double bool) error {
	name, err := osButton(button)
	if err != nil {
		return err
	}
	robotgo.Click(name, double)
	return nil
}

func (*RobotgoInjector) ToggleMouse(button Button, down bool) error {
	name, err := osButton(button)
	if err != nil {
		return err
	}
	if down {
		return robotgo.Toggle(name, "down")
	}
	return robotgo.Toggle(name, "up")
}

func (*RobotgoInjector) ToggleKey(key string, down bool) error {
	name := NormalizeKey(key)
	if down {
		return robotgo.KeyToggle(name, "down")
	}
	return robotgo.KeyToggle(name, "up")
}

func (*RobotgoInjector) TypeText(text string, perKey time.Duration) error {
	if perKey <= 0 {
		robotgo.TypeStr(text)
		return nil
	}
	for _, r := range text {
		robotgo.TypeStr(string(r))
		time.Sleep(perKey)
	}
	return nil
}

func (*RobotgoInjector) CursorPosition() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

// NormalizeKey lowercases, trims and de-aliases a key name.
func NormalizeKey(key string) string {
	name := strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[name]; ok {
		return alias
	}
	return name
}

func osButton(button Button) (string, error) {
	switch button {
	case ButtonLeft:
		return "left", nil
	case ButtonRight:
		return "right", nil
	case ButtonMiddle:
		// The OS layer names the middle button "center".
		return "center", nil
	default:
		return "", fmt.Errorf("unknown mouse button %q", button)
	}
}
