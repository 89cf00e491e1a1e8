// File: internal/input/injector_test.go
package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Ctrl", want: "ctrl"},
		{in: "  SHIFT ", want: "shift"},
		{in: "Return", want: "enter"},
		{in: "escape", want: "esc"},
		{in: "Super", want: "cmd"},
		{in: "page_down", want: "pagedown"},
		{in: "a", want: "a"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeKey(tc.in), "input %q", tc.in)
	}
}

func TestOSButtonMapping(t *testing.T) {
	t.Parallel()

	name, err := osButton(ButtonLeft)
	require.NoError(t, err)
	assert.Equal(t, "left", name)

	name, err = osButton(ButtonMiddle)
	require.NoError(t, err)
	assert.Equal(t, "center", name)

	_, err = osButton(Button("thumb"))
	assert.Error(t, err)
}
