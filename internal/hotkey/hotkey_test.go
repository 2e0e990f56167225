package hotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := Parse("Ctrl+Shift+Space")
	require.NoError(t, err)
	assert.Equal(t, Combo{Mods: []string{"ctrl", "shift"}, Key: "space"}, c)
	assert.Equal(t, "ctrl+shift+space", c.String())

	c, err = Parse(" f9 ")
	require.NoError(t, err)
	assert.Empty(t, c.Mods)
	assert.Equal(t, "f9", c.Key)
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "ctrl+", "ctrl+hyper+a", "ctrl+shift+pagedown", "space+ctrl"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrBadCombo, in)
	}
}
