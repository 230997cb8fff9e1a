package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dana Voss", "dana voss"},
		{"  Dana   VOSS  ", "dana voss"},
		{"", ""},
		{"\tFlight\nOps", "flight ops"},
		// NFC: separate combining acute over 'e' folds to the composed form.
		{"Rémy", "rémy"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestLooksLikeNoNameGroup(t *testing.T) {
	assert.True(t, LooksLikeNoNameGroup(""))
	assert.True(t, LooksLikeNoNameGroup("   "))
	assert.True(t, LooksLikeNoNameGroup("Dana Voss, Priya Nair, Tom Hale"))
	assert.True(t, LooksLikeNoNameGroup("Dana Voss, Priya Nair -"))
	assert.False(t, LooksLikeNoNameGroup("Flight Ops"))
	assert.False(t, LooksLikeNoNameGroup("CRM"))
}

func TestLocalAndGroupIDs(t *testing.T) {
	id := NewLocalID()
	assert.True(t, IsLocalID(id))
	assert.True(t, strings.HasPrefix(id, LocalIDPrefix))
	assert.False(t, IsLocalID("sg-123"))

	assert.True(t, IsGroupChannelID("mpc-42"))
	assert.False(t, IsGroupChannelID("sg-42"))

	// Two placeholder ids never collide.
	assert.NotEqual(t, id, NewLocalID())
}
