package orgnr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"923609016", "923609016"},
		{"923 609 016", "923609016"},
		{"NO 923 609 016 MVA", "923609016"},
		{"", ""},
		{"n/a", ""},
		{"٩٢٣", ""}, // non-ASCII digits are dropped
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestValid(t *testing.T) {
	// Equinor ASA and DNB Bank ASA.
	assert.True(t, Valid("923609016"))
	assert.True(t, Valid("984851006"))

	assert.False(t, Valid("923609017"), "wrong control digit")
	assert.False(t, Valid("92360901"), "too short")
	assert.False(t, Valid("9236090160"), "too long")
	assert.False(t, Valid("92360901a"))
	assert.False(t, Valid(""))
}
