package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"+33612345678", "+*******5678"},
		{"15550000001", "*******0001"},
		{"+123", "+***"},
		{"1234", "****"},
		{"12345", "*2345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, MaskPhoneNumber(tt.input), tt.input)
	}
}

func TestMaskMessageID(t *testing.T) {
	assert.Equal(t, "", MaskMessageID(""))
	assert.Equal(t, "short", MaskMessageID("short"))
	assert.Equal(t, "12345678", MaskMessageID("12345678"))
	assert.Equal(t, "wami...6789", MaskMessageID("wamid.123456789"))
}
