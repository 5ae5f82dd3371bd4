package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"national", "05551234567", "05551234567"},
		{"national with separators", "0 (555) 123-45-67", "05551234567"},
		{"international", "+905551234567", "05551234567"},
		{"country code without plus", "905551234567", "05551234567"},
		{"subscriber only", "5551234567", "05551234567"},
		{"foreign e164", "+4915112345678", "+4915112345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "0555", "+0555123456", "05551234567x", "555+1234567", "+12"} {
		_, err := Normalize(in)
		assert.ErrorIs(t, err, ErrInvalid, in)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "0555*****67", Mask("05551234567"))
	assert.Equal(t, "****", Mask("1234"))
}
