package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"local 07 form", "0712345678", "254712345678"},
		{"local 01 form", "0112345678", "254112345678"},
		{"already international", "254712345678", "254712345678"},
		{"international with plus", "+254712345678", "254712345678"},
		{"plus 01 range", "+254112345678", "254112345678"},
		{"bare nine digits", "712345678", "254712345678"},
		{"separators stripped", "0712-345 678", "254712345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone_Rejects(t *testing.T) {
	invalid := []string{
		"",
		"12345",
		"0812345678",    // unknown trunk range
		"255712345678",  // wrong country code
		"25471234567",   // 11 digits
		"2547123456789", // 13 digits
		"071234567",     // too short for local form
		"abcdefghij",
	}
	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			_, err := NormalizePhone(input)
			assert.ErrorIs(t, err, ErrInvalidPhone)
		})
	}
}
