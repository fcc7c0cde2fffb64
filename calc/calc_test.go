package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+3", 5},
		{"10-4", 6},
		{"6*7", 42},
		{"15/4", 3.75},
		{"2+3*4", 14},
		{"20-6/3", 18},
		{"1+2-3+4", 4},
		{"2*3*4", 24},
		{"120*3+50", 410},
		{"0.5*8", 4},
		{" 7 + 1 ", 8},
		{"42", 42},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	syntax := []string{
		"",
		"+",
		"2+",
		"*3",
		"2++3",
		"1..2",
		"2^3",
		"(1+2)",
		"amount",
		"1+eval(2)",
	}
	for _, expr := range syntax {
		t.Run("syntax "+expr, func(t *testing.T) {
			_, err := Evaluate(expr)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}

	_, err := Evaluate("5/0")
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Evaluate("1+4/0")
	assert.ErrorIs(t, err, ErrDivisionByZero)
}
