// Package calc evaluates the constrained arithmetic expressions the payment
// form's calculator widget produces: decimal numbers combined with the four
// basic operators. No parentheses, variables or function calls.
package calc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned for anything outside the digits-and-operators grammar.
	ErrSyntax = errors.New("invalid expression")
	// ErrDivisionByZero is returned when an expression divides by zero.
	ErrDivisionByZero = errors.New("division by zero")
)

type token struct {
	op    byte    // one of + - * /, zero for numbers
	value float64 // set when op == 0
}

// Evaluate computes the value of expr with the usual * and / precedence.
func Evaluate(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	return evaluate(tokens)
}

func tokenize(expr string) ([]token, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrSyntax
	}

	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{op: c})
			i++
		case (c >= '0' && c <= '9') || c == '.':
			j := i
			dots := 0
			for j < len(expr) && ((expr[j] >= '0' && expr[j] <= '9') || expr[j] == '.') {
				if expr[j] == '.' {
					dots++
				}
				j++
			}
			if dots > 1 {
				return nil, ErrSyntax
			}
			v, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, ErrSyntax
			}
			tokens = append(tokens, token{value: v})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrSyntax, c)
		}
	}

	// Numbers and operators must strictly alternate, starting and ending
	// with a number.
	if len(tokens)%2 == 0 {
		return nil, ErrSyntax
	}
	for idx, t := range tokens {
		if idx%2 == 0 && t.op != 0 {
			return nil, ErrSyntax
		}
		if idx%2 == 1 && t.op == 0 {
			return nil, ErrSyntax
		}
	}
	return tokens, nil
}

func evaluate(tokens []token) (float64, error) {
	// First pass collapses * and /.
	reduced := []token{tokens[0]}
	for i := 1; i < len(tokens); i += 2 {
		op, operand := tokens[i], tokens[i+1]
		if op.op == '*' || op.op == '/' {
			left := reduced[len(reduced)-1].value
			if op.op == '/' {
				if operand.value == 0 {
					return 0, ErrDivisionByZero
				}
				reduced[len(reduced)-1].value = left / operand.value
			} else {
				reduced[len(reduced)-1].value = left * operand.value
			}
		} else {
			reduced = append(reduced, op, operand)
		}
	}

	result := reduced[0].value
	for i := 1; i < len(reduced); i += 2 {
		if reduced[i].op == '+' {
			result += reduced[i+1].value
		} else {
			result -= reduced[i+1].value
		}
	}
	return result, nil
}
