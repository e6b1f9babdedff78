package handlers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Eval computes an arithmetic expression with +, -, *, /, %, ^ and
// parentheses, using a shunting-yard pass to postfix and a stack evaluation.
func Eval(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	postfix, err := toPostfix(tokens)
	if err != nil {
		return 0, err
	}
	return evalPostfix(postfix)
}

type token struct {
	op    byte // 0 for numbers
	value float64
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case unicode.IsDigit(rune(c)) || c == '.':
			j := i
			for j < len(expr) && (unicode.IsDigit(rune(expr[j])) || expr[j] == '.') {
				j++
			}
			value, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", expr[i:j])
			}
			tokens = append(tokens, token{value: value})
			i = j
		case strings.IndexByte("+-*/%^()", c) >= 0:
			// A minus with no operand to its left negates.
			if c == '-' && (len(tokens) == 0 || tokens[len(tokens)-1].op != 0 && tokens[len(tokens)-1].op != ')') {
				tokens = append(tokens, token{op: 'n'})
			} else {
				tokens = append(tokens, token{op: c})
			}
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return tokens, nil
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/', '%':
		return 2
	case 'n':
		return 3
	case '^':
		return 4
	}
	return 0
}

func rightAssociative(op byte) bool { return op == '^' || op == 'n' }

func toPostfix(tokens []token) ([]token, error) {
	var output, stack []token
	for _, t := range tokens {
		switch {
		case t.op == 0:
			output = append(output, t)
		case t.op == '(':
			stack = append(stack, t)
		case t.op == ')':
			for len(stack) > 0 && stack[len(stack)-1].op != '(' {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
			stack = stack[:len(stack)-1]
		default:
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.op == '(' || precedence(top.op) < precedence(t.op) ||
					(precedence(top.op) == precedence(t.op) && rightAssociative(t.op)) {
					break
				}
				output = append(output, top)
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, t)
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.op == '(' {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		output = append(output, top)
		stack = stack[:len(stack)-1]
	}
	return output, nil
}

func evalPostfix(postfix []token) (float64, error) {
	var stack []float64
	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}
	for _, t := range postfix {
		if t.op == 0 {
			stack = append(stack, t.value)
			continue
		}
		if t.op == 'n' {
			v, ok := pop()
			if !ok {
				return 0, fmt.Errorf("misplaced operator")
			}
			stack = append(stack, -v)
			continue
		}
		b, okB := pop()
		a, okA := pop()
		if !okA || !okB {
			return 0, fmt.Errorf("misplaced operator")
		}
		switch t.op {
		case '+':
			stack = append(stack, a+b)
		case '-':
			stack = append(stack, a-b)
		case '*':
			stack = append(stack, a*b)
		case '/':
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			stack = append(stack, a/b)
		case '%':
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			stack = append(stack, math.Mod(a, b))
		case '^':
			stack = append(stack, math.Pow(a, b))
		}
	}
	if len(stack) != 1 {
		return 0, fmt.Errorf("incomplete expression")
	}
	return stack[0], nil
}

// formatNumber trims trailing zeros so whole results read as integers.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
