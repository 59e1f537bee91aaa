// Package equation parses and evaluates binary arithmetic equations of the
// form "<float><operator><float>" and renders the textual replies exchanged
// between the calculator client and server.
package equation

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/JaroslawMajcherczyk/PUS/utils"
)

// Operator is one of the four supported arithmetic operators.
type Operator byte

const (
	Add      Operator = '+'
	Subtract Operator = '-'
	Multiply Operator = '*'
	Divide   Operator = '/'
)

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case Add, Subtract, Multiply, Divide:
		return true
	default:
		return false
	}
}

// String returns the operator character.
func (o Operator) String() string {
	return string(rune(o))
}

// Fixed replies sent in place of a numeric result.
const (
	ReplyInvalidEquation = "Error: invalid equation."
	ReplyDivisionByZero  = "Error: division by zero."
)

var (
	// ErrMalformed is returned when the input is not "<float><char><float>".
	ErrMalformed = errors.New("malformed equation")
	// ErrUnsupportedOperator is returned for an operator outside {+, -, *, /}.
	ErrUnsupportedOperator = errors.New("unsupported operator")
	// ErrDivisionByZero is returned for a division whose right operand is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Equation is a parsed binary arithmetic request.
type Equation struct {
	Left  float64
	Op    Operator
	Right float64
}

// Parse strips every whitespace character from input and parses the rest
// strictly as "<float><operator><float>". Nothing may follow the right
// operand.
//
// Parameters:
//   - input: Raw request text, e.g. "2 + 3" or "10/2"
//
// Returns:
//   - The parsed Equation
//   - ErrMalformed, ErrUnsupportedOperator or ErrDivisionByZero (wrapped) on failure
func Parse(input string) (Equation, error) {
	s := utils.StripWhitespace(input)

	left, rest, ok := scanFloat(s)
	if !ok || rest == "" {
		return Equation{}, fmt.Errorf("%w: %q", ErrMalformed, input)
	}

	op := Operator(rest[0])

	right, rest, ok := scanFloat(rest[1:])
	if !ok || rest != "" {
		return Equation{}, fmt.Errorf("%w: %q", ErrMalformed, input)
	}

	if !op.Valid() {
		return Equation{}, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op.String())
	}

	if op == Divide && right == 0 {
		return Equation{}, ErrDivisionByZero
	}

	return Equation{Left: left, Op: op, Right: right}, nil
}

// Result applies the operator to the operands.
func (e Equation) Result() float64 {
	switch e.Op {
	case Add:
		return e.Left + e.Right
	case Subtract:
		return e.Left - e.Right
	case Multiply:
		return e.Left * e.Right
	case Divide:
		return e.Left / e.Right
	default:
		panic(fmt.Sprintf("equation: unsupported operator %q", e.Op.String()))
	}
}

// String renders the equation in canonical form, e.g. "2.00 + 3.00".
func (e Equation) String() string {
	return fmt.Sprintf("%s %s %s", FormatNumber(e.Left), e.Op, FormatNumber(e.Right))
}

// Compact renders the equation without spaces and with full operand
// precision, e.g. "1.001+2". Parsing it yields the same Equation.
func (e Equation) Compact() string {
	return strconv.FormatFloat(e.Left, 'g', -1, 64) + e.Op.String() + strconv.FormatFloat(e.Right, 'g', -1, 64)
}

// FormatNumber formats v with exactly two decimal digits.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Reply returns the text sent back for a failed parse.
//
// Parameters:
//   - err: An error returned by Parse
//
// Returns:
//   - ReplyDivisionByZero for ErrDivisionByZero, ReplyInvalidEquation otherwise
func Reply(err error) string {
	if errors.Is(err, ErrDivisionByZero) {
		return ReplyDivisionByZero
	}

	return ReplyInvalidEquation
}

// Evaluate parses input and returns the reply a server sends for it: the
// result with two decimal digits, or one of the fixed error replies. It has
// no side effects.
//
// Parameters:
//   - input: Raw request text
//
// Returns:
//   - The formatted result or a fixed error reply
func Evaluate(input string) string {
	eq, err := Parse(input)
	if err != nil {
		return Reply(err)
	}

	return FormatNumber(eq.Result())
}

// scanFloat consumes the longest decimal floating-point prefix of s: an
// optional sign, digits with an optional fraction, and an optional exponent.
// At least one mantissa digit is required.
func scanFloat(s string) (float64, string, bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}

	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}

	if digits == 0 {
		return 0, s, false
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}

		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}

	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, s, false
	}

	return v, s[i:], true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
