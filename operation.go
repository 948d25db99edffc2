package tinkercalc

import "fmt"

// Operation is one of the four arithmetic operators, or OpNone.
type Operation string

const (
	OpNone     Operation = ""
	OpAdd      Operation = "+"
	OpSubtract Operation = "-"
	OpMultiply Operation = "×"
	OpDivide   Operation = "÷"
)

// ParseOperation accepts the canonical operator symbols and the ASCII
// spellings keyboards produce (x, *, /).
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "+":
		return OpAdd, nil
	case "-", "−":
		return OpSubtract, nil
	case "×", "x", "X", "*":
		return OpMultiply, nil
	case "÷", "/":
		return OpDivide, nil
	}
	return OpNone, fmt.Errorf("unknown operation %q", s)
}

// ASCII returns the keyboard spelling of the operator.
func (op Operation) ASCII() string {
	switch op {
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	}
	return string(op)
}

func (op Operation) String() string {
	if op == OpNone {
		return "none"
	}
	return string(op)
}

// IsDigitToken reports whether token is accepted by AppendDigit.
func IsDigitToken(token string) bool {
	switch token {
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "00", ".":
		return true
	}
	return false
}
