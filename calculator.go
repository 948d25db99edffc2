// Package tinkercalc provides the calculator engine behind the tinkercalc keypad:
// operand entry, operator chaining, computation and display formatting.
package tinkercalc

import "strings"

// State is a snapshot of the calculator's fields.
type State struct {
	CurrentOperand  string    `json:"currentOperand"`
	PreviousOperand string    `json:"previousOperand"`
	Operation       Operation `json:"operation"`
	PendingReset    bool      `json:"pendingReset"`
}

// Calculator holds the operands and pending operator of a single keypad.
// A Calculator is not safe for concurrent use; owners serialise access.
type Calculator struct {
	current      string
	previous     string
	operation    Operation
	pendingReset bool
}

// New returns a calculator showing "0" with nothing pending.
func New() *Calculator {
	return &Calculator{current: "0"}
}

// State returns a copy of the current fields.
func (c *Calculator) State() State {
	return State{
		CurrentOperand:  c.current,
		PreviousOperand: c.previous,
		Operation:       c.operation,
		PendingReset:    c.pendingReset,
	}
}

// Clear resets both operands and the pending operation.
func (c *Calculator) Clear() {
	c.current = "0"
	c.previous = ""
	c.operation = OpNone
}

// DeleteLastDigit removes the last character of the current operand,
// settling at "0" rather than an empty string.
func (c *Calculator) DeleteLastDigit() {
	if c.current == "0" {
		return
	}
	r := []rune(c.current)
	if len(r) > 0 {
		c.current = string(r[:len(r)-1])
	}
	if c.current == "" {
		c.current = "0"
	}
}

// AppendDigit appends a digit, "00" or "." to the current operand.
// Other tokens are ignored.
func (c *Calculator) AppendDigit(token string) {
	if !IsDigitToken(token) {
		return
	}

	if c.pendingReset {
		c.current = ""
		c.pendingReset = false
	}

	if token == "." && strings.Contains(c.current, ".") {
		return
	}

	if c.current == "0" && token != "." {
		c.current = token
		return
	}
	c.current += token
}

// ChooseOperation stores the current operand as the left-hand side of op.
// A pending operation is computed first, so 2 + 3 + behaves like 5 +.
// The error from that computation, if any, is returned after op is applied.
func (c *Calculator) ChooseOperation(op Operation) error {
	if c.current == "" {
		return nil
	}

	var err error
	if c.previous != "" {
		err = c.Compute()
	}

	c.operation = op
	c.previous = c.current
	c.current = ""
	return err
}

// ApplyPercent divides the current operand by 100.
func (c *Calculator) ApplyPercent() {
	current, ok := parseNumber(c.current)
	if !ok {
		return
	}
	c.current = formatNumber(current / 100)
}

// Compute applies the pending operation to both operands.
// Unparseable operands or a missing operation leave the state unchanged.
// Division by zero clears the calculator and returns ErrDivideByZero.
func (c *Calculator) Compute() error {
	prev, ok := parseNumber(c.previous)
	if !ok {
		return nil
	}
	current, ok := parseNumber(c.current)
	if !ok {
		return nil
	}

	var result float64
	switch c.operation {
	case OpAdd:
		result = prev + current
	case OpSubtract:
		result = prev - current
	case OpMultiply:
		result = prev * current
	case OpDivide:
		if current == 0 {
			c.Clear()
			return ErrDivideByZero
		}
		result = prev / current
	default:
		return nil
	}

	c.current = formatNumber(result)
	c.operation = OpNone
	c.previous = ""
	c.pendingReset = true
	return nil
}
