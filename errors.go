package tinkercalc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDivideByZero is returned by Compute when the divisor is zero. The
// calculator has already been cleared when it is returned.
var ErrDivideByZero = errors.New("cannot divide by zero")

// divideByZeroAlert is the notification shown to the user.
const divideByZeroAlert = "Cannot divide by zero!"

// AlertMessage returns the user-facing notification for err, if err is one
// the presentation layer should surface.
func AlertMessage(err error) (string, bool) {
	if errors.Is(err, ErrDivideByZero) {
		return divideByZeroAlert, true
	}
	return "", false
}

// KeyError reports a key the keypad does not understand.
type KeyError struct {
	Key      string   // Offending key
	Position int      // Index in Sequence (1-indexed, optional)
	Sequence []string // Keys pressed in the same batch (optional)
	Hint     string   // Helpful suggestion
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("unknown key %q at position %d", e.Key, e.Position)
	}
	return fmt.Sprintf("unknown key %q", e.Key)
}

// Format returns a multi-line message pointing at the offending key.
func (e *KeyError) Format() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("❌ Unknown key %q\n", e.Key))

	if e.Position > 0 && e.Position <= len(e.Sequence) {
		b.WriteString("\n  ")
		offset := 0
		for i, k := range e.Sequence {
			if i > 0 {
				b.WriteString(" ")
			}
			if i < e.Position-1 {
				offset += len([]rune(k)) + 1
			}
			b.WriteString(k)
		}
		b.WriteString("\n  " + strings.Repeat(" ", offset) + "^\n")
	}

	if e.Hint != "" {
		b.WriteString(fmt.Sprintf("\n💡 Tip: %s\n", e.Hint))
	}

	return b.String()
}

// NewKeyError creates a KeyError with a hint derived from the key.
func NewKeyError(key string) *KeyError {
	return &KeyError{Key: key, Hint: hintForKey(key)}
}

// WithSequence records where in a batch of keys the error occurred.
func (e *KeyError) WithSequence(keys []string, position int) *KeyError {
	e.Sequence = keys
	e.Position = position
	return e
}

func hintForKey(key string) string {
	switch strings.ToLower(key) {
	case "(", ")":
		return "parentheses are not supported; press = to fold each step"
	case "^", "**", "sqrt", "√":
		return "only + - × ÷ and % are available"
	case "m+", "m-", "mr", "mc":
		return "the calculator has no memory keys"
	case "undo", "ctrl+z":
		return "use DEL to remove the last digit"
	case ",":
		return "use . as the decimal point"
	}
	return "valid keys are 0-9, 00, ., + - × ÷ (or * /), %, =, C and DEL"
}
