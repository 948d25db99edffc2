package tinkercalc

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAlertMessage(t *testing.T) {
	wrapped := fmt.Errorf("press =: %w", ErrDivideByZero)

	msg, ok := AlertMessage(wrapped)
	if !ok {
		t.Fatal("expected wrapped divide-by-zero to produce an alert")
	}
	if msg != "Cannot divide by zero!" {
		t.Errorf("unexpected alert: %q", msg)
	}

	if _, ok := AlertMessage(errors.New("boom")); ok {
		t.Error("unrelated errors must not produce alerts")
	}
	if _, ok := AlertMessage(nil); ok {
		t.Error("nil must not produce an alert")
	}
}

func TestKeyErrorFormatting(t *testing.T) {
	err := NewKeyError("^").WithSequence([]string{"2", "^", "3"}, 2)

	if got := err.Error(); got != `unknown key "^" at position 2` {
		t.Errorf("Error() = %q", got)
	}

	formatted := err.Format()
	t.Logf("Formatted error:\n%s", formatted)

	expectedParts := []string{
		`❌ Unknown key "^"`,
		"  2 ^ 3\n",
		"\n    ^\n",
		"💡 Tip: only + - × ÷ and % are available",
	}
	for _, part := range expectedParts {
		if !strings.Contains(formatted, part) {
			t.Errorf("Formatted error missing %q", part)
		}
	}
}

func TestKeyErrorWithoutSequence(t *testing.T) {
	err := NewKeyError("M+")

	if got := err.Error(); got != `unknown key "M+"` {
		t.Errorf("Error() = %q", got)
	}

	formatted := err.Format()
	if strings.Contains(formatted, "^") {
		t.Errorf("expected no caret line without a sequence:\n%s", formatted)
	}
	if !strings.Contains(formatted, "no memory keys") {
		t.Errorf("expected memory hint:\n%s", formatted)
	}
}

func TestKeyErrorDefaultHint(t *testing.T) {
	err := NewKeyError("?")
	if !strings.Contains(err.Hint, "valid keys are") {
		t.Errorf("unexpected default hint: %q", err.Hint)
	}
}
