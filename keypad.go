package tinkercalc

import (
	"strings"
	"unicode"
)

// KeyKind classifies a key token.
type KeyKind string

const (
	KeyDigit    KeyKind = "digit"
	KeyOperator KeyKind = "operator"
	KeyPercent  KeyKind = "percent"
	KeyEquals   KeyKind = "equals"
	KeyClear    KeyKind = "clear"
	KeyDelete   KeyKind = "delete"
	KeyUnknown  KeyKind = "unknown"
)

// namedKeys are multi-character tokens that SplitKeys keeps whole.
var namedKeys = map[string]KeyKind{
	"00":        KeyDigit,
	"Enter":     KeyEquals,
	"C":         KeyClear,
	"AC":        KeyClear,
	"Escape":    KeyClear,
	"clear":     KeyClear,
	"DEL":       KeyDelete,
	"Backspace": KeyDelete,
	"delete":    KeyDelete,
}

// Classify returns the kind of key.
func Classify(key string) KeyKind {
	if kind, ok := namedKeys[key]; ok {
		return kind
	}
	if IsDigitToken(key) {
		return KeyDigit
	}
	if _, err := ParseOperation(key); err == nil {
		return KeyOperator
	}
	switch key {
	case "%":
		return KeyPercent
	case "=":
		return KeyEquals
	}
	return KeyUnknown
}

// Press applies a single key to the calculator. Unknown keys return a
// *KeyError and leave the state untouched. ErrDivideByZero is passed through
// from Compute and ChooseOperation.
func (c *Calculator) Press(key string) error {
	switch Classify(key) {
	case KeyDigit:
		c.AppendDigit(key)
	case KeyOperator:
		op, err := ParseOperation(key)
		if err != nil {
			return NewKeyError(key)
		}
		return c.ChooseOperation(op)
	case KeyPercent:
		c.ApplyPercent()
	case KeyEquals:
		return c.Compute()
	case KeyClear:
		c.Clear()
	case KeyDelete:
		c.DeleteLastDigit()
	default:
		return NewKeyError(key)
	}
	return nil
}

// PressAll presses keys in order. Alerts raised along the way are collected
// and do not stop the sequence; an unknown key does, and is returned as a
// *KeyError positioned within keys.
func (c *Calculator) PressAll(keys []string) (alerts []string, err error) {
	for i, key := range keys {
		err := c.Press(key)
		if err == nil {
			continue
		}
		if msg, ok := AlertMessage(err); ok {
			alerts = append(alerts, msg)
			continue
		}
		if ke, ok := err.(*KeyError); ok {
			return alerts, ke.WithSequence(keys, i+1)
		}
		return alerts, err
	}
	return alerts, nil
}

// SplitKeys tokenises free text into keys. Whitespace-separated fields that
// are named keys (C, DEL, 00, Enter, ...) stay whole; everything else is split
// into single characters, so "12+3=" and "1 2 + 3 =" press the same keys.
func SplitKeys(input string) []string {
	var keys []string
	for _, field := range strings.FieldsFunc(input, unicode.IsSpace) {
		if _, ok := namedKeys[field]; ok {
			keys = append(keys, field)
			continue
		}
		for _, r := range field {
			keys = append(keys, string(r))
		}
	}
	return keys
}
