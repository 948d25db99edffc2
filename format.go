package tinkercalc

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders operand text for the display using a locale's
// thousands separators.
type Formatter struct {
	tag            language.Tag
	printer        *message.Printer
	asciiOperators bool
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithASCIIOperators renders × and ÷ as * and / in the secondary display.
func WithASCIIOperators() FormatterOption {
	return func(f *Formatter) {
		f.asciiOperators = true
	}
}

// NewFormatter returns a formatter for the given locale.
func NewFormatter(tag language.Tag, opts ...FormatterOption) *Formatter {
	f := &Formatter{tag: tag, printer: message.NewPrinter(tag)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var defaultFormatter = NewFormatter(language.English)

// Locale returns the formatter's language tag.
func (f *Formatter) Locale() language.Tag {
	return f.tag
}

// Format groups the integer digits of numberText and reattaches the fraction
// unchanged. Only the rendering is affected; the operand keeps full precision.
func (f *Formatter) Format(numberText string) string {
	integerPart, fraction, hasFraction := strings.Cut(numberText, ".")

	integerDisplay := ""
	if v, ok := parseNumber(integerPart); ok {
		integerDisplay = f.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(0)))
		// Negative zero renders unsigned; keep the sign of results like -0.5.
		if v == 0 && math.Signbit(v) {
			integerDisplay = "-" + integerDisplay
		}
	}

	if hasFraction {
		return integerDisplay + "." + fraction
	}
	return integerDisplay
}

// FormatForDisplay formats numberText with English grouping, e.g.
// "1234567.89" becomes "1,234,567.89".
func FormatForDisplay(numberText string) string {
	return defaultFormatter.Format(numberText)
}

// Display is what a presentation layer shows after each command.
type Display struct {
	Current   string    `json:"current"`
	Previous  string    `json:"previous"`
	Operation Operation `json:"operation,omitempty"`
}

// Render formats the operands for the primary and secondary display. The
// secondary line is blank unless an operation is pending. A nil formatter
// uses English grouping.
func (c *Calculator) Render(f *Formatter) Display {
	if f == nil {
		f = defaultFormatter
	}
	d := Display{
		Current:   f.Format(c.current),
		Operation: c.operation,
	}
	if c.operation != OpNone {
		symbol := string(c.operation)
		if f.asciiOperators {
			symbol = c.operation.ASCII()
		}
		d.Previous = f.Format(c.previous) + " " + symbol
	}
	return d
}
