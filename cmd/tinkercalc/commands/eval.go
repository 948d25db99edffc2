package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/livetemplate/tinkercalc"
	"golang.org/x/text/language"
)

// evalOptions holds parsed eval and repl flags.
type evalOptions struct {
	format string // Output format: text, json
	locale string // BCP 47 tag for thousands separators
	ascii  bool   // Render × and ÷ as * and /
	keys   []string
}

// parseEvalFlags separates --flags from key arguments. Single-dash arguments
// are keys, so "-" still presses minus.
func parseEvalFlags(args []string) evalOptions {
	opts := evalOptions{
		format: "text",
		locale: "en",
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--ascii" {
			opts.ascii = true
			continue
		}

		if !strings.HasPrefix(arg, "--") {
			opts.keys = append(opts.keys, tinkercalc.SplitKeys(arg)...)
			continue
		}

		key, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !ok {
			// --format json and --locale de take the next argument
			if key != "format" && key != "locale" {
				log.Printf("warning: ignoring unknown flag %s", arg)
				continue
			}
			if i+1 >= len(args) {
				log.Printf("warning: %s needs a value", arg)
				continue
			}
			i++
			value = args[i]
		}

		switch key {
		case "format":
			switch value {
			case "text", "json":
				opts.format = value
			default:
				log.Printf("warning: invalid format %q, using default 'text'", value)
			}
		case "locale":
			opts.locale = value
		}
	}

	return opts
}

// formatter builds the display formatter for opts.
func (o evalOptions) formatter() (*tinkercalc.Formatter, error) {
	tag, err := language.Parse(o.locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", o.locale, err)
	}
	var fopts []tinkercalc.FormatterOption
	if o.ascii {
		fopts = append(fopts, tinkercalc.WithASCIIOperators())
	}
	return tinkercalc.NewFormatter(tag, fopts...), nil
}

// evalResult is the JSON output of eval.
type evalResult struct {
	Display tinkercalc.Display `json:"display"`
	State   tinkercalc.State   `json:"state"`
	Alerts  []string           `json:"alerts"`
}

// EvalCommand implements the eval command.
// Usage: tinkercalc eval [--format=text|json] [--locale=TAG] [--ascii] <keys...>
func EvalCommand(args []string) error {
	return runEval(args, os.Stdout, os.Stderr)
}

func runEval(args []string, stdout, stderr io.Writer) error {
	opts := parseEvalFlags(args)
	if len(opts.keys) == 0 {
		return fmt.Errorf("usage: tinkercalc eval [--format=text|json] [--locale=TAG] [--ascii] <keys...>\n\n" +
			"Examples:\n" +
			"  tinkercalc eval 12+3=\n" +
			"  tinkercalc eval 1 2 + 3 =\n" +
			"  tinkercalc eval --format=json 8÷0=")
	}

	f, err := opts.formatter()
	if err != nil {
		return err
	}

	calc := tinkercalc.New()
	alerts, pressErr := calc.PressAll(opts.keys)
	for _, msg := range alerts {
		fmt.Fprintf(stderr, "⚠️  %s\n", msg)
	}
	if pressErr != nil {
		return pressErr
	}

	display := calc.Render(f)
	if opts.format == "json" {
		if alerts == nil {
			alerts = []string{}
		}
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(evalResult{Display: display, State: calc.State(), Alerts: alerts})
	}

	printDisplay(stdout, display)
	return nil
}

// printDisplay writes the secondary line, when there is one, above the
// primary line.
func printDisplay(w io.Writer, d tinkercalc.Display) {
	if d.Previous != "" {
		fmt.Fprintln(w, d.Previous)
	}
	fmt.Fprintln(w, d.Current)
}
