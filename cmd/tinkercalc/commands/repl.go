package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/livetemplate/tinkercalc"
)

const replPrompt = "tinkercalc> "

// ReplCommand implements the repl command.
// Usage: tinkercalc repl [--locale=TAG] [--ascii]
func ReplCommand(args []string) error {
	opts := parseEvalFlags(args)
	f, err := opts.formatter()
	if err != nil {
		return err
	}

	fmt.Println("🧮 Tinkercalc REPL - type keys (e.g. 12+3=), 'state' or 'quit'")
	return runRepl(os.Stdin, os.Stdout, os.Stderr, f)
}

// runRepl presses each input line on one calculator and prints the display
// after every line. Unknown keys are reported and the line stops there.
func runRepl(in io.Reader, stdout, stderr io.Writer, f *tinkercalc.Formatter) error {
	calc := tinkercalc.New()
	scanner := bufio.NewScanner(in)

	fmt.Fprint(stdout, replPrompt)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
		case "quit", "exit":
			return nil
		case "state":
			data, err := json.Marshal(calc.State())
			if err != nil {
				return fmt.Errorf("failed to encode state: %w", err)
			}
			fmt.Fprintln(stdout, string(data))
		default:
			alerts, err := calc.PressAll(tinkercalc.SplitKeys(line))
			for _, msg := range alerts {
				fmt.Fprintf(stderr, "⚠️  %s\n", msg)
			}
			var ke *tinkercalc.KeyError
			if errors.As(err, &ke) {
				fmt.Fprint(stderr, ke.Format())
			} else if err != nil {
				return err
			}
			printDisplay(stdout, calc.Render(f))
		}

		fmt.Fprint(stdout, replPrompt)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprintln(stdout)
	return nil
}
