// Command tinkercalc serves and drives the tinkercalc four-function calculator.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/livetemplate/tinkercalc"
	"github.com/livetemplate/tinkercalc/cmd/tinkercalc/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "eval":
		err = commands.EvalCommand(args)
	case "repl":
		err = commands.ReplCommand(args)
	case "init":
		err = commands.InitCommand(args)
	case "version":
		fmt.Printf("tinkercalc version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var ke *tinkercalc.KeyError
		if errors.As(err, &ke) {
			fmt.Fprint(os.Stderr, ke.Format())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("tinkercalc - A four-function calculator for the browser, terminal and desktop")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tinkercalc serve [directory]       Start the keypad server")
	fmt.Println("  tinkercalc eval <keys...>          Press keys and print the display")
	fmt.Println("  tinkercalc repl                    Press keys interactively")
	fmt.Println("  tinkercalc init <directory>        Create a customisable keypad directory")
	fmt.Println("  tinkercalc version                 Show version")
	fmt.Println("  tinkercalc help                    Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tinkercalc serve                   # Serve the keypad on localhost:8080")
	fmt.Println("  tinkercalc serve ./till --watch    # Serve a custom keypad with live reload")
	fmt.Println("  tinkercalc eval 1234 + 6 =         # Prints 1,240")
	fmt.Println("  tinkercalc eval --format=json 8÷0= # Alerts go to stderr")
	fmt.Println("  tinkercalc eval --locale=de 1234567.5")
	fmt.Println("  tinkercalc init till --title=\"Shop Till\"")
	fmt.Println()
	fmt.Println("Documentation: https://github.com/livetemplate/tinkercalc")
}
