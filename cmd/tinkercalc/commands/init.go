package commands

import (
	"embed"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/livetemplate/tinkercalc/internal/assets"
	"golang.org/x/text/language"
)

//go:embed templates/calc.yaml
var templatesFS embed.FS

// scaffoldData is available in scaffold templates as [[.Field]].
type scaffoldData struct {
	Title       string
	Description string
	Locale      string
	Operators   string
}

// InitCommand implements the init command.
func InitCommand(args []string) error {
	flagSet := flag.NewFlagSet("init", flag.ContinueOnError)
	title := flagSet.String("title", "", "Page title (default: derived from the directory name)")
	locale := flagSet.String("locale", "en", "BCP 47 locale for thousands separators")
	ascii := flagSet.Bool("ascii", false, "Show * and / instead of × and ÷")

	flagSet.Usage = func() {
		fmt.Println("Usage: tinkercalc init [options] <directory>")
		fmt.Println()
		fmt.Println("Create a directory with calc.yaml, display.tmpl and help.md to customise the keypad.")
		fmt.Println()
		fmt.Println("Options:")
		flagSet.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  tinkercalc init till")
		fmt.Println("  tinkercalc init kasse --locale=de --title=Kasse")
	}

	// Allow flags after the directory name
	if err := flagSet.Parse(flagsFirst(flagSet, args)); err != nil {
		return err
	}

	remainingArgs := flagSet.Args()
	if len(remainingArgs) < 1 {
		return fmt.Errorf("directory required\n\nUsage: tinkercalc init [options] <directory>\n\nRun 'tinkercalc init --help' for more information")
	}
	dir := remainingArgs[0]

	if _, err := language.Parse(*locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", *locale, err)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		return fmt.Errorf("directory '%s' already exists", dir)
	}

	data := scaffoldData{
		Title:       *title,
		Description: "A four-function calculator",
		Locale:      *locale,
		Operators:   "unicode",
	}
	if data.Title == "" {
		data.Title = toTitle(filepath.Base(dir))
	}
	if *ascii {
		data.Operators = "ascii"
	}

	if err := createScaffold(dir, data); err != nil {
		os.RemoveAll(dir)
		return err
	}

	printSuccessMessage(dir)
	return nil
}

// flagsFirst moves flag arguments, with their values, ahead of positional
// ones so the flag package sees all of them.
func flagsFirst(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)

		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return append(flags, positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// createScaffold writes calc.yaml plus copies of the default display
// template and help text into dir.
func createScaffold(dir string, data scaffoldData) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	content, err := templatesFS.ReadFile("templates/calc.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	// [[.Var]] keeps scaffolding variables apart from the {{ }} in display templates
	tmpl, err := template.New("calc.yaml").Delims("[[", "]]").Parse(string(content))
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "calc.yaml"))
	if err != nil {
		return fmt.Errorf("failed to create calc.yaml: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write calc.yaml: %w", err)
	}

	display, err := assets.GetDisplayTemplate()
	if err != nil {
		return fmt.Errorf("failed to read display template: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "display.tmpl"), []byte(display), 0644); err != nil {
		return fmt.Errorf("failed to write display.tmpl: %w", err)
	}

	help, err := assets.GetHelpMarkdown()
	if err != nil {
		return fmt.Errorf("failed to read help: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "help.md"), help, 0644); err != nil {
		return fmt.Errorf("failed to write help.md: %w", err)
	}

	return nil
}

// printSuccessMessage displays next steps after init.
func printSuccessMessage(dir string) {
	fmt.Printf("✨ Created keypad directory: %s\n\n", dir)
	fmt.Printf("🚀 Next steps:\n")
	fmt.Printf("   tinkercalc serve %s --watch\n\n", dir)
	fmt.Printf("📝 Edit calc.yaml, display.tmpl or help.md and open pages reload\n")
}

// toTitle converts a directory name to a title case string
// Example: "shop-till" -> "Shop Till"
func toTitle(name string) string {
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")

	words := strings.Fields(name)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
	}

	return strings.Join(words, " ")
}
