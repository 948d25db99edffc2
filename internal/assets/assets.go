// Package assets embeds the keypad page, display template, client script,
// stylesheet and default help text.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed web/*
var webFS embed.FS

// WebFS returns the embedded web files
func WebFS() fs.FS {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the browser script
func GetClientJS() ([]byte, error) {
	return webFS.ReadFile("web/tinkercalc.js")
}

// GetClientCSS returns the stylesheet
func GetClientCSS() ([]byte, error) {
	return webFS.ReadFile("web/tinkercalc.css")
}

// GetPageTemplate returns the html/template source of the keypad page
func GetPageTemplate() (string, error) {
	data, err := webFS.ReadFile("web/page.html")
	return string(data), err
}

// GetHelpTemplate returns the html/template source wrapping the help text
func GetHelpTemplate() (string, error) {
	data, err := webFS.ReadFile("web/help.html")
	return string(data), err
}

// GetDisplayTemplate returns the default livetemplate source for the display block
func GetDisplayTemplate() (string, error) {
	data, err := webFS.ReadFile("web/display.tmpl")
	return string(data), err
}

// GetHelpMarkdown returns the default help text
func GetHelpMarkdown() ([]byte, error) {
	return webFS.ReadFile("web/help.md")
}
