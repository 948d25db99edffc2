package main

import (
	"os"
	goruntime "runtime"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
)

func main() {
	app := NewApp()

	err := wails.Run(&options.App{
		Title:            "Tinkercalc",
		Width:            420,
		Height:           640,
		MinWidth:         320,
		MinHeight:        520,
		BackgroundColour: &options.RGBA{R: 0, G: 170, B: 255, A: 1},
		Menu:             createMenu(app),
		AssetServer: &assetserver.Options{
			Handler: app.GetHandler(),
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []any{
			app,
		},
		Mac: &mac.Options{
			TitleBar: mac.TitleBarDefault(),
			About: &mac.AboutInfo{
				Title:   "Tinkercalc",
				Message: "A four-function calculator.\n\nBuilt with Wails and Go.",
			},
		},
		Windows: &windows.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
		},
	})

	if err != nil {
		println("Error:", err.Error())
		os.Exit(1)
	}
}

func createMenu(app *App) *menu.Menu {
	appMenu := menu.NewMenu()

	if goruntime.GOOS == "darwin" {
		appMenu.Append(menu.AppMenu())
	}

	fileMenu := appMenu.AddSubmenu("File")
	fileMenu.AddText("Open Keypad Directory...", keys.CmdOrCtrl("o"), func(cd *menu.CallbackData) {
		app.OpenDirectory()
	})
	if goruntime.GOOS != "darwin" {
		fileMenu.AddSeparator()
		fileMenu.AddText("Exit", keys.OptionOrAlt("F4"), func(cd *menu.CallbackData) {
			app.Exit()
		})
	}

	if goruntime.GOOS == "darwin" {
		appMenu.Append(menu.EditMenu())
	}

	calcMenu := appMenu.AddSubmenu("Calculator")
	calcMenu.AddText("Clear", keys.Key("escape"), func(cd *menu.CallbackData) {
		app.Clear()
	})
	calcMenu.AddText("Reload", keys.CmdOrCtrl("r"), func(cd *menu.CallbackData) {
		app.Reload()
	})

	helpMenu := appMenu.AddSubmenu("Help")
	helpMenu.AddText("Keypad Help", keys.Key("F1"), func(cd *menu.CallbackData) {
		app.ShowHelp()
	})

	return appMenu
}

// GetDefaultDirectory returns the directory served at startup.
func GetDefaultDirectory() string {
	if dir, err := os.Getwd(); err == nil {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
