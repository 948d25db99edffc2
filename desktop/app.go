package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/livetemplate/tinkercalc/internal/config"
	"github.com/livetemplate/tinkercalc/internal/server"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct holds the application state.
type App struct {
	ctx        context.Context
	server     *server.Server
	httpServer *http.Server
	serverPort int
	currentDir string
	mu         sync.RWMutex
}

// NewApp creates a new App application struct.
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts. The keypad is served from the
// working directory so a calc.yaml there is picked up.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if _, err := a.startServer(GetDefaultDirectory()); err != nil {
		log.Printf("[Desktop] Failed to start server: %v", err)
	}
}

// shutdown is called when the app is closing.
func (a *App) shutdown(ctx context.Context) {
	a.stopServer()
}

// stopServer stops the current server if running.
func (a *App) stopServer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.httpServer != nil {
		a.httpServer.Close()
		a.httpServer = nil
	}
	if a.server != nil {
		a.server.Close()
		a.server = nil
	}
	a.serverPort = 0
}

// OpenDirectory opens a directory dialog and serves the keypad found there.
func (a *App) OpenDirectory() (string, error) {
	selection, err := runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Open Keypad Directory",
	})
	if err != nil {
		return "", err
	}

	if selection == "" {
		return "", nil
	}

	if err := a.loadDirectory(selection); err != nil {
		return "", err
	}

	return selection, nil
}

// loadDirectory restarts the server on dir and points the window at it.
func (a *App) loadDirectory(dir string) error {
	serverURL, err := a.startServer(dir)
	if err != nil {
		return err
	}

	runtime.WindowSetTitle(a.ctx, fmt.Sprintf("Tinkercalc - %s", filepath.Base(a.GetCurrentDirectory())))
	runtime.EventsEmit(a.ctx, "navigate", serverURL)
	a.navigate(serverURL)
	return nil
}

// startServer serves the keypad for dir on a free loopback port and returns
// its URL. A running server is stopped first.
func (a *App) startServer(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	a.stopServer()

	cfg, err := config.LoadFromDir(absDir)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	// The REST API and metrics are for shared servers, not a local window
	cfg.API = nil
	cfg.Metrics.Enabled = false

	srv, err := server.New(absDir, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.Features.HotReload {
		if err := srv.EnableWatch(cfg.Server.Debug); err != nil {
			srv.Close()
			return "", fmt.Errorf("failed to enable watch mode: %w", err)
		}
	}

	// Listen before serving so the port cannot be taken in between
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		srv.Close()
		return "", fmt.Errorf("failed to find free port: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	httpServer := &http.Server{Handler: srv.Handler()}
	go func() {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			log.Printf("[Desktop] HTTP server error: %v", err)
		}
	}()

	a.mu.Lock()
	a.server = srv
	a.httpServer = httpServer
	a.serverPort = port
	a.currentDir = absDir
	a.mu.Unlock()

	return fmt.Sprintf("http://127.0.0.1:%d/", port), nil
}

// navigate points the webview at url.
func (a *App) navigate(url string) {
	runtime.WindowExecJS(a.ctx, fmt.Sprintf("window.location.href = %q;", url))
}

// Clear presses AC on the keypad shown in the window.
func (a *App) Clear() {
	runtime.WindowExecJS(a.ctx, `window.tinkercalc && window.tinkercalc.press("C");`)
}

// Reload reloads the keypad page.
func (a *App) Reload() {
	runtime.WindowReload(a.ctx)
}

// ShowHelp navigates to the help page.
func (a *App) ShowHelp() {
	if url := a.GetServerURL(); url != "" {
		a.navigate(url + "help")
	}
}

// Exit quits the application.
func (a *App) Exit() {
	runtime.Quit(a.ctx)
}

// GetCurrentDirectory returns the currently served directory.
func (a *App) GetCurrentDirectory() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentDir
}

// GetServerURL returns the URL of the running server, or empty string if not running.
func (a *App) GetServerURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.serverPort == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d/", a.serverPort)
}

// GetHandler returns the handler for the window's own origin. It shows a
// loading screen that moves to the keypad server once it is up.
func (a *App) GetHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(loadingHTML))
	})
}

const loadingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8"/>
    <meta content="width=device-width, initial-scale=1.0" name="viewport"/>
    <title>Tinkercalc</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            background: linear-gradient(to right, #00aaff, #00ff6c);
            color: #fff;
            min-height: 100vh;
            margin: 0;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        #status { font-size: 1.1rem; }
        .error { color: #7f1d1d; }
    </style>
</head>
<body>
    <p id="status">Starting calculator...</p>
    <script>
        async function openKeypad() {
            const statusEl = document.getElementById('status');
            try {
                const url = await window.go.main.App.GetServerURL();
                if (url) {
                    window.location.href = url;
                    return;
                }
                setTimeout(openKeypad, 100);
            } catch (err) {
                statusEl.textContent = 'Error: ' + err;
                statusEl.className = 'error';
            }
        }

        // Wait for Wails runtime to be available
        function waitForWails() {
            if (window.go && window.runtime) {
                window.runtime.EventsOn('navigate', function(url) {
                    window.location.href = url;
                });
                openKeypad();
            } else {
                setTimeout(waitForWails, 50);
            }
        }

        if (document.readyState === 'loading') {
            document.addEventListener('DOMContentLoaded', waitForWails);
        } else {
            waitForWails();
        }
    </script>
</body>
</html>`
