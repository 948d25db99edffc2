package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/livetemplate/tinkercalc"
	"github.com/livetemplate/tinkercalc/internal/assets"
	"github.com/livetemplate/tinkercalc/internal/config"
	"github.com/livetemplate/tinkercalc/internal/observability"
	"github.com/livetemplate/tinkercalc/internal/security"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Server is the tinkercalc HTTP server.
type Server struct {
	rootDir string
	config  *config.Config
	debug   bool

	mu          sync.RWMutex
	formatter   *tinkercalc.Formatter
	pageTmpl    *template.Template
	helpTmpl    *template.Template
	displayTmpl string        // livetemplate source for the display block
	helpHTML    template.HTML // rendered help markdown

	connections map[*Client]bool // Track connected WebSocket clients
	connMu      sync.RWMutex     // Separate mutex for connections
	watcher     *Watcher         // File watcher for live reload

	api           *APIHandler
	apiHandler    http.Handler // api wrapped in CORS, auth and rate limiting
	stopAPI       context.CancelFunc
	rateLimitDone <-chan struct{}
}

// New creates a server for the given root directory. Custom templates and
// help text named in cfg are resolved relative to rootDir.
func New(rootDir string, cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Server{
		rootDir:     rootDir,
		config:      cfg,
		debug:       cfg.Server.Debug,
		connections: make(map[*Client]bool),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	if cfg.IsAPIEnabled() {
		s.api = NewAPIHandler(cfg, s.Formatter)

		ctx, cancel := context.WithCancel(context.Background())
		rateLimit, done := RateLimitMiddleware(ctx, cfg.API.GetRateLimitRPS(), cfg.API.GetRateLimitBurst(), cfg.API.GetMaxTrackedIPs())
		s.stopAPI = cancel
		s.rateLimitDone = done

		var headerName string
		if cfg.API.Auth != nil {
			headerName = cfg.API.Auth.GetHeaderName()
		}

		var h http.Handler = s.api
		h = rateLimit(h)
		h = AuthMiddleware(cfg.API.Auth)(h)
		h = CORSMiddleware(cfg.API.GetCORSOrigins(), headerName)(h)
		s.apiHandler = h
	}

	return s, nil
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}

// Formatter returns the formatter used for new connections and sessions.
func (s *Server) Formatter() *tinkercalc.Formatter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.formatter
}

// Reload re-reads the page, display and help templates. Files named in the
// config take precedence over the embedded defaults.
func (s *Server) Reload() error {
	pageSrc, err := assets.GetPageTemplate()
	if err != nil {
		return fmt.Errorf("failed to read page template: %w", err)
	}
	pageTmpl, err := template.New("page").Parse(pageSrc)
	if err != nil {
		return fmt.Errorf("failed to parse page template: %w", err)
	}

	helpSrc, err := assets.GetHelpTemplate()
	if err != nil {
		return fmt.Errorf("failed to read help template: %w", err)
	}
	helpTmpl, err := template.New("help").Parse(helpSrc)
	if err != nil {
		return fmt.Errorf("failed to parse help template: %w", err)
	}

	displaySrc, err := s.readDisplayTemplate()
	if err != nil {
		return err
	}

	helpHTML, err := s.renderHelp()
	if err != nil {
		return err
	}

	var opts []tinkercalc.FormatterOption
	if s.config.UseASCIIOperators() {
		opts = append(opts, tinkercalc.WithASCIIOperators())
	}

	s.mu.Lock()
	s.pageTmpl = pageTmpl
	s.helpTmpl = helpTmpl
	s.displayTmpl = displaySrc
	s.helpHTML = helpHTML
	s.formatter = tinkercalc.NewFormatter(s.config.GetLocale(), opts...)
	s.mu.Unlock()

	return nil
}

func (s *Server) readDisplayTemplate() (string, error) {
	if s.config.Template == "" {
		return assets.GetDisplayTemplate()
	}
	path, err := security.ResolveInRoot(s.rootDir, s.config.Template)
	if err != nil {
		return "", fmt.Errorf("invalid display template: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read display template: %w", err)
	}
	return string(data), nil
}

// renderHelp converts the help markdown to HTML.
func (s *Server) renderHelp() (template.HTML, error) {
	var src []byte
	var err error
	if s.config.Help != "" {
		var path string
		path, err = security.ResolveInRoot(s.rootDir, s.config.Help)
		if err == nil {
			src, err = os.ReadFile(path)
		}
	} else {
		src, err = assets.GetHelpMarkdown()
	}
	if err != nil {
		return "", fmt.Errorf("failed to read help: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("failed to render help: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Handler returns the server wrapped in security headers, compression and
// request metrics.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s
	h = observability.MetricsMiddleware(h)
	h = WithCompression(h)
	h = SecurityHeadersMiddleware()(h)
	return h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ws":
		s.serveWebSocket(w, r)
	case r.URL.Path == "/healthz":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/metrics" && s.config.Metrics.Enabled:
		observability.Handler().ServeHTTP(w, r)
	case r.URL.Path == "/help":
		s.serveHelp(w, r)
	case strings.HasPrefix(r.URL.Path, "/assets/"):
		s.serveAsset(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/"):
		if s.apiHandler == nil {
			writeError(w, http.StatusNotFound, "API is not enabled")
			return
		}
		s.apiHandler.ServeHTTP(w, r)
	case r.URL.Path == "/":
		s.servePage(w, r)
	default:
		// No route found - redirect to the keypad instead of 404
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// serveWebSocket handles WebSocket connections for the keypad.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	wsHandler := NewWebSocketHandler(s, s.debug)
	wsHandler.ServeHTTP(w, r)
}

// serveAsset serves embedded client assets.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/assets/")

	var (
		data        []byte
		err         error
		contentType string
	)
	switch path {
	case "tinkercalc.js":
		data, err = assets.GetClientJS()
		contentType = "application/javascript"
	case "tinkercalc.css":
		data, err = assets.GetClientCSS()
		contentType = "text/css"
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// pageData is the html/template data for the keypad and help pages.
type pageData struct {
	Title       string
	Description string
	Lang        string
	Keyboard    bool
	Display     tinkercalc.Display
	Divide      string
	Multiply    string
	Content     template.HTML
}

func (s *Server) newPageData() pageData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.formatter

	divide, multiply := tinkercalc.OpDivide.String(), tinkercalc.OpMultiply.String()
	if s.config.UseASCIIOperators() {
		divide, multiply = tinkercalc.OpDivide.ASCII(), tinkercalc.OpMultiply.ASCII()
	}

	return pageData{
		Title:       s.config.Title,
		Description: s.config.Description,
		Lang:        f.Locale().String(),
		Keyboard:    s.config.Features.Keyboard,
		Display:     tinkercalc.New().Render(f),
		Divide:      divide,
		Multiply:    multiply,
	}
}

// servePage serves the keypad page.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	tmpl := s.pageTmpl
	s.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s.newPageData()); err != nil {
		log.Printf("[Server] Failed to render page: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// serveHelp serves the rendered help text.
func (s *Server) serveHelp(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	tmpl := s.helpTmpl
	content := s.helpHTML
	s.mu.RUnlock()

	data := s.newPageData()
	data.Content = content

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("[Server] Failed to render help: %v", err)
		http.Error(w, "Failed to render help", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// RegisterConnection adds a WebSocket client to the tracked connections.
func (s *Server) RegisterConnection(c *Client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[c] = true
	observability.WSConnections.Inc()
	if s.debug {
		log.Printf("[Server] WebSocket connection registered: %d active connections", len(s.connections))
	}
}

// UnregisterConnection removes a WebSocket client from tracked connections.
func (s *Server) UnregisterConnection(c *Client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if _, ok := s.connections[c]; !ok {
		return
	}
	delete(s.connections, c)
	observability.WSConnections.Dec()
	if s.debug {
		log.Printf("[Server] WebSocket connection unregistered: %d active connections", len(s.connections))
	}
}

// ConnectionCount returns the number of connected WebSocket clients.
func (s *Server) ConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}

// BroadcastReload sends a reload message to all connected WebSocket clients.
func (s *Server) BroadcastReload(filePath string) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	if len(s.connections) == 0 {
		return
	}

	data, err := json.Marshal(map[string]interface{}{
		"action":   "reload",
		"filePath": filePath,
	})
	if err != nil {
		log.Printf("[Server] Failed to marshal reload message: %v", err)
		return
	}

	log.Printf("[Server] Broadcasting reload for %s to %d connections", filePath, len(s.connections))

	for c := range s.connections {
		if err := c.write(websocket.TextMessage, data); err != nil {
			log.Printf("[Server] Failed to send reload to connection: %v", err)
		}
	}
}

// reloadFile reacts to a changed file under the served directory.
func (s *Server) reloadFile(filePath string) error {
	if filepath.Ext(filePath) == ".yaml" {
		s.reloadConfig()
	}
	if err := s.Reload(); err != nil {
		return fmt.Errorf("failed to reload templates: %w", err)
	}
	s.BroadcastReload(filePath)
	return nil
}

// reloadConfig re-reads presentation settings from the served directory.
// Server, API and session settings only change on restart.
func (s *Server) reloadConfig() {
	cfg, err := config.LoadFromDir(s.rootDir)
	if err != nil {
		log.Printf("[Watch] Keeping previous config: %v", err)
		return
	}

	s.mu.Lock()
	s.config.Title = cfg.Title
	s.config.Description = cfg.Description
	s.config.Display = cfg.Display
	s.config.Features.Keyboard = cfg.Features.Keyboard
	s.config.Template = cfg.Template
	s.config.Help = cfg.Help
	s.mu.Unlock()
}

// EnableWatch enables file watching for live reload.
func (s *Server) EnableWatch(debug bool) error {
	watcher, err := NewWatcher(s.rootDir, func(filePath string) error {
		log.Printf("[Watch] File changed: %s", filePath)
		return s.reloadFile(filePath)
	}, debug)

	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	log.Printf("[Watch] File watcher started for %s", s.rootDir)
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

// Close stops background work: the watcher, the rate limiter cleanup and the
// API session store.
func (s *Server) Close() error {
	err := s.StopWatch()
	s.watcher = nil

	if s.stopAPI != nil {
		s.stopAPI()
		<-s.rateLimitDone
		s.stopAPI = nil
	}
	if s.api != nil {
		s.api.Close()
	}
	return err
}
