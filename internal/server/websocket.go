package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/livetemplate/livetemplate"
	"github.com/livetemplate/tinkercalc"
	"github.com/livetemplate/tinkercalc/internal/observability"
)

// calculatorBlockID identifies the display block in message envelopes.
const calculatorBlockID = "calculator"

// allowOrigin reports whether a browser on the request's Origin may open the
// keypad socket. Without configured CORS origins every origin is accepted;
// otherwise only same-host pages and the listed origins are.
func allowOrigin(origins []string, r *http.Request) bool {
	if len(origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.Contains(origins, "*") || slices.Contains(origins, origin)
}

// MessageEnvelope represents a WebSocket message.
type MessageEnvelope struct {
	BlockID string              `json:"blockID"`
	Action  string              `json:"action"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Display *tinkercalc.Display `json:"display,omitempty"` // Formatted display, set on tree messages
}

// PressData is the payload of a press action.
type PressData struct {
	Key string `json:"key"`
}

// NoticeData is the payload of alert and error messages.
type NoticeData struct {
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// shortcutKeys maps single-purpose actions to the key they press.
var shortcutKeys = map[string]string{
	"clear":   "C",
	"delete":  "DEL",
	"percent": "%",
	"equals":  "=",
}

// Client is one keypad connection. It owns its calculator; reads are served
// by a single goroutine and writes are serialised so reload broadcasts can
// share the connection.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	calc      *tinkercalc.Calculator
	formatter *tinkercalc.Formatter
	template  *livetemplate.Template
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// WebSocketHandler handles keypad WebSocket connections.
type WebSocketHandler struct {
	server *Server
	debug  bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(server *Server, debug bool) *WebSocketHandler {
	return &WebSocketHandler{
		server: server,
		debug:  debug,
	}
}

// ServeHTTP handles WebSocket upgrade and message routing.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origins := h.server.config.API.GetCORSOrigins()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return allowOrigin(origins, r)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		calc:      tinkercalc.New(),
		formatter: h.server.Formatter(),
	}

	defer func() {
		h.server.UnregisterConnection(client)
		conn.Close()
	}()

	// Register connection for reload broadcasts
	h.server.RegisterConnection(client)

	if h.debug {
		log.Printf("[WS] Client connected: %s", conn.RemoteAddr())
	}

	tmpl, err := h.newDisplayTemplate()
	if err != nil {
		log.Printf("[WS] Failed to create display template: %v", err)
	}
	client.template = tmpl

	// Send initial state
	h.sendTree(client)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close: %v", err)
			}
			break
		}

		if h.debug {
			log.Printf("[WS] Received: %s", message)
		}

		h.handleMessage(client, message)
	}

	if h.debug {
		log.Printf("[WS] Client disconnected: %s", conn.RemoteAddr())
	}
}

// newDisplayTemplate parses the current display template for one connection.
// livetemplate parses from files, so the source goes through a temp file.
func (h *WebSocketHandler) newDisplayTemplate() (*livetemplate.Template, error) {
	h.server.mu.RLock()
	src := h.server.displayTmpl
	h.server.mu.RUnlock()

	tmpDir, err := os.MkdirTemp("", "tinkercalc-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, fmt.Sprintf("lvt-%s.tmpl", calculatorBlockID))
	if err := os.WriteFile(tmpFile, []byte(src), 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp template: %w", err)
	}

	return livetemplate.New(calculatorBlockID, livetemplate.WithParseFiles(tmpFile))
}

// handleMessage applies one client message and replies.
func (h *WebSocketHandler) handleMessage(client *Client, message []byte) {
	var envelope MessageEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		log.Printf("[WS] Failed to parse message: %v", err)
		h.sendNotice(client, "error", NoticeData{Message: "invalid message"})
		return
	}

	if envelope.BlockID != "" && envelope.BlockID != calculatorBlockID {
		log.Printf("[WS] Unknown block ID: %s", envelope.BlockID)
		h.sendNotice(client, "error", NoticeData{Message: fmt.Sprintf("unknown block %q", envelope.BlockID)})
		return
	}

	key, err := keyForAction(envelope.Action, envelope.Data)
	if err != nil {
		h.sendNotice(client, "error", NoticeData{Message: err.Error()})
		return
	}

	client.mu.Lock()
	err = client.calc.Press(key)
	client.mu.Unlock()

	observability.KeyPressesTotal.WithLabelValues(string(tinkercalc.Classify(key))).Inc()

	if err != nil {
		if msg, ok := tinkercalc.AlertMessage(err); ok {
			observability.AlertsTotal.WithLabelValues(observability.AlertReason(msg)).Inc()
			h.sendNotice(client, "alert", NoticeData{Message: msg})
		} else {
			var ke *tinkercalc.KeyError
			if errors.As(err, &ke) {
				h.sendNotice(client, "error", NoticeData{Message: ke.Error(), Hint: ke.Hint})
			} else {
				log.Printf("[WS] Error handling key %q: %v", key, err)
				h.sendNotice(client, "error", NoticeData{Message: err.Error()})
			}
			return
		}
	}

	if h.debug {
		log.Printf("[WS] Pressed %q", key)
	}

	h.sendTree(client)
}

// keyForAction resolves the key an action presses.
func keyForAction(action string, data json.RawMessage) (string, error) {
	if key, ok := shortcutKeys[action]; ok {
		return key, nil
	}
	if action != "press" {
		return "", fmt.Errorf("unknown action %q", action)
	}

	var press PressData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &press); err != nil {
			return "", fmt.Errorf("failed to parse action data: %w", err)
		}
	}
	if press.Key == "" {
		return "", errors.New("press requires a key")
	}
	return press.Key, nil
}

// sendTree renders the display and sends a tree update to the client.
func (h *WebSocketHandler) sendTree(client *Client) {
	client.mu.Lock()
	display := client.calc.Render(client.formatter)

	// ExecuteUpdates sends the full display tree first, then only changed dynamics
	var tree json.RawMessage
	if client.template != nil {
		var buf bytes.Buffer
		if err := client.template.ExecuteUpdates(&buf, display); err != nil {
			log.Printf("[WS] Failed to render display: %v", err)
		} else if json.Valid(buf.Bytes()) {
			tree = json.RawMessage(buf.Bytes())
		}
	}
	client.mu.Unlock()

	h.sendMessage(client, MessageEnvelope{
		BlockID: calculatorBlockID,
		Action:  "tree",
		Data:    tree,
		Display: &display,
	})
}

// sendNotice sends an alert or error message.
func (h *WebSocketHandler) sendNotice(client *Client, action string, notice NoticeData) {
	data, err := json.Marshal(notice)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s: %v", action, err)
		return
	}
	h.sendMessage(client, MessageEnvelope{
		BlockID: calculatorBlockID,
		Action:  action,
		Data:    data,
	})
}

// sendMessage sends a message envelope over WebSocket.
func (h *WebSocketHandler) sendMessage(client *Client, envelope MessageEnvelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[WS] Failed to marshal response: %v", err)
		return
	}

	if err := client.write(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Failed to send message: %v", err)
		return
	}

	if h.debug {
		log.Printf("[WS] Sent: %s", data)
	}
}
