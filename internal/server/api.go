package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/livetemplate/tinkercalc"
	"github.com/livetemplate/tinkercalc/internal/config"
	"github.com/livetemplate/tinkercalc/internal/observability"
	"github.com/livetemplate/tinkercalc/internal/session"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// apiPrefix is the root of the calculator session API.
const apiPrefix = "/api/calculator/sessions"

// APIHandler handles REST API requests for calculator sessions.
type APIHandler struct {
	sessions  *session.Store
	formatter func() *tinkercalc.Formatter
}

// NewAPIHandler creates a new API handler. formatter is consulted on every
// response so display settings follow config reloads.
func NewAPIHandler(cfg *config.Config, formatter func() *tinkercalc.Formatter) *APIHandler {
	store := session.NewStore(cfg.GetSessionTTL(), cfg.GetMaxSessions())
	store.OnEvict = func(id string) {
		observability.APISessions.Dec()
	}
	return &APIHandler{
		sessions:  store,
		formatter: formatter,
	}
}

// Close stops the session store.
func (h *APIHandler) Close() error {
	h.sessions.Stop()
	return nil
}

// sessionResponse is the JSON body describing a session.
type sessionResponse struct {
	ID      string             `json:"id"`
	Display tinkercalc.Display `json:"display"`
	State   *tinkercalc.State  `json:"state,omitempty"`
}

// keysRequest is the body of POST .../keys. Keys are pressed first, then
// the keys split out of Input.
type keysRequest struct {
	Keys  []string `json:"keys"`
	Input string   `json:"input"`
}

// ServeHTTP handles API requests.
// Expected path format: /api/calculator/sessions[/{id}[/keys]]
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != apiPrefix && !strings.HasPrefix(r.URL.Path, apiPrefix+"/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCreate(w, r)
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, parts[0])
		case http.MethodDelete:
			h.handleDelete(w, r, parts[0])
		default:
			// Note: OPTIONS (preflight) is handled by CORS middleware before reaching here
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(parts) == 2 && parts[1] == "keys":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleKeys(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleCreate starts a new calculator session.
func (h *APIHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create()
	if errors.Is(err, session.ErrFull) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observability.APISessions.Inc()

	resp := sessionResponse{ID: sess.ID}
	sess.Do(func(c *tinkercalc.Calculator) {
		resp.Display = c.Render(h.formatter())
	})
	writeJSON(w, http.StatusCreated, resp)
}

// handleGet returns the display and raw state of a session.
func (h *APIHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}

	resp := sessionResponse{ID: sess.ID}
	sess.Do(func(c *tinkercalc.Calculator) {
		st := c.State()
		resp.Display = c.Render(h.formatter())
		resp.State = &st
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleKeys presses keys on a session's calculator.
func (h *APIHandler) handleKeys(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}

	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req keysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	keys := append(req.Keys, tinkercalc.SplitKeys(req.Input)...)
	if len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "keys or input required")
		return
	}

	var (
		alerts   []string
		pressErr error
		display  tinkercalc.Display
	)
	sess.Do(func(c *tinkercalc.Calculator) {
		alerts, pressErr = c.PressAll(keys)
		display = c.Render(h.formatter())
	})

	recordKeys(keys, pressErr)
	for _, msg := range alerts {
		observability.AlertsTotal.WithLabelValues(observability.AlertReason(msg)).Inc()
	}

	var ke *tinkercalc.KeyError
	if errors.As(pressErr, &ke) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    ke.Error(),
			"hint":     ke.Hint,
			"position": ke.Position,
			"display":  display,
			"alerts":   alerts,
		})
		return
	}
	if pressErr != nil {
		writeError(w, http.StatusInternalServerError, pressErr.Error())
		return
	}

	if alerts == nil {
		alerts = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      sess.ID,
		"display": display,
		"alerts":  alerts,
	})
}

// recordKeys counts the keys PressAll got through, including the one that
// stopped it.
func recordKeys(keys []string, pressErr error) {
	applied := keys
	var ke *tinkercalc.KeyError
	if errors.As(pressErr, &ke) && ke.Position > 0 && ke.Position <= len(keys) {
		applied = keys[:ke.Position]
	}
	for _, key := range applied {
		observability.KeyPressesTotal.WithLabelValues(string(tinkercalc.Classify(key))).Inc()
	}
}

// handleDelete ends a session.
func (h *APIHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if !h.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Printf("[API] Error encoding error response: %v", err)
	}
}
