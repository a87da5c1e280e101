package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"loom/internal/apperr"
	"loom/internal/chat"
	"loom/internal/notifier"
)

// Router wires HTTP and WebSocket transport over a chat.Facade, grounded on
// the teacher's api/v1.Router but scoped to this core's six facade
// operations — no images, SSE streaming, or delegate routing.
type Router struct {
	facade *chat.Facade
	hub    *notifier.Hub
}

// NewRouter builds a Router. hub may be nil, in which case the /ws endpoint
// is not registered.
func NewRouter(facade *chat.Facade, hub *notifier.Hub) *Router {
	return &Router{facade: facade, hub: hub}
}

// Handler returns the fully wrapped http.Handler (routes plus middleware).
func (rt *Router) Handler() http.Handler {
	router := mux.NewRouter()
	rt.registerRoutes(router)
	return recovery(requestLogging(router))
}

func (rt *Router) registerRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/sessions", rt.handleCreateSession).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/sessions", rt.handleListSessions).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/sessions/{id}", rt.handleGetSession).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/sessions/{id}/messages", rt.handleSendMessage).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/sessions/{id}/system_prompt", rt.handleUpdateSystemPrompt).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/providers", rt.handleListProviders).Methods(http.MethodGet)

	if rt.hub != nil {
		router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			serveWs(rt.hub, w, r)
		})
	}
}

type createSessionRequest struct {
	Title          string `json:"title"`
	SystemPromptID string `json:"system_prompt_id,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

func (rt *Router) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, apperr.CodeValidationError, "invalid JSON body")
		return
	}

	session, err := rt.facade.CreateSession(chat.CreateSessionParams{
		Title:          req.Title,
		SystemPromptID: req.SystemPromptID,
		Provider:       req.Provider,
		Model:          req.Model,
		SessionID:      req.SessionID,
	})
	if err != nil {
		sendAppErr(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, session)
}

func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, err := rt.facade.GetSession(id)
	if err != nil {
		sendAppErr(w, err)
		return
	}
	sendJSON(w, http.StatusOK, session)
}

func (rt *Router) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := rt.facade.ListSessions(limit, offset)
	if err != nil {
		sendAppErr(w, err)
		return
	}
	sendJSON(w, http.StatusOK, sessions)
}

type sendMessageRequest struct {
	Content  string `json:"content"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

func (rt *Router) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, apperr.CodeValidationError, "invalid JSON body")
		return
	}
	if req.Content == "" {
		sendError(w, http.StatusBadRequest, apperr.CodeValidationError, "content is required")
		return
	}

	msg, err := rt.facade.SendMessage(r.Context(), id, req.Content, req.Provider, req.Model)
	if err != nil {
		sendAppErr(w, err)
		return
	}
	sendJSON(w, http.StatusOK, msg)
}

type updateSystemPromptRequest struct {
	SystemPromptID string `json:"system_prompt_id"`
}

func (rt *Router) handleUpdateSystemPrompt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateSystemPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, apperr.CodeValidationError, "invalid JSON body")
		return
	}

	if err := rt.facade.UpdateSystemPrompt(id, req.SystemPromptID); err != nil {
		sendAppErr(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (rt *Router) handleListProviders(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string][]string{"providers": rt.facade.Providers()})
}
