package handler

import (
	"encoding/json"
	"net/http"

	"github.com/greeneye/companion/internal/identity"
	"github.com/greeneye/companion/internal/localapi/response"
)

// SessionHandler manages the backend auth token held by the agent.
// Changing the token switches the active device namespace, so the
// handler notifies onChange after every mutation.
type SessionHandler struct {
	session  *identity.Session
	onChange func()
}

// NewSessionHandler creates a new SessionHandler. onChange may be nil.
func NewSessionHandler(session *identity.Session, onChange func()) *SessionHandler {
	return &SessionHandler{session: session, onChange: onChange}
}

// SessionResponse reports the active namespace. The token itself is
// never echoed back.
type SessionResponse struct {
	Namespace string `json:"namespace"`
	Guest     bool   `json:"guest"`
}

// GetSession handles GET /v1/session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ns := h.session.Namespace()
	response.JSON(w, r, http.StatusOK, SessionResponse{
		Namespace: ns,
		Guest:     ns == identity.GuestNamespace,
	})
}

// SetSessionRequest is the request body for PUT /v1/session.
type SetSessionRequest struct {
	Token string `json:"token"`
}

// SetSession handles PUT /v1/session.
func (h *SessionHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var input SetSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}
	if input.Token == "" {
		response.BadRequest(w, r, "token is empty")
		return
	}

	h.session.SetToken(input.Token)
	if h.onChange != nil {
		h.onChange()
	}
	h.GetSession(w, r)
}

// ClearSession handles DELETE /v1/session. The agent reverts to the
// guest namespace.
func (h *SessionHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.session.Clear()
	if h.onChange != nil {
		h.onChange()
	}
	response.NoContent(w, r)
}
