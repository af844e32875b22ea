package internal

import (
	"net/http"
	"time"
)

type authStatus struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	UserID          string `json:"userId"`
	Email           string `json:"email"`
	Fullname        string `json:"fullname"`
}

type socketStatus struct {
	UserID            string  `json:"userId"`
	SocketConnected   bool    `json:"socketConnected"`
	SocketID          *string `json:"socketId"`
	ActiveConnections int     `json:"activeConnections"`
}

type debugReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandleAuthStatus echoes the account the request resolved to.
func (s *Server) HandleAuthStatus(w http.ResponseWriter, r *http.Request, identity Identity) {
	user, err := s.store.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		s.log.Error("load user failed", "user_id", identity.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"isAuthenticated": false, "error": "internal server error"})
		return
	}
	if user == nil {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, authStatus{
		IsAuthenticated: true,
		UserID:          user.ID,
		Email:           user.Email,
		Fullname:        user.Fullname,
	})
}

// HandleSocketStatus reports whether the caller has a registered socket.
// socketId is null when it has none.
func (s *Server) HandleSocketStatus(w http.ResponseWriter, _ *http.Request, identity Identity) {
	status := socketStatus{
		UserID:            identity.UserID,
		ActiveConnections: s.gateway.Stats().OpenConnections,
	}
	if conn, ok := s.registry.Lookup(identity.UserID); ok {
		id := conn.ID()
		status.SocketConnected = true
		status.SocketID = &id
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleTestSocket pushes a test event to the caller's own socket.
func (s *Server) HandleTestSocket(w http.ResponseWriter, _ *http.Request, identity Identity) {
	evt, err := newEvent(EventTest, testPayload{Message: "Test message from server", Timestamp: time.Now().UTC()})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !s.gateway.SendToUser(identity.UserID, evt) {
		writeJSON(w, http.StatusBadRequest, debugReply{Success: false, Message: "User socket not connected"})
		return
	}
	writeJSON(w, http.StatusOK, debugReply{Success: true, Message: "Test message sent"})
}
