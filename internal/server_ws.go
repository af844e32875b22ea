package internal

import (
	"errors"
	"net/http"
)

var errIdentityMismatch = errors.New("handshake userId does not match session")

// ServeWS upgrades the request and hands the connection to the gateway.
// The connection is registered under the identity resolved at handshake.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.handshakeIdentity(r)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, errIdentityMismatch) {
			status = http.StatusForbidden
		}
		s.log.Warn("socket handshake rejected", "remote", s.clientIP(r), "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied to the client
		s.log.Warn("socket upgrade failed", "user_id", userID, "error", err)
		return
	}

	conn := newConn(userID, ws)
	if err := s.gateway.Connect(conn); err != nil {
		s.log.Warn("socket refused", "user_id", userID, "error", err)
		_ = ws.Close()
		return
	}
	go conn.writePump()
	go conn.readPump(s.gateway)
}

func (s *Server) handshakeIdentity(r *http.Request) (string, error) {
	claimed := r.URL.Query().Get("userId")
	if s.trustHandshakeUserID {
		if claimed == "" {
			return "", ErrUnauthorized
		}
		return claimed, nil
	}
	identity, err := s.authenticateRequest(r)
	if err != nil {
		return "", err
	}
	if claimed != "" && claimed != identity.UserID {
		return "", errIdentityMismatch
	}
	return identity.UserID, nil
}
