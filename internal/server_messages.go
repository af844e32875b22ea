package internal

import (
	"errors"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"chatline/internal/storage"
)

type sidebarUserDTO struct {
	userDTO
	Online bool `json:"online"`
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// HandleSidebarUsers lists every other user with their current presence.
func (s *Server) HandleSidebarUsers(w http.ResponseWriter, r *http.Request, identity Identity) {
	users, err := s.store.ListUsersExcept(r.Context(), identity.UserID)
	if err != nil {
		s.log.Error("list users failed", "user_id", identity.UserID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := lo.Map(users, func(u storage.User, _ int) sidebarUserDTO {
		return sidebarUserDTO{userDTO: toUserDTO(u), Online: s.registry.Online(u.ID)}
	})
	writeJSON(w, http.StatusOK, out)
}

// HandleConversation returns the history between the caller and {id},
// oldest first.
func (s *Server) HandleConversation(w http.ResponseWriter, r *http.Request, identity Identity) {
	peerID := strings.TrimSpace(r.PathValue("id"))
	if peerID == "" {
		writeMessage(w, http.StatusBadRequest, "user id is required")
		return
	}
	messages, err := s.store.FindConversation(r.Context(), identity.UserID, peerID)
	if err != nil {
		s.log.Error("load conversation failed", "user_id", identity.UserID, "peer_id", peerID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m storage.Message, _ int) Message {
		return messageFromStorage(m)
	}))
}

// HandleSendMessage persists a message to {id} and then pushes it live.
// The reply reflects persistence only; live delivery is best effort.
func (s *Server) HandleSendMessage(w http.ResponseWriter, r *http.Request, identity Identity) {
	receiverID := strings.TrimSpace(r.PathValue("id"))
	if receiverID == "" {
		writeMessage(w, http.StatusBadRequest, "receiver id is required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, dataURLLimit(s.maxImageBytes))
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeBodyError(w, err)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.Image == "" {
		writeMessage(w, http.StatusBadRequest, "message needs text or image")
		return
	}

	receiver, err := s.store.GetUserByID(r.Context(), receiverID)
	if err != nil {
		s.log.Error("load receiver failed", "receiver_id", receiverID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if receiver == nil {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}

	var imageURL string
	if req.Image != "" {
		url, ok := s.uploadImage(w, r, req.Image)
		if !ok {
			return
		}
		imageURL = url
	}

	stored, err := s.store.AppendMessage(r.Context(), storage.Message{
		SenderID:   identity.UserID,
		ReceiverID: receiver.ID,
		Text:       req.Text,
		Image:      imageURL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmptyMessage) {
			writeMessage(w, http.StatusBadRequest, "message needs text or image")
			return
		}
		s.log.Error("store message failed", "sender_id", identity.UserID, "receiver_id", receiver.ID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.metrics.IncMessageStored()

	msg := messageFromStorage(stored)
	s.dispatcher.Dispatch(msg)
	writeJSON(w, http.StatusCreated, msg)
}
