package internal

import (
	"encoding/json"
	"time"

	"chatline/internal/storage"
)

// Event names pushed over the socket. They match what the web client listens for.
const (
	EventOnlineUsers    = "getOnlineUsers"
	EventNewMessage     = "newMessage"
	EventProfileUpdated = "profileUpdated"
	EventTest           = "test"
)

// Message is the wire form of a persisted chat message.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func messageFromStorage(m storage.Message) Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		CreatedAt:  m.CreatedAt,
	}
}

// Event is the envelope every server -> client frame uses.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// ProfileUpdate is the payload of a profileUpdated event.
type ProfileUpdate struct {
	UserID         string     `json:"userId"`
	NewProfileData profileDTO `json:"newProfileData"`
}

type testPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

// NewMessageEvent wraps a message for live delivery.
func NewMessageEvent(msg Message) (Event, error) {
	return newEvent(EventNewMessage, msg)
}

// OnlineUsersEvent carries the full set of online ids.
func OnlineUsersEvent(ids []string) (Event, error) {
	if ids == nil {
		ids = []string{}
	}
	return newEvent(EventOnlineUsers, ids)
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
