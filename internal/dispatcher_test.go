package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	online map[string]bool
	sent   []string
}

func (r *recordingSender) SendToUser(userID string, evt Event) bool {
	r.sent = append(r.sent, userID+":"+evt.Name)
	return r.online[userID]
}

func TestDispatcher_ReceiverThenEcho(t *testing.T) {
	req := require.New(t)
	sender := &recordingSender{online: map[string]bool{"alice": true, "bob": true}}
	metrics := NewMetrics()
	dispatcher := NewDispatcher(testLogger(), sender, metrics)

	delivery := dispatcher.Dispatch(Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi"})

	req.Equal(Delivery{Receiver: true, Sender: true}, delivery)
	req.Equal([]string{"bob:newMessage", "alice:newMessage"}, sender.sent)
	req.EqualValues(1, metrics.deliveriesLive.Load())
}

func TestDispatcher_OfflineReceiverCountsMiss(t *testing.T) {
	req := require.New(t)
	sender := &recordingSender{online: map[string]bool{"alice": true}}
	metrics := NewMetrics()
	dispatcher := NewDispatcher(testLogger(), sender, metrics)

	delivery := dispatcher.Dispatch(Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi"})

	req.Equal(Delivery{Receiver: false, Sender: true}, delivery)
	req.EqualValues(1, metrics.deliveriesMissed.Load())
	req.Zero(metrics.deliveriesLive.Load())
}

func TestDispatcher_SelfMessageSentOnce(t *testing.T) {
	req := require.New(t)
	sender := &recordingSender{online: map[string]bool{"alice": true}}
	dispatcher := NewDispatcher(testLogger(), sender, nil)

	delivery := dispatcher.Dispatch(Message{ID: "m1", SenderID: "alice", ReceiverID: "alice", Image: "/uploads/a.png"})

	req.Equal(Delivery{Receiver: true, Sender: true}, delivery)
	req.Equal([]string{"alice:newMessage"}, sender.sent)
}
