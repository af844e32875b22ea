package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestGateway_ConnectBroadcastsSnapshot(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	conn := newConn("u1", nil)

	// When u1 connects
	req.NoError(g.Connect(conn))

	// Then its handle is open and it sees itself online
	req.Equal(StateOpen, conn.State())
	req.Equal([]string{"u1"}, nextOnlineUsers(t, conn))
	req.Empty(conn.send)
	req.Equal(GatewayStats{OpenConnections: 1, OnlineUsers: 1}, g.Stats())
}

func TestGateway_TwoUserConversation(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	dispatcher := NewDispatcher(testLogger(), g, nil)
	u1 := newConn("u1", nil)
	u2 := newConn("u2", nil)

	// Given u1 then u2 connect
	req.NoError(g.Connect(u1))
	req.Equal([]string{"u1"}, nextOnlineUsers(t, u1))
	req.NoError(g.Connect(u2))

	// Then both receive the full online set
	req.Equal([]string{"u1", "u2"}, nextOnlineUsers(t, u1))
	req.Equal([]string{"u1", "u2"}, nextOnlineUsers(t, u2))

	// When u1 sends "hi" to u2
	msg := Message{ID: uuid.NewString(), SenderID: "u1", ReceiverID: "u2", Text: "hi", CreatedAt: time.Now().UTC()}
	delivery := dispatcher.Dispatch(msg)

	// Then both sides see the same message once
	req.Equal(Delivery{Receiver: true, Sender: true}, delivery)
	req.Equal(msg, nextMessage(t, u2))
	req.Equal(msg, nextMessage(t, u1))
	req.Empty(u1.send)
	req.Empty(u2.send)

	// When u2 leaves
	req.True(g.Disconnect(u2))

	// Then u1 is told only it remains and u2's queue is closed
	req.Equal([]string{"u1"}, nextOnlineUsers(t, u1))
	req.Equal(StateClosed, u2.State())
	_, open := <-u2.send
	req.False(open)
	req.False(g.Registry().Online("u2"))
}

func TestGateway_StaleDisconnectKeepsNewerHandle(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	a := newConn("u1", nil)
	b := newConn("u1", nil)

	// Given u1 connected twice
	req.NoError(g.Connect(a))
	req.NoError(g.Connect(b))
	req.Equal([]string{"u1"}, nextOnlineUsers(t, a))
	req.Equal([]string{"u1"}, nextOnlineUsers(t, a))
	req.Equal([]string{"u1"}, nextOnlineUsers(t, b))

	// When the older handle disconnects
	removed := g.Disconnect(a)

	// Then the newer one stays registered and nobody gets a broadcast
	req.False(removed)
	got, ok := g.Registry().Lookup("u1")
	req.True(ok)
	req.Same(b, got)
	req.Empty(b.send)
	req.Equal(StateClosed, a.State())
	req.Equal(GatewayStats{OpenConnections: 1, OnlineUsers: 1}, g.Stats())
}

func TestGateway_DisconnectTwice(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	conn := newConn("u1", nil)
	req.NoError(g.Connect(conn))

	req.True(g.Disconnect(conn))
	req.False(g.Disconnect(conn))
	req.Equal(GatewayStats{}, g.Stats())
}

func TestGateway_SendToOfflineUser(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	dispatcher := NewDispatcher(testLogger(), g, nil)
	sender := newConn("u1", nil)
	req.NoError(g.Connect(sender))
	nextOnlineUsers(t, sender)

	// When u1 writes to an absent user
	msg := Message{ID: "m1", SenderID: "u1", ReceiverID: "ghost", Text: "anyone?", CreatedAt: time.Now().UTC()}
	delivery := dispatcher.Dispatch(msg)

	// Then only the echo lands
	req.Equal(Delivery{Receiver: false, Sender: true}, delivery)
	req.Equal(msg, nextMessage(t, sender))
	req.Empty(sender.send)
}

func TestGateway_SelfMessageDeliveredOnce(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	dispatcher := NewDispatcher(testLogger(), g, nil)
	conn := newConn("u1", nil)
	req.NoError(g.Connect(conn))
	nextOnlineUsers(t, conn)

	msg := Message{ID: "m1", SenderID: "u1", ReceiverID: "u1", Text: "note to self", CreatedAt: time.Now().UTC()}
	delivery := dispatcher.Dispatch(msg)

	req.Equal(Delivery{Receiver: true, Sender: true}, delivery)
	req.Equal(msg, nextMessage(t, conn))
	req.Empty(conn.send)
}

func TestGateway_SlowConsumerIsDropped(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	slow := &Conn{id: uuid.NewString(), userID: "slow", send: make(chan []byte, 1), state: StateConnecting}
	fast := newConn("fast", nil)

	// Given a peer whose queue is already full after its own snapshot
	req.NoError(g.Connect(slow))

	// When another user connects
	req.NoError(g.Connect(fast))

	// Then the slow peer is disconnected and the others see it leave
	req.Equal(StateClosed, slow.State())
	req.False(g.Registry().Online("slow"))
	req.Equal([]string{"fast", "slow"}, nextOnlineUsers(t, fast))
	req.Equal([]string{"fast"}, nextOnlineUsers(t, fast))
	req.Equal(GatewayStats{OpenConnections: 1, OnlineUsers: 1}, g.Stats())
}

func TestGateway_BroadcastReachesSupersededHandles(t *testing.T) {
	req := require.New(t)
	g := startGateway(t)
	a := newConn("u1", nil)
	b := newConn("u1", nil)
	req.NoError(g.Connect(a))
	req.NoError(g.Connect(b))
	drain(a)
	drain(b)

	profile := profileDTO{Fullname: "User One", ProfilePic: "/uploads/p.png"}
	accepted := g.BroadcastProfile("u1", profile)

	req.Equal(2, accepted)
	for _, conn := range []*Conn{a, b} {
		evt := nextEvent(t, conn)
		req.Equal(EventProfileUpdated, evt.Name)
		var update ProfileUpdate
		req.NoError(json.Unmarshal(evt.Data, &update))
		req.Equal(ProfileUpdate{UserID: "u1", NewProfileData: profile}, update)
	}
}

func TestGateway_StoppedRejectsWork(t *testing.T) {
	req := require.New(t)
	g := NewGateway(testLogger(), NewRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	conn := newConn("u1", nil)
	go g.Run(ctx)
	req.NoError(g.Connect(conn))

	// When the loop stops
	cancel()
	<-g.stopped

	// Then open handles are closed and new work is refused
	req.Equal(StateClosed, conn.State())
	req.ErrorIs(g.Connect(newConn("u2", nil)), ErrGatewayStopped)
	req.False(g.Disconnect(conn))
	req.Zero(g.Broadcast(Event{Name: EventTest, Data: json.RawMessage(`{}`)}))
	req.Equal(GatewayStats{}, g.Stats())
	req.Zero(g.Registry().Len())
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func startGateway(t *testing.T) *Gateway {
	t.Helper()
	g := NewGateway(testLogger(), NewRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-g.stopped
	})
	return g
}

func nextEvent(t *testing.T, conn *Conn) Event {
	t.Helper()
	select {
	case payload, ok := <-conn.send:
		require.True(t, ok, "send queue closed")
		var evt Event
		require.NoError(t, json.Unmarshal(payload, &evt))
		return evt
	case <-time.After(time.Second):
		require.FailNow(t, "no event received", "user %s", conn.UserID())
	}
	return Event{}
}

func nextOnlineUsers(t *testing.T, conn *Conn) []string {
	t.Helper()
	evt := nextEvent(t, conn)
	require.Equal(t, EventOnlineUsers, evt.Name)
	var ids []string
	require.NoError(t, json.Unmarshal(evt.Data, &ids))
	return ids
}

func nextMessage(t *testing.T, conn *Conn) Message {
	t.Helper()
	evt := nextEvent(t, conn)
	require.Equal(t, EventNewMessage, evt.Name)
	var msg Message
	require.NoError(t, json.Unmarshal(evt.Data, &msg))
	return msg
}

func drain(conn *Conn) {
	for {
		select {
		case <-conn.send:
		default:
			return
		}
	}
}
