package internal

import (
	"context"
	"errors"
	"log/slog"
)

// ErrGatewayStopped is returned when a connection arrives after Run returned.
var ErrGatewayStopped = errors.New("gateway stopped")

type connRequest struct {
	conn  *Conn
	reply chan bool
}

type deliveryRequest struct {
	userID  string
	payload []byte
	reply   chan bool
}

type broadcastRequest struct {
	payload []byte
	reply   chan int
}

// GatewayStats is a point-in-time view of the gateway.
type GatewayStats struct {
	OpenConnections int
	OnlineUsers     int
}

// Gateway owns every live connection. All registry mutations, presence
// broadcasts and sends run on the single goroutine started by Run, so a
// mutation and the broadcast it triggers are never interleaved with another.
type Gateway struct {
	log         *slog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	metrics     *Metrics

	// open is only touched by the Run goroutine.
	open map[*Conn]struct{}

	register   chan connRequest
	unregister chan connRequest
	deliver    chan deliveryRequest
	broadcast  chan broadcastRequest
	stats      chan chan GatewayStats
	stopped    chan struct{}
}

func NewGateway(log *slog.Logger, registry *Registry, metrics *Metrics) *Gateway {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Gateway{
		log:         log,
		registry:    registry,
		broadcaster: NewBroadcaster(log, registry, metrics),
		metrics:     metrics,
		open:        make(map[*Conn]struct{}),
		register:    make(chan connRequest),
		unregister:  make(chan connRequest),
		deliver:     make(chan deliveryRequest),
		broadcast:   make(chan broadcastRequest),
		stats:       make(chan chan GatewayStats),
		stopped:     make(chan struct{}),
	}
}

// Registry exposes the presence registry for read-only callers.
func (g *Gateway) Registry() *Registry { return g.registry }

// Run processes connection events until ctx is cancelled, then closes
// every open connection.
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.stopped)
	for {
		select {
		case req := <-g.register:
			g.handleConnect(req.conn)
			req.reply <- true
		case req := <-g.unregister:
			req.reply <- g.handleDisconnect(req.conn)
		case req := <-g.deliver:
			req.reply <- g.handleDeliver(req.userID, req.payload)
		case req := <-g.broadcast:
			req.reply <- g.handleBroadcast(req.payload)
		case reply := <-g.stats:
			reply <- GatewayStats{OpenConnections: len(g.open), OnlineUsers: g.registry.Len()}
		case <-ctx.Done():
			g.shutdown()
			return
		}
	}
}

// Connect opens conn and registers it for its identity, replacing any
// previous handle for that identity.
func (g *Gateway) Connect(conn *Conn) error {
	req := connRequest{conn: conn, reply: make(chan bool, 1)}
	select {
	case g.register <- req:
		<-req.reply
		return nil
	case <-g.stopped:
		return ErrGatewayStopped
	}
}

// Disconnect closes conn. It reports whether the registry entry was removed;
// false means conn had already been replaced or closed.
func (g *Gateway) Disconnect(conn *Conn) bool {
	req := connRequest{conn: conn, reply: make(chan bool, 1)}
	select {
	case g.unregister <- req:
		return <-req.reply
	case <-g.stopped:
		return false
	}
}

// SendToUser pushes evt to the live connection of userID. An absent or
// closed connection is reported as false, never as an error.
func (g *Gateway) SendToUser(userID string, evt Event) bool {
	payload, err := evt.encode()
	if err != nil {
		g.log.Error("encode event failed", "event", evt.Name, "error", err)
		return false
	}
	req := deliveryRequest{userID: userID, payload: payload, reply: make(chan bool, 1)}
	select {
	case g.deliver <- req:
		return <-req.reply
	case <-g.stopped:
		return false
	}
}

// Broadcast pushes evt to every open connection and returns how many
// accepted it.
func (g *Gateway) Broadcast(evt Event) int {
	payload, err := evt.encode()
	if err != nil {
		g.log.Error("encode event failed", "event", evt.Name, "error", err)
		return 0
	}
	req := broadcastRequest{payload: payload, reply: make(chan int, 1)}
	select {
	case g.broadcast <- req:
		return <-req.reply
	case <-g.stopped:
		return 0
	}
}

func (g *Gateway) Stats() GatewayStats {
	reply := make(chan GatewayStats, 1)
	select {
	case g.stats <- reply:
		return <-reply
	case <-g.stopped:
		return GatewayStats{}
	}
}

func (g *Gateway) handleConnect(conn *Conn) {
	conn.open()
	g.open[conn] = struct{}{}
	g.registry.Register(conn.UserID(), conn)
	g.metrics.IncConn()
	g.log.Info("user connected", "user_id", conn.UserID(), "conn_id", conn.ID())
	g.dropSlow(g.broadcaster.BroadcastPresence(g.openConns()))
}

func (g *Gateway) handleDisconnect(conn *Conn) bool {
	if _, ok := g.open[conn]; !ok {
		return false
	}
	delete(g.open, conn)
	conn.markClosed()
	g.metrics.DecConn()
	removed := g.registry.Unregister(conn.UserID(), conn)
	g.log.Info("user disconnected", "user_id", conn.UserID(), "conn_id", conn.ID())
	if removed {
		g.dropSlow(g.broadcaster.BroadcastPresence(g.openConns()))
	}
	return removed
}

func (g *Gateway) handleDeliver(userID string, payload []byte) bool {
	conn, ok := g.registry.Lookup(userID)
	if !ok {
		return false
	}
	delivered, full := conn.enqueue(payload)
	if full {
		g.dropSlow([]*Conn{conn})
	}
	return delivered
}

func (g *Gateway) handleBroadcast(payload []byte) int {
	accepted, slow := g.broadcaster.fanout(g.openConns(), payload)
	g.dropSlow(slow)
	return accepted
}

// dropSlow disconnects peers whose send buffer overflowed; they are treated
// like a broken transport.
func (g *Gateway) dropSlow(conns []*Conn) {
	for _, conn := range conns {
		g.log.Warn("dropping slow connection", "user_id", conn.UserID(), "conn_id", conn.ID())
		g.handleDisconnect(conn)
	}
}

func (g *Gateway) openConns() []*Conn {
	conns := make([]*Conn, 0, len(g.open))
	for conn := range g.open {
		conns = append(conns, conn)
	}
	return conns
}

func (g *Gateway) shutdown() {
	for conn := range g.open {
		conn.markClosed()
		g.registry.Unregister(conn.UserID(), conn)
		g.metrics.DecConn()
		delete(g.open, conn)
	}
	g.log.Info("gateway stopped")
}

// BroadcastProfile tells every open connection that userID changed profile.
func (g *Gateway) BroadcastProfile(userID string, profile profileDTO) int {
	evt, err := newEvent(EventProfileUpdated, ProfileUpdate{UserID: userID, NewProfileData: profile})
	if err != nil {
		g.log.Error("encode profile update failed", "user_id", userID, "error", err)
		return 0
	}
	return g.Broadcast(evt)
}
