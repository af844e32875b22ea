package internal

import "log/slog"

// Broadcaster sends full-state events to a set of connections. It is driven
// from the gateway loop and never blocks.
type Broadcaster struct {
	log      *slog.Logger
	registry *Registry
	metrics  *Metrics
}

func NewBroadcaster(log *slog.Logger, registry *Registry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, metrics: metrics}
}

// BroadcastPresence sends the complete online id set to every target and
// returns the targets whose buffer was full.
func (b *Broadcaster) BroadcastPresence(targets []*Conn) []*Conn {
	evt, err := OnlineUsersEvent(b.registry.SnapshotIDs())
	if err != nil {
		b.log.Error("build presence snapshot failed", "error", err)
		return nil
	}
	payload, err := evt.encode()
	if err != nil {
		b.log.Error("encode presence snapshot failed", "error", err)
		return nil
	}
	b.metrics.IncPresenceBroadcast()
	_, slow := b.fanout(targets, payload)
	return slow
}

func (b *Broadcaster) fanout(targets []*Conn, payload []byte) (int, []*Conn) {
	accepted := 0
	var slow []*Conn
	for _, conn := range targets {
		ok, full := conn.enqueue(payload)
		if ok {
			accepted++
		}
		if full {
			slow = append(slow, conn)
		}
	}
	return accepted, slow
}
