package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	signups            atomic.Uint64
	logins             atomic.Uint64
	activeConns        atomic.Int64
	messagesStored     atomic.Uint64
	deliveriesLive     atomic.Uint64
	deliveriesMissed   atomic.Uint64
	presenceBroadcasts atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSignup() {
	m.signups.Add(1)
}

func (m *Metrics) IncLogin() {
	m.logins.Add(1)
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncMessageStored() {
	m.messagesStored.Add(1)
}

func (m *Metrics) IncPresenceBroadcast() {
	m.presenceBroadcasts.Add(1)
}

// ObserveDelivery counts a receiver push as live or missed.
func (m *Metrics) ObserveDelivery(live bool) {
	if live {
		m.deliveriesLive.Add(1)
		return
	}
	m.deliveriesMissed.Add(1)
}

func (m *Metrics) snapshot() map[string]any {
	return map[string]any{
		"signups_total":             m.signups.Load(),
		"logins_total":              m.logins.Load(),
		"active_connections":        m.activeConns.Load(),
		"messages_stored_total":     m.messagesStored.Load(),
		"deliveries_live_total":     m.deliveriesLive.Load(),
		"deliveries_missed_total":   m.deliveriesMissed.Load(),
		"presence_broadcasts_total": m.presenceBroadcasts.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.snapshot())
}
