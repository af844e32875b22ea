package internal

import "log/slog"

// Sender is the send primitive the dispatcher needs from the gateway.
type Sender interface {
	SendToUser(userID string, evt Event) bool
}

// Delivery reports which live pushes landed. It is informational only:
// the message is already durable when Dispatch runs.
type Delivery struct {
	Receiver bool
	Sender   bool
}

// Dispatcher pushes freshly persisted messages to whoever is online.
type Dispatcher struct {
	log     *slog.Logger
	sender  Sender
	metrics *Metrics
}

func NewDispatcher(log *slog.Logger, sender Sender, metrics *Metrics) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Dispatcher{log: log, sender: sender, metrics: metrics}
}

// Dispatch must only be called once msg is committed. The receiver push and
// the sender echo are independent best-effort attempts; neither is retried.
func (d *Dispatcher) Dispatch(msg Message) Delivery {
	evt, err := NewMessageEvent(msg)
	if err != nil {
		d.log.Error("encode message event failed", "message_id", msg.ID, "error", err)
		return Delivery{}
	}

	var delivery Delivery
	delivery.Receiver = d.sender.SendToUser(msg.ReceiverID, evt)
	d.metrics.ObserveDelivery(delivery.Receiver)
	if msg.SenderID != msg.ReceiverID {
		delivery.Sender = d.sender.SendToUser(msg.SenderID, evt)
	} else {
		delivery.Sender = delivery.Receiver
	}

	if !delivery.Receiver {
		d.log.Debug("receiver offline, message left for fetch", "message_id", msg.ID, "user_id", msg.ReceiverID)
	}
	return delivery
}
