package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/trunk-status/internal/config"
	"github.com/nugget/trunk-status/internal/connwatch"
)

// QoS is the delivery level for every status envelope and the will.
const QoS byte = 1

// Will message registered with the broker on every session.
const (
	WillTopic   = "final"
	WillPayload = "Last will and testament."
)

// Message is one outbound MQTT publication.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectOptions describes a broker session independent of the MQTT
// protocol level.
type ConnectOptions struct {
	Broker   string
	ClientID string
	// Username and Password are sent only when both are non-empty.
	Username string
	Password string
	// TLS requests an encrypted transport without certificate
	// verification.
	TLS            bool
	CleanSession   bool
	Will           *Message
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Backoff        connwatch.BackoffConfig
}

// Credentials reports whether the session authenticates.
func (o ConnectOptions) Credentials() bool {
	return o.Username != "" && o.Password != ""
}

// OptionsFromConfig builds the session options for cfg. clientID is the
// final client identifier (see [ClientID]).
func OptionsFromConfig(cfg config.MQTTConfig, clientID string) ConnectOptions {
	opts := ConnectOptions{
		Broker:       cfg.Broker,
		ClientID:     clientID,
		TLS:          cfg.TLS(),
		CleanSession: true,
		Will: &Message{
			Topic:   WillTopic,
			Payload: []byte(WillPayload),
			QoS:     QoS,
		},
		KeepAlive:      time.Duration(cfg.KeepAliveSec) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		Backoff: connwatch.ReconnectBackoff(
			time.Duration(cfg.Reconnect.InitialSec)*time.Second,
			time.Duration(cfg.Reconnect.MaxSec)*time.Second,
		),
	}
	if cfg.Credentials() {
		opts.Username = cfg.Username
		opts.Password = cfg.Password
	}
	return opts
}

// Notifier receives asynchronous session events from a [Transport].
// Methods are called from transport goroutines and must not block.
type Notifier interface {
	// ConnectionUp reports a completed handshake, initial or reconnect.
	ConnectionUp()
	// ConnectionLost reports that an established session dropped.
	ConnectionLost(cause error)
	// Reconnecting reports that reconnect attempt number attempt is
	// about to start.
	Reconnecting(attempt int)
	// ReconnectFailed reports that a connection attempt failed.
	ReconnectFailed(attempt int, err error)
	// DeliveryComplete reports a broker acknowledgment for topic.
	DeliveryComplete(topic string, messageID uint16)
	// DeliveryFailed reports a publish that did not complete.
	DeliveryFailed(topic string, err error)
}

// Transport drives one broker session.
type Transport interface {
	// Connect performs the initial handshake and blocks until it
	// succeeds, fails, or ctx ends. On failure the transport must not
	// keep retrying. After success the transport reconnects on its own
	// and reports through n.
	Connect(ctx context.Context, opts ConnectOptions, n Notifier) error
	// Publish hands msg to the session and returns without waiting for
	// the acknowledgment, which is reported through the Notifier.
	Publish(msg Message) error
	// Disconnect ends the session and stops reconnecting.
	Disconnect(ctx context.Context) error
}

// NewTransport returns the transport for an MQTT protocol level
// ([config.ProtocolV311] or [config.ProtocolV5]).
func NewTransport(protocol string, logger *slog.Logger) (Transport, error) {
	switch protocol {
	case config.ProtocolV311, "":
		return NewV311Transport(logger), nil
	case config.ProtocolV5:
		return NewV5Transport(logger), nil
	default:
		return nil, fmt.Errorf("unsupported mqtt protocol %q", protocol)
	}
}
