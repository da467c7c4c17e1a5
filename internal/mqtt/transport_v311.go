package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// disconnectQuiesce is how long the v3.1.1 client waits for in-flight
// work when disconnecting, in milliseconds.
const disconnectQuiesce = 250

var errDeliveryTimeout = errors.New("no acknowledgment within delivery timeout")

// V311Transport speaks MQTT 3.1.1 through the Eclipse Paho Go client.
// Paho's own auto-reconnect is disabled; the transport runs its own
// reconnect loop so the delays follow [ConnectOptions.Backoff].
type V311Transport struct {
	logger *slog.Logger

	mu       sync.Mutex
	client   pahomqtt.Client
	opts     ConnectOptions
	notifier Notifier
	stop     chan struct{}
}

// NewV311Transport creates an unconnected v3.1.1 transport.
func NewV311Transport(logger *slog.Logger) *V311Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &V311Transport{logger: logger}
}

// clientOptions translates opts into Paho client options.
func (t *V311Transport) clientOptions(opts ConnectOptions, n Notifier) *pahomqtt.ClientOptions {
	co := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetProtocolVersion(4).
		SetCleanSession(opts.CleanSession).
		SetKeepAlive(opts.KeepAlive).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false)

	if opts.Credentials() {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	if opts.Will != nil {
		co.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}
	if opts.TLS {
		co.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // brokers commonly use self-signed certificates
	}

	co.SetOnConnectHandler(func(pahomqtt.Client) {
		n.ConnectionUp()
	})
	co.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		n.ConnectionLost(err)
		go t.reconnect(c)
	})
	return co
}

// Connect implements [Transport].
func (t *V311Transport) Connect(ctx context.Context, opts ConnectOptions, n Notifier) error {
	client := pahomqtt.NewClient(t.clientOptions(opts, n))

	tok := client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return err
	}

	t.mu.Lock()
	t.client = client
	t.opts = opts
	t.notifier = n
	t.stop = make(chan struct{})
	t.mu.Unlock()
	return nil
}

// reconnect retries the handshake with the configured backoff until it
// succeeds or Disconnect is called.
func (t *V311Transport) reconnect(c pahomqtt.Client) {
	t.mu.Lock()
	stop, opts, n := t.stop, t.opts, t.notifier
	t.mu.Unlock()
	if stop == nil {
		return
	}

	for attempt := 1; ; attempt++ {
		delay := opts.Backoff.Delay(attempt)
		t.logger.Debug("mqtt v3.1.1 reconnect scheduled", "attempt", attempt, "delay", delay)
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}

		n.Reconnecting(attempt)
		tok := c.Connect()
		select {
		case <-stop:
			return
		case <-tok.Done():
		}
		if err := tok.Error(); err != nil {
			n.ReconnectFailed(attempt, err)
			continue
		}
		return
	}
}

// Publish implements [Transport]. The acknowledgment is awaited in a
// separate goroutine for at most [DeliveryTimeout].
func (t *V311Transport) Publish(msg Message) error {
	t.mu.Lock()
	client, n := t.client, t.notifier
	t.mu.Unlock()
	if client == nil {
		return errors.New("v3.1.1 transport not connected")
	}

	tok := client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	go func() {
		if !tok.WaitTimeout(DeliveryTimeout) {
			n.DeliveryFailed(msg.Topic, errDeliveryTimeout)
			return
		}
		if err := tok.Error(); err != nil {
			n.DeliveryFailed(msg.Topic, err)
			return
		}
		var id uint16
		if pt, ok := tok.(*pahomqtt.PublishToken); ok {
			id = pt.MessageID()
		}
		n.DeliveryComplete(msg.Topic, id)
	}()
	return nil
}

// Disconnect implements [Transport]. Calling it more than once is safe.
func (t *V311Transport) Disconnect(context.Context) error {
	t.mu.Lock()
	client, stop := t.client, t.stop
	t.client, t.stop = nil, nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if client == nil {
		return nil
	}
	if !client.IsConnectionOpen() {
		return nil
	}
	client.Disconnect(disconnectQuiesce)
	return nil
}

var _ Transport = (*V311Transport)(nil)
