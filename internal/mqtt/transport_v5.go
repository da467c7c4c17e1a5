package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// V5Transport speaks MQTT 5 through Paho v2's [autopaho] connection
// manager, which reconnects with [ConnectOptions.Backoff] after the
// initial handshake.
type V5Transport struct {
	logger *slog.Logger

	mu       sync.Mutex
	cm       *autopaho.ConnectionManager
	cancel   context.CancelFunc
	notifier Notifier
}

// NewV5Transport creates an unconnected MQTT 5 transport.
func NewV5Transport(logger *slog.Logger) *V5Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &V5Transport{logger: logger}
}

// clientConfig translates opts into an autopaho configuration.
func (t *V5Transport) clientConfig(opts ConnectOptions, n Notifier) (autopaho.ClientConfig, error) {
	brokerURL, err := url.Parse(opts.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse broker URL: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     uint16(opts.KeepAlive / time.Second),
		CleanStartOnInitialConnection: opts.CleanSession,
		ConnectTimeout:                opts.ConnectTimeout,
		ReconnectBackoff: func(attempt int) time.Duration {
			if attempt > 0 {
				n.Reconnecting(attempt)
			}
			return opts.Backoff.Delay(attempt)
		},
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			n.ConnectionUp()
		},
		OnConnectError: func(err error) {
			t.logger.Debug("mqtt v5 connect attempt failed", "broker", opts.Broker, "error", err)
			n.ReconnectFailed(0, err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: opts.ClientID,
			OnClientError: func(err error) {
				n.ConnectionLost(err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				n.ConnectionLost(fmt.Errorf("server disconnect, reason code %d", d.ReasonCode))
			},
		},
	}

	if opts.Credentials() {
		cfg.ConnectUsername = opts.Username
		cfg.ConnectPassword = []byte(opts.Password)
	}
	if opts.Will != nil {
		cfg.WillMessage = &paho.WillMessage{
			Topic:   opts.Will.Topic,
			Payload: opts.Will.Payload,
			QoS:     opts.Will.QoS,
			Retain:  opts.Will.Retained,
		}
	}
	if opts.TLS {
		cfg.TlsCfg = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // brokers commonly use self-signed certificates
	}
	return cfg, nil
}

// Connect implements [Transport]. autopaho retries the initial
// connection forever, so a failed handshake cancels its context.
func (t *V5Transport) Connect(ctx context.Context, opts ConnectOptions, n Notifier) error {
	cfg, err := t.clientConfig(opts, n)
	if err != nil {
		return err
	}

	// The session outlives ctx, which only bounds the handshake.
	runCtx, cancel := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(runCtx, cfg)
	if err != nil {
		cancel()
		return err
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		cancel()
		<-cm.Done()
		return err
	}

	t.mu.Lock()
	t.cm = cm
	t.cancel = cancel
	t.notifier = n
	t.mu.Unlock()
	return nil
}

// Publish implements [Transport]. The acknowledgment is awaited in a
// separate goroutine for at most [DeliveryTimeout].
func (t *V5Transport) Publish(msg Message) error {
	t.mu.Lock()
	cm, n := t.cm, t.notifier
	t.mu.Unlock()
	if cm == nil {
		return errors.New("v5 transport not connected")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DeliveryTimeout)
		defer cancel()
		_, err := cm.Publish(ctx, &paho.Publish{
			Topic:   msg.Topic,
			QoS:     msg.QoS,
			Retain:  msg.Retained,
			Payload: msg.Payload,
		})
		if err != nil {
			n.DeliveryFailed(msg.Topic, err)
			return
		}
		n.DeliveryComplete(msg.Topic, 0)
	}()
	return nil
}

// Disconnect implements [Transport]. Calling it more than once is safe.
func (t *V5Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	cm, cancel := t.cm, t.cancel
	t.cm, t.cancel = nil, nil
	t.mu.Unlock()

	if cm == nil {
		return nil
	}
	defer cancel()
	if err := cm.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mqtt v5 disconnect: %w", err)
	}
	return nil
}

var _ Transport = (*V5Transport)(nil)
