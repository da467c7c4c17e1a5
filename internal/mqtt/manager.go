package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nugget/trunk-status/internal/events"
)

// DeliveryTimeout bounds how long a transport waits for the broker to
// acknowledge one publication before reporting it failed.
const DeliveryTimeout = 10 * time.Second

// ErrNotOpen is returned by [Manager.Publish] while the session is not
// Open.
var ErrNotOpen = errors.New("mqtt: connection not open")

// State is the lifecycle state of a broker session.
type State int32

const (
	// StateClosed means no session exists. Initial and terminal.
	StateClosed State = iota
	// StateOpening means a handshake is in progress, either the initial
	// one or a reconnect attempt.
	StateOpening
	// StateOpen means publications are sent.
	StateOpen
	// StateLost means the session dropped and the transport is
	// reconnecting.
	StateLost
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateLost:
		return "lost"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Manager owns the broker session and tracks its state. It implements
// [Notifier] for its transport. All methods are safe for concurrent use.
type Manager struct {
	opts      ConnectOptions
	transport Transport
	bus       *events.Bus
	logger    *slog.Logger

	state atomic.Int32
	// reconnecting is set while a reconnect attempt holds StateOpening.
	reconnecting atomic.Bool
}

// NewManager creates a Manager in [StateClosed]. bus may be nil.
func NewManager(opts ConnectOptions, transport Transport, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:      opts,
		transport: transport,
		bus:       bus,
		logger:    logger,
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsOpen reports whether publications are currently sent.
func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// Options returns the session options the manager connects with.
func (m *Manager) Options() ConnectOptions {
	return m.opts
}

// Open performs the initial handshake. It blocks until the broker
// accepts or rejects the session or until the connect timeout elapses.
// On failure the manager returns to [StateClosed] and does not retry.
func (m *Manager) Open(ctx context.Context) error {
	if !m.transition(StateClosed, StateOpening, nil) {
		return fmt.Errorf("mqtt: open while %s", m.State())
	}
	m.logger.Info("mqtt connecting", "broker", m.opts.Broker, "client_id", m.opts.ClientID,
		"tls", m.opts.TLS, "auth", m.opts.Credentials())

	connCtx := ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	if err := m.transport.Connect(connCtx, m.opts, m); err != nil {
		m.transition(StateOpening, StateClosed, err)
		m.logger.Error("mqtt connect failed", "broker", m.opts.Broker, "error", err)
		return fmt.Errorf("mqtt connect %s: %w", m.opts.Broker, err)
	}

	// ConnectionUp may already have moved the state on.
	m.transition(StateOpening, StateOpen, nil)
	if m.State() == StateClosed {
		// Closed while the handshake was in flight.
		return m.transport.Disconnect(ctx)
	}
	return nil
}

// Publish hands msg to the transport. It returns [ErrNotOpen] without
// touching the transport unless the session is Open.
func (m *Manager) Publish(msg Message) error {
	if !m.IsOpen() {
		return ErrNotOpen
	}
	if err := m.transport.Publish(msg); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Close ends the session. Notifications that arrive afterwards are
// ignored.
func (m *Manager) Close(ctx context.Context) error {
	prev := State(m.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}
	wasReconnecting := m.reconnecting.Swap(false)
	m.logger.Info("mqtt disconnecting", "broker", m.opts.Broker, "from", prev.String())
	m.emit(events.KindStateChange, map[string]any{"from": prev.String(), "to": StateClosed.String()})
	if prev == StateOpening && !wasReconnecting {
		// Open will disconnect once its handshake returns.
		return nil
	}
	return m.transport.Disconnect(ctx)
}

// Probe reports whether the session is Open. It is a connwatch probe.
func (m *Manager) Probe(context.Context) error {
	if s := m.State(); s != StateOpen {
		return fmt.Errorf("mqtt session %s", s)
	}
	return nil
}

// ConnectionUp implements [Notifier].
func (m *Manager) ConnectionUp() {
	if m.transition(StateOpening, StateOpen, nil) || m.transition(StateLost, StateOpen, nil) {
		m.reconnecting.Store(false)
		m.logger.Info("mqtt connected", "broker", m.opts.Broker)
	}
}

// ConnectionLost implements [Notifier].
func (m *Manager) ConnectionLost(cause error) {
	if m.transition(StateOpen, StateLost, cause) {
		m.logger.Warn("mqtt connection lost", "broker", m.opts.Broker, "cause", cause)
	}
}

// Reconnecting implements [Notifier].
func (m *Manager) Reconnecting(attempt int) {
	if m.transition(StateLost, StateOpening, nil) {
		m.reconnecting.Store(true)
	}
	m.logger.Info("mqtt reconnecting", "broker", m.opts.Broker, "attempt", attempt)
}

// ReconnectFailed implements [Notifier]. Failures of the initial
// handshake are reported by Open instead.
func (m *Manager) ReconnectFailed(attempt int, err error) {
	if !m.reconnecting.Load() {
		return
	}
	if m.transition(StateOpening, StateLost, err) {
		m.logger.Debug("mqtt reconnect failed", "broker", m.opts.Broker, "attempt", attempt, "error", err)
	}
}

// DeliveryComplete implements [Notifier].
func (m *Manager) DeliveryComplete(topic string, messageID uint16) {
	m.logger.Debug("mqtt delivery complete", "topic", topic, "message_id", messageID)
	m.emit(events.KindDelivered, map[string]any{"topic": topic, "message_id": messageID})
}

// DeliveryFailed implements [Notifier].
func (m *Manager) DeliveryFailed(topic string, err error) {
	m.logger.Warn("mqtt delivery failed", "topic", topic, "error", err)
	m.emit(events.KindDeliveryFailed, map[string]any{"topic": topic, "error": fmt.Sprint(err)})
}

// transition moves the state from one value to another and reports
// whether it did.
func (m *Manager) transition(from, to State, cause error) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	data := map[string]any{"from": from.String(), "to": to.String()}
	if cause != nil {
		data["cause"] = cause.Error()
	}
	m.logger.Debug("mqtt state change", "from", from.String(), "to", to.String())
	m.emit(events.KindStateChange, data)
	return true
}

func (m *Manager) emit(kind string, data map[string]any) {
	m.bus.Publish(events.NewEvent(events.SourceConnection, kind, data))
}

var _ Notifier = (*Manager)(nil)
