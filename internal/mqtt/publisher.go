package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/pretty"

	"github.com/nugget/trunk-status/internal/config"
	"github.com/nugget/trunk-status/internal/document"
	"github.com/nugget/trunk-status/internal/events"
)

// Session is the part of [Manager] a [Publisher] needs.
type Session interface {
	State() State
	Publish(msg Message) error
}

// Publisher wraps status documents in the envelope and publishes them
// below a base topic.
type Publisher struct {
	session Session
	topic   string
	pretty  bool
	bus     *events.Bus
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher creates a Publisher for the topic and payload format of
// cfg. bus may be nil.
func NewPublisher(session Session, cfg config.MQTTConfig, bus *events.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		session: session,
		topic:   cfg.Topic,
		pretty:  strings.EqualFold(cfg.PayloadFormat, config.PayloadPretty),
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// Envelope builds the message published for doc:
// {field: doc, "type": messageType, "timestamp": unix seconds}.
func Envelope(doc any, field, messageType string, at time.Time) *document.Object {
	return document.NewObject().
		Put(field, doc).
		Put("type", messageType).
		Put("timestamp", at.Unix())
}

// Send publishes doc as messageType under field. Failures are logged;
// the result is always 0.
func (p *Publisher) Send(doc any, field, messageType string) int {
	p.Dispatch(func() any { return doc }, field, messageType)
	return 0
}

// Dispatch publishes the document build returns as messageType under
// field. The session state is read once: while it is not Open, build is
// never called and the message is dropped. Dispatch reports whether the
// session accepted the message.
func (p *Publisher) Dispatch(build func() any, field, messageType string) bool {
	state := p.session.State()
	if state != StateOpen {
		p.logger.Debug("mqtt message dropped", "type", messageType, "state", state.String())
		p.emit(events.KindDropped, map[string]any{"type": messageType, "state": state.String()})
		return false
	}

	payload, err := json.Marshal(Envelope(build(), field, messageType, p.now()))
	if err != nil {
		p.logger.Error("mqtt encode envelope", "type", messageType, "error", err)
		return false
	}
	if p.pretty {
		payload = pretty.Pretty(payload)
	}

	topic := ResolveTopic(p.topic, messageType)
	p.logger.Log(context.Background(), config.LevelTrace, "mqtt publish", "topic", topic, "payload", string(payload))

	if err := p.session.Publish(Message{Topic: topic, Payload: payload, QoS: QoS}); err != nil {
		if errors.Is(err, ErrNotOpen) {
			p.logger.Debug("mqtt message dropped", "type", messageType, "error", err)
			p.emit(events.KindDropped, map[string]any{"type": messageType, "state": p.session.State().String()})
			return false
		}
		p.logger.Error("mqtt publish failed", "topic", topic, "error", err)
		return false
	}

	p.emit(events.KindPublished, map[string]any{"type": messageType, "topic": topic, "bytes": len(payload)})
	return true
}

func (p *Publisher) emit(kind string, data map[string]any) {
	p.bus.Publish(events.NewEvent(events.SourcePublisher, kind, data))
}
