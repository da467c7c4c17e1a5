package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/trunk-status/internal/config"
	"github.com/nugget/trunk-status/internal/document"
	"github.com/nugget/trunk-status/internal/events"
)

var fixedNow = time.Unix(1700000000, 0)

func newTestPublisher(t *testing.T, cfg config.MQTTConfig) (*Publisher, *Manager, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	m := NewManager(OptionsFromConfig(cfg, "tr-status"), ft, nil, quietLogger())
	p := NewPublisher(m, cfg, nil, quietLogger())
	p.now = func() time.Time { return fixedNow }
	return p, m, ft
}

func TestPublisher_SendWhileClosed(t *testing.T) {
	cfg := config.DefaultMQTT()
	cfg.Topic = "tr"
	p, _, ft := newTestPublisher(t, cfg)

	if got := p.Send(document.NewObject(), "rates", "rates"); got != 0 {
		t.Errorf("Send() = %d, want 0", got)
	}
	if len(ft.messages()) != 0 {
		t.Errorf("transport got %d messages while closed", len(ft.messages()))
	}
}

func TestPublisher_Envelope(t *testing.T) {
	cfg := config.DefaultMQTT()
	cfg.Topic = "trunk/"
	p, m, ft := newTestPublisher(t, cfg)
	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	doc := document.NewObject().Put("id", "1_2_3").Put("freq", 851000000.0)
	p.Send(doc, "call", "call_start")

	msgs := ft.messages()
	if len(msgs) != 1 {
		t.Fatalf("transport got %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Topic != "trunk/call_start" {
		t.Errorf("topic = %q, want trunk/call_start", msg.Topic)
	}
	if msg.QoS != 1 || msg.Retained {
		t.Errorf("qos/retained = %d/%v, want 1/false", msg.QoS, msg.Retained)
	}

	want := `{"call":{"id":"1_2_3","freq":851000000},"type":"call_start","timestamp":1700000000}`
	if string(msg.Payload) != want {
		t.Errorf("payload =\n%s\nwant\n%s", msg.Payload, want)
	}
}

func TestPublisher_PrettyFormat(t *testing.T) {
	cfg := config.DefaultMQTT()
	cfg.Topic = "tr"
	cfg.PayloadFormat = config.PayloadPretty
	p, m, ft := newTestPublisher(t, cfg)
	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.Send(document.List{}, "systems", "systems")

	msgs := ft.messages()
	if len(msgs) != 1 {
		t.Fatalf("transport got %d messages, want 1", len(msgs))
	}
	payload := string(msgs[0].Payload)
	if !strings.Contains(payload, "\n  \"type\": \"systems\"") {
		t.Errorf("payload not indented:\n%s", payload)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msgs[0].Payload, &decoded); err != nil {
		t.Fatalf("pretty payload is not JSON: %v", err)
	}
	if list, ok := decoded["systems"].([]any); !ok || len(list) != 0 {
		t.Errorf("systems = %v, want []", decoded["systems"])
	}
}

func TestPublisher_DroppedAfterLoss(t *testing.T) {
	cfg := config.DefaultMQTT()
	p, m, ft := newTestPublisher(t, cfg)
	bus := events.New()
	ch := bus.Subscribe(4)
	defer bus.Unsubscribe(ch)
	p.bus = bus

	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.ConnectionLost(errors.New("eof"))
	p.Send(document.NewObject(), "recorder", "recorder")

	if len(ft.messages()) != 0 {
		t.Error("message published while lost")
	}
	select {
	case e := <-ch:
		if e.Kind != events.KindDropped || e.Data["state"] != "lost" {
			t.Errorf("event = %s %v, want dropped in state lost", e.Kind, e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no dropped event")
	}
}

// scriptedSession reports a fixed state and answers Publish with err.
type scriptedSession struct {
	state     State
	err       error
	published int
}

func (s *scriptedSession) State() State { return s.state }

func (s *scriptedSession) Publish(Message) error {
	if s.err != nil {
		return s.err
	}
	s.published++
	return nil
}

func TestPublisher_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		session   *scriptedSession
		wantOK    bool
		wantBuild bool
		wantKind  string
	}{
		{"open", &scriptedSession{state: StateOpen}, true, true, events.KindPublished},
		{"closed", &scriptedSession{state: StateClosed}, false, false, events.KindDropped},
		{"lost", &scriptedSession{state: StateLost}, false, false, events.KindDropped},
		{"opening", &scriptedSession{state: StateOpening}, false, false, events.KindDropped},
		{"closed between state read and publish", &scriptedSession{state: StateOpen, err: ErrNotOpen}, false, true, events.KindDropped},
		{"transport error", &scriptedSession{state: StateOpen, err: errors.New("write: broken pipe")}, false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := events.New()
			ch := bus.Subscribe(4)
			defer bus.Unsubscribe(ch)

			p := NewPublisher(tt.session, config.DefaultMQTT(), bus, quietLogger())
			built := false
			ok := p.Dispatch(func() any {
				built = true
				return document.NewObject()
			}, "rates", "rates")

			if ok != tt.wantOK {
				t.Errorf("Dispatch() = %v, want %v", ok, tt.wantOK)
			}
			if built != tt.wantBuild {
				t.Errorf("build called = %v, want %v", built, tt.wantBuild)
			}
			if want := map[bool]int{true: 1}[tt.wantOK]; tt.session.published != want {
				t.Errorf("published = %d, want %d", tt.session.published, want)
			}
			if tt.wantKind == "" {
				return
			}
			select {
			case e := <-ch:
				if e.Kind != tt.wantKind {
					t.Errorf("event kind = %s, want %s", e.Kind, tt.wantKind)
				}
			case <-time.After(time.Second):
				t.Fatalf("no %s event", tt.wantKind)
			}
		})
	}
}

func TestPublisher_TraceLogsPayload(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultMQTT()
	cfg.Topic = "tr"
	ft := &fakeTransport{}
	m := NewManager(OptionsFromConfig(cfg, "tr-status"), ft, nil, quietLogger())
	p := NewPublisher(m, cfg, nil, config.NewLogger(&buf, config.LevelTrace, "text"))
	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.Send(document.NewObject().Put("a", 1), "system", "system")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "topic=tr/system") {
		t.Errorf("trace log missing payload line: %s", out)
	}
}

func TestEnvelopeKeyOrder(t *testing.T) {
	env := Envelope(document.NewObject(), "config", "config", fixedNow)
	got := env.Keys()
	want := []string{"config", "type", "timestamp"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if parts := strings.Split(first, "-"); len(parts) != 5 {
		t.Errorf("id %q is not a UUID", first)
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != first {
		t.Errorf("file content = %q, want %q", got, first)
	}

	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q", second, first)
	}
}

func TestClientID(t *testing.T) {
	const id = "0190b6c2-7a3e-7c1d-9f00-1a2b3c4d5e6f"
	tests := []struct {
		name   string
		cfg    config.MQTTConfig
		instID string
		want   string
	}{
		{"default", config.MQTTConfig{}, id, "tr-status"},
		{"configured", config.MQTTConfig{ClientID: "site-a"}, id, "site-a"},
		{"unique", config.MQTTConfig{ClientID: "site-a", UniqueClientID: true}, id, "site-a-1a2b3c4d5e6f"},
		{"unique without id", config.MQTTConfig{UniqueClientID: true}, "", "tr-status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientID(tt.cfg, tt.instID); got != tt.want {
				t.Errorf("ClientID() = %q, want %q", got, tt.want)
			}
		})
	}
}
