// Package status is the hook surface a trunk recorder host drives. Each
// hook turns one or more snapshots into a document and publishes it
// through the MQTT publisher under a fixed message type:
//
//	SystemRates     rates         (field "rates")
//	SetupSystems    systems       (field "systems")
//	SetupSystem     system        (field "system")
//	CallsActive     calls_active  (field "calls")
//	CallStart       call_start    (field "call")
//	SetupRecorder   recorder      (field "recorder")
//	SetupRecorders  recorders     (field "recorders")
//	SetupConfig     config        (field "config", at most once)
//
// CallEnd is part of the surface but publishes nothing. Every hook
// returns 0; delivery problems only show up in the log.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nugget/trunk-status/internal/config"
	"github.com/nugget/trunk-status/internal/document"
	"github.com/nugget/trunk-status/internal/events"
	"github.com/nugget/trunk-status/internal/mqtt"
	"github.com/nugget/trunk-status/internal/snapshot"
)

// Message types, which are also the last topic segment.
const (
	TypeRates       = "rates"
	TypeSystems     = "systems"
	TypeSystem      = "system"
	TypeCallsActive = "calls_active"
	TypeCallStart   = "call_start"
	TypeRecorder    = "recorder"
	TypeRecorders   = "recorders"
	TypeConfig      = "config"
)

// Options configures a [Plugin].
type Options struct {
	// MQTT is the broker and publish configuration. ParseConfig may
	// overlay it before Start.
	MQTT config.MQTTConfig
	// InstanceID feeds unique client IDs. Optional.
	InstanceID string
	// Transport overrides the protocol-selected transport. Tests use it.
	Transport mqtt.Transport
	Bus       *events.Bus
	Logger    *slog.Logger
}

// Plugin implements the hooks. Hooks are meant to be called from one
// host goroutine; transport notifications may arrive concurrently.
type Plugin struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	session *mqtt.Manager
	pub     *mqtt.Publisher

	hostCfg snapshot.ConfigView
	gate    configGate
}

// New creates a Plugin. Nothing connects until Start.
func New(opts Options) *Plugin {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Plugin{
		opts:   opts,
		logger: opts.Logger,
	}
}

// ParseConfig overlays the plugin key/value settings (broker, topic,
// username, password) on the MQTT configuration. It has no effect once
// Start has run.
func (p *Plugin) ParseConfig(kv map[string]string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		p.logger.Warn("mqtt settings ignored after start")
		return 0
	}
	if err := p.opts.MQTT.ApplyKeyValues(kv); err != nil {
		p.logger.Warn("mqtt broker setting ignored", "error", err)
	}
	p.logger.Info("mqtt status settings",
		"broker", p.opts.MQTT.Broker,
		"topic", p.opts.MQTT.Topic,
		"username", p.opts.MQTT.Username)
	return 0
}

// Init records the host configuration used by the config dump.
func (p *Plugin) Init(cfg snapshot.ConfigView, sources []snapshot.SourceView, systems []snapshot.SystemView) int {
	p.mu.Lock()
	p.hostCfg = cfg
	p.mu.Unlock()
	p.logger.Debug("status plugin init", "sources", len(sources), "systems", len(systems))
	return 0
}

// Start opens the broker session and blocks for the initial handshake.
// A failed handshake is logged; the plugin keeps running with
// publishing disabled.
func (p *Plugin) Start(ctx context.Context) int {
	p.mu.Lock()
	if p.session != nil {
		p.mu.Unlock()
		return 0
	}
	mc := p.opts.MQTT
	transport := p.opts.Transport
	if transport == nil {
		t, err := mqtt.NewTransport(mc.Protocol, p.logger)
		if err != nil {
			p.mu.Unlock()
			p.logger.Error("mqtt transport", "error", err)
			return 0
		}
		transport = t
	}
	session := mqtt.NewManager(mqtt.OptionsFromConfig(mc, mqtt.ClientID(mc, p.opts.InstanceID)),
		transport, p.opts.Bus, p.logger)
	p.session = session
	p.pub = mqtt.NewPublisher(session, mc, p.opts.Bus, p.logger)
	p.mu.Unlock()

	if err := session.Open(ctx); err != nil {
		p.logger.Warn("status publishing disabled", "error", err)
	}
	return 0
}

// Stop closes the broker session.
func (p *Plugin) Stop(ctx context.Context) int {
	session := p.Session()
	if session == nil {
		return 0
	}
	if err := session.Close(ctx); err != nil {
		p.logger.Warn("mqtt close", "error", err)
	}
	return 0
}

// Session returns the broker session, or nil before Start.
func (p *Plugin) Session() *mqtt.Manager {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// State returns the session state; Closed before Start.
func (p *Plugin) State() mqtt.State {
	if s := p.Session(); s != nil {
		return s.State()
	}
	return mqtt.StateClosed
}

// Options returns the connect options the session uses, or would use
// if Start ran now.
func (p *Plugin) Options() mqtt.ConnectOptions {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session != nil {
		return p.session.Options()
	}
	mc := p.opts.MQTT
	return mqtt.OptionsFromConfig(mc, mqtt.ClientID(mc, p.opts.InstanceID))
}

// CheckOpen fails unless the session is Open. It serves as the connwatch
// health check and can be registered before Start.
func (p *Plugin) CheckOpen(ctx context.Context) error {
	if s := p.Session(); s != nil {
		return s.Probe(ctx)
	}
	return fmt.Errorf("mqtt session %s", mqtt.StateClosed)
}

// ConfigSent reports whether the configuration dump has gone out.
func (p *Plugin) ConfigSent() bool {
	return p.gate.Sent()
}

// SystemRates publishes the decode rate of every system over interval
// seconds.
func (p *Plugin) SystemRates(systems []snapshot.SystemView, interval float64) int {
	return p.send(func() any { return document.SystemRatesList(systems, interval) }, TypeRates, TypeRates)
}

// SetupSystems publishes every system.
func (p *Plugin) SetupSystems(systems []snapshot.SystemView) int {
	return p.send(func() any { return document.SystemSetupList(systems) }, TypeSystems, TypeSystems)
}

// SetupSystem publishes one system.
func (p *Plugin) SetupSystem(sys snapshot.SystemView) int {
	return p.send(func() any { return document.SystemSetup(sys) }, TypeSystem, TypeSystem)
}

// CallsActive publishes the calls currently in progress.
func (p *Plugin) CallsActive(calls []snapshot.CallView) int {
	return p.send(func() any { return document.CallList(calls) }, "calls", TypeCallsActive)
}

// CallStart publishes a call that just started.
func (p *Plugin) CallStart(call snapshot.CallView) int {
	return p.send(func() any { return document.Call(call) }, "call", TypeCallStart)
}

// CallEnd publishes nothing. Completed calls are reported by the
// calls_active tick that no longer lists them.
func (p *Plugin) CallEnd(snapshot.CallSummary) int {
	return 0
}

// SetupRecorder publishes one recorder.
func (p *Plugin) SetupRecorder(r snapshot.RecorderView) int {
	return p.send(func() any { return document.Recorder(r) }, TypeRecorder, TypeRecorder)
}

// SetupRecorders publishes a batch of recorders.
func (p *Plugin) SetupRecorders(recorders []snapshot.RecorderView) int {
	return p.send(func() any { return document.RecorderList(recorders) }, TypeRecorders, TypeRecorders)
}

// SetupConfig publishes the full configuration the first time it is
// called while the session is Open. Later calls do nothing.
func (p *Plugin) SetupConfig(sources []snapshot.SourceView, systems []snapshot.SystemView) int {
	p.mu.RLock()
	pub, cfg := p.pub, p.hostCfg
	p.mu.RUnlock()
	if pub == nil {
		return 0
	}
	if p.gate.SendOnce(pub, sources, systems, cfg) {
		p.logger.Info("configuration published", "sources", len(sources), "systems", len(systems))
	}
	return 0
}

// send hands build to the publisher, which calls it only while the
// session is Open.
func (p *Plugin) send(build func() any, field, messageType string) int {
	p.mu.RLock()
	pub := p.pub
	p.mu.RUnlock()
	if pub == nil {
		return 0
	}
	pub.Dispatch(build, field, messageType)
	return 0
}
