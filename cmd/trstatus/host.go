package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nugget/trunk-status/internal/events"
	"github.com/nugget/trunk-status/internal/snapshot"
	"github.com/nugget/trunk-status/internal/status"
)

// maxLineBytes bounds one host feed line. A recorder with many systems
// and sources produces large config lines.
const maxLineBytes = 16 << 20

// Hook names accepted on the host feed.
const (
	hookParseConfig    = "parse_config"
	hookInit           = "init"
	hookStart          = "start"
	hookSystemRates    = "system_rates"
	hookSetupSystems   = "setup_systems"
	hookSetupSystem    = "setup_system"
	hookCallsActive    = "calls_active"
	hookCallStart      = "call_start"
	hookCallEnd        = "call_end"
	hookSetupRecorder  = "setup_recorder"
	hookSetupRecorders = "setup_recorders"
	hookSetupConfig    = "setup_config"
)

// errUnknownHook marks a line naming a hook the feed does not handle.
var errUnknownHook = errors.New("unknown hook")

// hostMessage is one line of the host feed. Only the keys the named
// hook reads need to be present.
type hostMessage struct {
	Hook      string                `json:"hook"`
	Settings  map[string]string     `json:"settings,omitempty"`
	Config    *snapshot.Config      `json:"config,omitempty"`
	Sources   []*snapshot.Source    `json:"sources,omitempty"`
	Systems   []*snapshot.System    `json:"systems,omitempty"`
	System    *snapshot.System      `json:"system,omitempty"`
	Calls     []*snapshot.Call      `json:"calls,omitempty"`
	Call      *snapshot.Call        `json:"call,omitempty"`
	Summary   *snapshot.CallSummary `json:"summary,omitempty"`
	Recorder  *snapshot.Recorder    `json:"recorder,omitempty"`
	Recorders []*snapshot.Recorder  `json:"recorders,omitempty"`
	Interval  float64               `json:"interval,omitempty"`
}

// hostFeed decodes hook invocations and drives the plugin with them.
type hostFeed struct {
	plugin *status.Plugin
	bus    *events.Bus
	logger *slog.Logger
}

func newHostFeed(plugin *status.Plugin, bus *events.Bus, logger *slog.Logger) *hostFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &hostFeed{plugin: plugin, bus: bus, logger: logger}
}

// Run reads r line by line until EOF or ctx is cancelled. Lines that
// fail to decode or name an unknown hook are logged and skipped. It
// returns nil at EOF and the read error otherwise.
func (f *hostFeed) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var msg hostMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Warn("host feed line skipped", "line", line, "error", err)
			continue
		}
		if err := f.dispatch(ctx, msg); err != nil {
			f.logger.Warn("host feed hook skipped", "line", line, "hook", msg.Hook, "error", err)
		}
	}
	return scanner.Err()
}

// dispatch invokes the hook msg names. A host that never sends start
// gets the broker session opened by its first publishing hook, after any
// parse_config and init lines that preceded it.
func (f *hostFeed) dispatch(ctx context.Context, msg hostMessage) error {
	p := f.plugin
	switch msg.Hook {
	case hookSystemRates, hookSetupSystems, hookSetupSystem, hookCallsActive, hookCallStart,
		hookCallEnd, hookSetupRecorder, hookSetupRecorders, hookSetupConfig:
		if p.Session() == nil {
			p.Start(ctx)
		}
	}

	switch msg.Hook {
	case hookParseConfig:
		p.ParseConfig(msg.Settings)
	case hookInit:
		p.Init(configView(msg.Config), sourceViews(msg.Sources), systemViews(msg.Systems))
	case hookStart:
		p.Start(ctx)
	case hookSystemRates:
		p.SystemRates(systemViews(msg.Systems), msg.Interval)
	case hookSetupSystems:
		p.SetupSystems(systemViews(msg.Systems))
	case hookSetupSystem:
		if msg.System == nil {
			return fmt.Errorf("%s: missing system", msg.Hook)
		}
		p.SetupSystem(msg.System)
	case hookCallsActive:
		p.CallsActive(callViews(msg.Calls))
	case hookCallStart:
		if msg.Call == nil {
			return fmt.Errorf("%s: missing call", msg.Hook)
		}
		p.CallStart(msg.Call)
	case hookCallEnd:
		var summary snapshot.CallSummary
		if msg.Summary != nil {
			summary = *msg.Summary
		}
		p.CallEnd(summary)
	case hookSetupRecorder:
		if msg.Recorder == nil {
			return fmt.Errorf("%s: missing recorder", msg.Hook)
		}
		p.SetupRecorder(msg.Recorder)
	case hookSetupRecorders:
		p.SetupRecorders(recorderViews(msg.Recorders))
	case hookSetupConfig:
		p.SetupConfig(sourceViews(msg.Sources), systemViews(msg.Systems))
	default:
		return fmt.Errorf("%w %q", errUnknownHook, msg.Hook)
	}

	f.bus.Publish(events.NewEvent(events.SourceHost, events.KindHook, map[string]any{"hook": msg.Hook}))
	return nil
}

// configView avoids handing the plugin a typed nil interface.
func configView(c *snapshot.Config) snapshot.ConfigView {
	if c == nil {
		return nil
	}
	return c
}

func sourceViews(in []*snapshot.Source) []snapshot.SourceView {
	out := make([]snapshot.SourceView, 0, len(in))
	for _, s := range in {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func systemViews(in []*snapshot.System) []snapshot.SystemView {
	out := make([]snapshot.SystemView, 0, len(in))
	for _, s := range in {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func callViews(in []*snapshot.Call) []snapshot.CallView {
	out := make([]snapshot.CallView, 0, len(in))
	for _, c := range in {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func recorderViews(in []*snapshot.Recorder) []snapshot.RecorderView {
	out := make([]snapshot.RecorderView, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
