package status

import (
	"sync"

	"github.com/nugget/trunk-status/internal/document"
	"github.com/nugget/trunk-status/internal/mqtt"
	"github.com/nugget/trunk-status/internal/snapshot"
)

// configGate publishes the full configuration at most once per process.
// The latch is set only when the session accepted the message, so a call
// that was dropped leaves a later call free to send.
type configGate struct {
	mu   sync.Mutex
	sent bool
}

// SendOnce builds and publishes the config document unless it was
// already sent. It reports whether this call sent it.
func (g *configGate) SendOnce(pub *mqtt.Publisher,
	sources []snapshot.SourceView, systems []snapshot.SystemView, cfg snapshot.ConfigView) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sent {
		return false
	}
	g.sent = pub.Dispatch(func() any { return document.Config(sources, systems, cfg) }, TypeConfig, TypeConfig)
	return g.sent
}

// Sent reports whether the configuration has been published.
func (g *configGate) Sent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent
}
