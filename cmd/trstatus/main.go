// trstatus bridges trunk recorder status to an MQTT broker.
//
// It runs as a sidecar: the recorder writes one JSON object per hook
// invocation to trstatus's stdin, and each hook is published as an
// envelope under the configured base topic. Configuration is loaded from
// a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	trstatus serve              Read hooks from stdin and publish them
//	trstatus init [dir]         Write a default config.yaml
//	trstatus version            Print version and build information
//	trstatus -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/trunk-status/internal/api"
	"github.com/nugget/trunk-status/internal/buildinfo"
	"github.com/nugget/trunk-status/internal/config"
	"github.com/nugget/trunk-status/internal/connwatch"
	"github.com/nugget/trunk-status/internal/events"
	"github.com/nugget/trunk-status/internal/mqtt"
	"github.com/nugget/trunk-status/internal/status"
)

// shutdownTimeout bounds the broker disconnect and API drain on exit.
const shutdownTimeout = 5 * time.Second

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run] so the whole lifecycle can be driven
// from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. stdin carries the host feed for serve;
// structured logs go to stdout and fatal errors are returned for main
// to print. Arguments are parsed by hand because the flag package
// relies on package-level state.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdin, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.RuntimeInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "trstatus - trunk recorder status over MQTT")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: trstatus [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Read hook invocations from stdin and publish them")
	fmt.Fprintln(w, "  init [dir]   Write a default config.yaml (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/trstatus/config.yaml, /etc/trstatus/config.yaml")
	return nil
}

// runServe handles the "trstatus serve" subcommand. It starts the status
// API when a port is configured and feeds stdin to the hooks until EOF or
// a shutdown signal. The broker session opens when the feed starts it.
func runServe(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting trstatus", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	{
		// Already validated by config.Load.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = config.NewLogger(stdout, level, cfg.LogFormat)
	}
	logger.Info("config loaded",
		"path", cfgPath,
		"broker", cfg.MQTT.Broker,
		"topic", cfg.MQTT.Topic,
		"protocol", cfg.MQTT.Protocol,
		"port", cfg.Listen.Port,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var instanceID string
	if cfg.MQTT.UniqueClientID {
		instanceID, err = mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("instance id: %w", err)
		}
	}

	bus := events.New()
	counters, stopCounters := watchCounters(bus)
	defer stopCounters()

	// The session opens on the host's start hook, so parse_config
	// settings sent ahead of it still apply.
	plugin := status.New(status.Options{
		MQTT:       cfg.MQTT,
		InstanceID: instanceID,
		Bus:        bus,
		Logger:     logger,
	})

	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()
	connMgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    "mqtt",
		Probe:   plugin.CheckOpen,
		Backoff: connwatch.DefaultBackoffConfig(),
		OnReady: func() {
			logger.Info("mqtt session ready", "broker", plugin.Options().Broker)
		},
		OnDown: func(err error) {
			logger.Warn("mqtt session down", "broker", plugin.Options().Broker, "error", err)
		},
		Logger: logger,
	})

	var server *api.Server
	serverErr := make(chan error, 1)
	if cfg.Listen.Port > 0 {
		server = api.NewServer(cfg.Listen.Address, cfg.Listen.Port, logger)
		server.SetSession(plugin)
		server.SetHealth(connMgr)
		server.SetCounters(counters)
		server.SetEventBus(bus)
		server.SetConfigSent(plugin.ConfigSent)
		go func() {
			if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	feed := newHostFeed(plugin, bus, logger)
	feedDone := make(chan error, 1)
	go func() {
		feedDone <- feed.Run(ctx, stdin)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-feedDone:
		if err != nil {
			runErr = fmt.Errorf("host feed: %w", err)
		} else {
			logger.Info("host feed closed")
		}
	case err := <-serverErr:
		runErr = fmt.Errorf("status API failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	plugin.Stop(shutdownCtx)
	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}

	stopCounters()
	logger.Info("trstatus stopped", "events", counters.Snapshot())
	return runErr
}

// watchCounters tallies bus events until stop is called. stop releases
// the subscription and waits for the tally to drain; it may be called
// more than once.
func watchCounters(bus *events.Bus) (counters *events.Counters, stop func()) {
	counters = events.NewCounters()
	ch := bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		counters.Run(ch)
	}()
	return counters, func() {
		bus.Unsubscribe(ch)
		<-done
	}
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
