// Command channelize is a client for the channelize subscription backend.
//
// It connects to the hub, issues correlated subscribe calls and prints
// change notifications.
//
// Usage:
//
//	channelize [flags] [domain[:id,id...]...]
//
// Positional arguments subscribe at startup and print notifications of
// those domains until interrupted. With -i an interactive shell is started
// instead.
//
// Examples:
//
//	# Subscribe to two systems' events and to system changes
//	channelize --base-url https://api.example.com/v1 --token-file ~/.token events:A,B systems
//
//	# Find a backend on the local network and open the shell
//	channelize --discover -i
//
//	# Record a protocol capture and expose metrics
//	channelize -c channelize.yaml --capture session.cbor --metrics-addr :9090 -i
//
// Configuration is read from flags, CHANNELIZE_* environment variables
// (optionally from a .env file) and a YAML file, in that order of
// precedence.
package main

import (
	"context"
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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/channelize/channelize-go/cmd/channelize/interactive"
	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/config"
	"github.com/channelize/channelize-go/pkg/discovery"
	"github.com/channelize/channelize-go/pkg/log"
	"github.com/channelize/channelize-go/pkg/metrics"
	"github.com/channelize/channelize-go/pkg/proxy"
)

func main() {
	flags := config.AddFlags(pflag.CommandLine)
	interactiveMode := pflag.BoolP("interactive", "i", false, "start the interactive shell")
	pflag.Parse()

	cfg, err := flags.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "channelize: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, *interactiveMode, pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "channelize: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, interactiveMode bool, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, level)

	if cfg.BaseURL == "" {
		if err := discover(ctx, &cfg, logger); err != nil {
			return err
		}
	}

	hubURL, err := cfg.HubURL()
	if err != nil {
		return err
	}
	codec, err := cfg.WireCodec()
	if err != nil {
		return err
	}

	// Interactive logs go through readline so they do not clobber the prompt.
	var shell *interactive.Shell
	if interactiveMode {
		shell, err = interactive.New(proxy.Names())
		if err != nil {
			return err
		}
		logger = newLogger(shell.Stdout(), level)
	}

	var sinks []log.Logger
	if cfg.CaptureFile != "" {
		fl, err := log.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		defer fl.Close()
		sinks = append(sinks, fl)
		logger.Info("capturing protocol events", "file", cfg.CaptureFile)
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}
	capture := log.NewMultiLogger(sinks...).Logger()

	collector := metrics.New()
	client, err := proxy.New(proxy.Config{
		BaseURL:          cfg.BaseURL,
		HubURL:           hubURL,
		Codec:            codec,
		Tokens:           cfg.Tokens(),
		HTTPClient:       &http.Client{Timeout: cfg.RequestTimeout},
		DisableReconnect: cfg.DisableReconnect,
		Logger:           logger,
		ProtocolLogger:   capture,
		Observer:         collector,
		Reporter: channel.ErrorReporterFunc(func(domain string, err error) {
			logger.Warn("subscription failed", "domain", domain, "error", err)
		}),
		OnDrop: collector.NotificationDropped,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	defer collector.WatchConnection(client.Connection())()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr, collector, logger)
	}

	if shell != nil {
		shell.Attach(client)
		g.Go(func() error {
			shell.Run(gctx, cancel)
			return nil
		})
	} else {
		if len(args) == 0 {
			return errors.New("nothing to do: name domains to subscribe or use -i")
		}
		if err := client.Start(gctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		for _, arg := range args {
			name, keys := parseTarget(arg)
			h, err := client.Handle(name)
			if err != nil {
				return err
			}
			watchDomain(gctx, g, h, logger)
			g.Go(func() error { return subscribe(gctx, h, keys, logger) })
		}
	}

	<-gctx.Done()
	logger.Info("shutting down")
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func discover(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("browsing for a backend", "service", discovery.ServiceType)
	b := discovery.NewBrowser(discovery.BrowserConfig{Logger: logger})
	defer b.Stop()

	svc, err := b.Find(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	base, err := svc.BaseURL()
	if err != nil {
		return fmt.Errorf("discovery: %s: %w", svc.InstanceName, err)
	}
	cfg.BaseURL = base
	if svc.Info.HubPath != "" {
		cfg.HubPath = svc.Info.HubPath
	}
	if !svc.SupportsCodec(cfg.Codec) {
		logger.Warn("backend does not advertise codec, using json", "codec", cfg.Codec)
		cfg.Codec = config.DefaultCodec
	}
	logger.Info("found backend", "instance", svc.InstanceName, "base_url", base)
	return nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, collector *metrics.Collector, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// parseTarget splits "events:A,B" into the domain and its ids.
func parseTarget(arg string) (string, []string) {
	name, ids, found := strings.Cut(arg, ":")
	if !found || ids == "" {
		return name, nil
	}
	return name, strings.Split(ids, ",")
}

func subscribe(ctx context.Context, h proxy.Handle, keys []string, logger *slog.Logger) error {
	confirmed, err := h.SubscribeKeys(ctx, keys)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s: %w", h.Name(), err)
	}
	logger.Info("subscribed", "domain", h.Name(), "confirmed", confirmed)
	return nil
}

func watchDomain(ctx context.Context, g *errgroup.Group, h proxy.Handle, logger *slog.Logger) {
	w := h.Watch()
	g.Go(func() error {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ch, ok := <-w.C():
				if !ok {
					return nil
				}
				logger.Info("change",
					"domain", h.Name(),
					"tag", ch.RequestFor,
					"entity", ch.EntityID,
					"type", ch.ChangeType)
			}
		}
	})
}
