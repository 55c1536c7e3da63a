// Command channelize-devhub runs a local fake of the channelize backend for
// development: the hub websocket, the subscribe and unsubscribe routes of
// every domain, and an mDNS announcement so that clients started with
// --discover find it.
//
// Usage:
//
//	channelize-devhub [flags]
//
// Every subscribe call is confirmed on the caller's connection. Multi-reply
// domains confirm each requested id. With --notify-interval the hub also
// broadcasts a change notification for each domain in turn.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/channelize/channelize-go/internal/hubtest"
	"github.com/channelize/channelize-go/pkg/discovery"
	"github.com/channelize/channelize-go/pkg/proxy"
)

type options struct {
	addr           string
	hubPath        string
	token          string
	instance       string
	advertise      bool
	pingInterval   time.Duration
	notifyInterval time.Duration
	logLevel       string
}

func main() {
	var opts options
	pflag.StringVar(&opts.addr, "addr", ":8080", "listen address")
	pflag.StringVar(&opts.hubPath, "hub-path", "/hub", "hub websocket path")
	pflag.StringVar(&opts.token, "token", "", "require this bearer token")
	pflag.StringVar(&opts.instance, "instance", "channelize-devhub", "mDNS instance name")
	pflag.BoolVar(&opts.advertise, "advertise", true, "announce the hub over mDNS")
	pflag.DurationVar(&opts.pingInterval, "ping-interval", 15*time.Second, "hub ping interval (0 disables)")
	pflag.DurationVar(&opts.notifyInterval, "notify-interval", 0, "broadcast a change notification at this interval (0 disables)")
	pflag.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "channelize-devhub: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := hubtest.NewServer(hubtest.ServerConfig{
		HubPath:      opts.hubPath,
		Token:        opts.token,
		PingInterval: opts.pingInterval,
		Logger:       logger,
	})
	for domain, fn := range responders() {
		hub.Handle(domain, fn)
	}

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: hub, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("hub listening", "addr", ln.Addr().String(), "hub_path", opts.hubPath)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if opts.advertise {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{Logger: logger})
		port := ln.Addr().(*net.TCPAddr).Port
		if err := adv.Advertise(&discovery.Info{
			Name:    opts.instance,
			Port:    uint16(port),
			HubPath: opts.hubPath,
			Codecs:  []string{"json", "cbor"},
			Version: discovery.ProtocolVersion,
		}); err != nil {
			logger.Warn("mDNS announcement failed", "error", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				adv.Stop()
				return nil
			})
		}
	}

	if opts.notifyInterval > 0 {
		g.Go(func() error {
			notifyLoop(gctx, hub, opts.notifyInterval, logger)
			return nil
		})
	}

	return g.Wait()
}

// domainReplies describes how each domain is answered.
var domainReplies = []struct {
	domain    string
	event     string
	tag       string
	notifyTag string
	bodyField string
	keyField  string
}{
	{"events", proxy.EventEvents, proxy.TagEvents, proxy.NotifyEvents, "systemIds", "SystemId"},
	{"commands", proxy.EventCommands, proxy.TagCommands, proxy.NotifyCommands, "", ""},
	{"systems", proxy.EventSystems, proxy.TagSystems, proxy.NotifySystems, "", ""},
	{"sessions", proxy.EventSessions, proxy.TagSessions, proxy.NotifySessions, "", ""},
	{"licenses", proxy.EventLicenses, proxy.TagLicenses, proxy.NotifyLicenses, "", ""},
	{"operator-tasks", proxy.EventOperatorTasks, proxy.TagOperatorTasks, proxy.NotifyOperatorTasks, "taskIds", "TaskId"},
	{"user-roles", proxy.EventUserRoles, proxy.TagUserRoles, proxy.NotifyUserRoles, "", ""},
}

func responders() map[string]hubtest.Responder {
	out := make(map[string]hubtest.Responder, len(domainReplies))
	for _, d := range domainReplies {
		if d.bodyField != "" {
			out[d.domain] = hubtest.ConfirmKeyed(d.event, d.tag, d.bodyField, d.keyField)
			continue
		}
		out[d.domain] = hubtest.Confirm(d.event, d.tag)
	}
	return out
}

// notification builds the i-th change notification of the rotation.
func notification(i int) (event string, payload map[string]any) {
	d := domainReplies[i%len(domainReplies)]
	return d.event, map[string]any{
		"RequestFor": d.notifyTag,
		"EntityId":   uuid.NewString(),
		"ChangeType": "updated",
		"Timestamp":  time.Now().UTC(),
	}
}

func notifyLoop(ctx context.Context, hub *hubtest.Server, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event, payload := notification(i)
			n := hub.Broadcast(event, payload)
			logger.Debug("broadcast change", "event", event, "tag", payload["RequestFor"], "connections", n)
		}
	}
}
