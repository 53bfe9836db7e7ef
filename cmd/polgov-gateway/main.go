package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/polgov/polgov/core/gateway"
	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/bus"
	"github.com/polgov/polgov/core/infra/config"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
)

const component = "polgov-gateway"

func main() {
	fs := flag.NewFlagSet("polgov-gateway", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (default from GATEWAY_ADDR)")
	useRedis := fs.Bool("redis", false, "serve artifacts from Redis instead of the output directory")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fail(err.Error())
	}
	cfg := config.Load()
	if *addr == "" {
		*addr = cfg.GatewayAddr
	}

	store, err := newStore(cfg, *useRedis)
	if err != nil {
		fail(err.Error())
	}

	events := bus.NewMemory()
	defer events.Close()
	attachNats(cfg, events)

	srv := gateway.New(store, events, metrics.NewGatewayProm("polgov_gateway"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		fail(err.Error())
	}
}

func newStore(cfg *config.Config, useRedis bool) (artifacts.Store, error) {
	if useRedis {
		return artifacts.NewRedisStore(cfg.RedisURL)
	}
	return artifacts.NewFileStore(cfg.OutputDir)
}

// attachNats mirrors governance events from NATS into the in-process bus the
// websocket tap reads. Without NATS the gateway still serves artifacts.
func attachNats(cfg *config.Config, events *bus.Memory) {
	nb, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		logging.Warn(component, "nats unavailable, event tap will stay silent", "err", err)
		return
	}
	for _, subject := range []string{bus.SubjectValidation, bus.SubjectPatch, bus.SubjectTeamPatch} {
		if _, err := nb.Subscribe(subject, func(event bus.Event) {
			_ = events.Publish(event)
		}); err != nil {
			logging.Warn(component, "subscribe failed", "subject", subject, "err", err)
		}
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
