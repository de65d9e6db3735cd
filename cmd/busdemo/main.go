// Command busdemo wires a Bus together with the Prometheus metrics collector
// and exercises publish/request against a couple of demo addresses,
// grounded on the teacher module's examples/eventbus-demo (simplified here
// since this bus has no surrounding application framework to host it in).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relaybus/eventbus"
	busprom "github.com/relaybus/eventbus/metrics/prometheus"
)

type orderCreated struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	config := eventbus.DefaultConfig()
	bus := eventbus.NewBus(config, eventbus.WithLogger(logger))

	ctx := context.Background()
	if err := bus.Start(ctx); err != nil {
		logger.Error("starting bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(busprom.NewCollector(bus, "busdemo"))
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.Info("serving metrics", "addr", ":9090")
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ordersConsumer, err := bus.Consumer("orders.created")
	if err != nil {
		logger.Error("registering consumer", "error", err)
		os.Exit(1)
	}
	_, err = ordersConsumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		logger.Info("order received", "body", msg.Body)
	})
	if err != nil {
		logger.Error("attaching handler", "error", err)
		os.Exit(1)
	}

	pricingConsumer, err := bus.Consumer("pricing.quote")
	if err != nil {
		logger.Error("registering pricing consumer", "error", err)
		os.Exit(1)
	}
	_, err = pricingConsumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		_ = pricingConsumer.Reply(ctx, msg, fmt.Sprintf("quoted for %v", msg.Body))
	})
	if err != nil {
		logger.Error("attaching pricing handler", "error", err)
		os.Exit(1)
	}

	if err := bus.Publish(ctx, "orders.created", orderCreated{ID: "ord-1", Amount: 4200}, nil); err != nil {
		logger.Error("publishing", "error", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	reply, err := bus.Request(reqCtx, "pricing.quote", "widget", nil)
	if err != nil {
		logger.Error("requesting quote", "error", err)
	} else {
		logger.Info("quote reply", "body", reply.Body)
	}

	time.Sleep(200 * time.Millisecond)
	logger.Info("done", "stats", bus.Stats())
}
