// Package eventbus implements a local, in-process publish/subscribe and
// point-to-point message bus. Producers emit messages to a string-named
// address; the bus routes each message to one consumer (send) or to every
// consumer (publish) registered on that address, running each consumer on
// the execution context it was registered with.
//
// # Features
//
// The bus offers:
//   - Point-to-point (send) and fan-out (publish) delivery
//   - Request/reply with per-call timeouts, built on top of ordinary sends
//     and a synthetic one-shot reply address
//   - Pluggable body codecs, resolved by name or by Go type
//   - Outbound and inbound interceptor chains
//   - Execution-context affinity: every handler runs on the context it was
//     registered with, never on the caller's goroutine
//
// # Usage
//
//	bus := eventbus.NewBus(eventbus.DefaultConfig())
//	if err := bus.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Close(context.Background())
//
//	consumer, _ := bus.Consumer("orders.created")
//	consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
//	    log.Printf("order: %v", msg.Body)
//	})
//
//	bus.Send(ctx, "orders.created", orderPayload, nil)
//
// # Request/reply
//
//	reply, err := bus.Request(ctx, "pricing.quote", req, &eventbus.DeliveryOptions{SendTimeout: 2 * time.Second})
//
// # Out of scope
//
// The bus itself never persists messages, never orders deliveries across
// addresses, and never crosses process boundaries. The transport/* and
// metrics/* subpackages are optional bridges layered on top of a running
// Bus; none of them are required for local dispatch.
package eventbus
