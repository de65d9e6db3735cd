package eventbus

import "context"

// Sender is a thin, address-bound producer façade returned by Bus.Sender.
// It exists so call sites that repeatedly emit to the same address don't
// have to repeat it (spec §6 "typed producer façades").
type Sender struct {
	bus     *Bus
	address string
	opts    *DeliveryOptions
}

// Send emits body to the sender's bound address, point-to-point.
func (s *Sender) Send(ctx context.Context, body any) error {
	return s.bus.Send(ctx, s.address, body, s.opts)
}

// Request emits body to the sender's bound address and waits for a reply.
func (s *Sender) Request(ctx context.Context, body any) (*Message, error) {
	return s.bus.Request(ctx, s.address, body, s.opts)
}

// Address returns the bound address.
func (s *Sender) Address() string { return s.address }

// Publisher is a thin, address-bound producer façade returned by
// Bus.Publisher, for fan-out delivery.
type Publisher struct {
	bus     *Bus
	address string
	opts    *DeliveryOptions
}

// Publish emits body to every consumer of the publisher's bound address.
func (p *Publisher) Publish(ctx context.Context, body any) error {
	return p.bus.Publish(ctx, p.address, body, p.opts)
}

// Address returns the bound address.
func (p *Publisher) Address() string { return p.address }
