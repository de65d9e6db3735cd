package eventbus

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Lifecycle event types emitted by the bus, following CloudEvents reverse
// domain notation — grounded on the teacher module's EventType* constants in
// events.go, generalised from the app-framework's "eventbus.*" source to this
// standalone bus's own domain.
const (
	EventTypeBusStarted          = "io.relaybus.bus.started"
	EventTypeBusClosed           = "io.relaybus.bus.closed"
	EventTypeSubscriptionCreated = "io.relaybus.subscription.created"
	EventTypeSubscriptionRemoved = "io.relaybus.subscription.removed"
	EventTypeReplyTimeout        = "io.relaybus.reply.timeout"
	EventTypeNoHandlers          = "io.relaybus.message.no_handlers"
)

// Observer receives the bus's own lifecycle notifications. This is the
// concrete home for the "metrics SPI (a passive observer)" collaborator
// spec §1 places out of scope for the core dispatch engine: Observer is a
// pure sink, the bus never blocks dispatch waiting on it.
type Observer interface {
	Notify(ctx context.Context, event cloudevents.Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, event cloudevents.Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(ctx context.Context, event cloudevents.Event) { f(ctx, event) }

// newLifecycleEvent builds a CloudEvents envelope the way the teacher
// module's modular.NewCloudEvent helper does: a UUID id, a fixed source, a
// timestamp, and the data payload as the event's JSON body.
func newLifecycleEvent(eventType string, data map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource("eventbus")
	event.SetType(eventType)
	event.SetTime(time.Now())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// notifyLifecycle emits a lifecycle event to the bus's observer, if any. The
// call never blocks dispatch: observers run in their own goroutine, and a
// panicking observer is logged rather than propagated (same discipline as
// user handlers, spec §7).
func (b *Bus) notifyLifecycle(eventType string, data map[string]any) {
	if b.observer == nil {
		return
	}
	event := newLifecycleEvent(eventType, data)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("eventbus: observer panicked", "recovered", r, "event_type", eventType)
			}
		}()
		b.observer.Notify(context.Background(), event)
	}()
}
