package eventbus_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/relaybus/eventbus"
)

// busBDDContext holds per-scenario state, mirroring the teacher module's
// EventBusBDDTestContext shape (one struct field per concern, reset between
// scenarios rather than recreated per step).
type busBDDContext struct {
	bus *eventbus.Bus

	mu        sync.Mutex
	counts    map[string]*atomic.Int64
	consumers []*eventbus.Consumer
	lastReply *eventbus.Message
	lastErr   error
}

func (c *busBDDContext) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus != nil {
		_ = c.bus.Close(context.Background())
	}
	c.bus = eventbus.NewBus(eventbus.DefaultConfig())
	_ = c.bus.Start(context.Background())
	c.counts = make(map[string]*atomic.Int64)
	c.consumers = nil
	c.lastReply = nil
	c.lastErr = nil
}

func (c *busBDDContext) iHaveARunningEventBus() error {
	c.reset()
	return nil
}

func (c *busBDDContext) iHaveNConsumersRegisteredOnAddress(n int, address string) error {
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i)
		counter := &atomic.Int64{}
		c.mu.Lock()
		c.counts[address+"#"+id] = counter
		c.mu.Unlock()

		consumer, err := c.bus.Consumer(address)
		if err != nil {
			return err
		}
		if _, err := consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
			counter.Add(1)
		}); err != nil {
			return err
		}
		c.consumers = append(c.consumers, consumer)
	}
	return nil
}

func (c *busBDDContext) iSendNMessagesToAddress(n int, address string) error {
	for i := 0; i < n; i++ {
		if err := c.bus.Send(context.Background(), address, i, nil); err != nil {
			return err
		}
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

func (c *busBDDContext) iPublishAMessageToAddress(address string) error {
	if err := c.bus.Publish(context.Background(), address, "hello", nil); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

func (c *busBDDContext) eachConsumerShouldHaveReceivedNMessages(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, counter := range c.counts {
		if got := counter.Load(); got != int64(n) {
			return fmt.Errorf("consumer %s: expected %d deliveries, got %d", key, n, got)
		}
	}
	return nil
}

func (c *busBDDContext) iHaveAConsumerOnAddressThatRepliesWith(address, reply string) error {
	consumer, err := c.bus.Consumer(address)
	if err != nil {
		return err
	}
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		_ = consumer.Reply(ctx, msg, reply)
	})
	c.consumers = append(c.consumers, consumer)
	return err
}

func (c *busBDDContext) iHaveAConsumerOnAddressThatNeverReplies(address string) error {
	consumer, err := c.bus.Consumer(address)
	if err != nil {
		return err
	}
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {})
	c.consumers = append(c.consumers, consumer)
	return err
}

func (c *busBDDContext) iHaveAConsumerOnAddress(address string) error {
	consumer, err := c.bus.Consumer(address)
	if err != nil {
		return err
	}
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {})
	c.consumers = append(c.consumers, consumer)
	return err
}

func (c *busBDDContext) iRequestAddressWithBody(address, body string) error {
	reply, err := c.bus.Request(context.Background(), address, body, nil)
	c.lastReply = reply
	c.lastErr = err
	return nil
}

func (c *busBDDContext) iRequestAddressWithBodyWithAShortTimeout(address, body string) error {
	opts := &eventbus.DeliveryOptions{SendTimeout: 50 * time.Millisecond}
	reply, err := c.bus.Request(context.Background(), address, body, opts)
	c.lastReply = reply
	c.lastErr = err
	return nil
}

func (c *busBDDContext) theReplyBodyShouldBe(want string) error {
	if c.lastErr != nil {
		return fmt.Errorf("expected a reply, got error: %w", c.lastErr)
	}
	got := fmt.Sprintf("%v", c.lastReply.Body)
	if got != want {
		return fmt.Errorf("expected reply body %q, got %q", want, got)
	}
	return nil
}

func (c *busBDDContext) theRequestShouldFailWithKind(kind string) error {
	if c.lastErr == nil {
		return fmt.Errorf("expected the request to fail with kind %s, but it succeeded", kind)
	}
	replyErr, ok := c.lastErr.(*eventbus.ReplyError)
	if !ok {
		return fmt.Errorf("expected a *eventbus.ReplyError, got %T: %v", c.lastErr, c.lastErr)
	}
	if replyErr.Kind.String() != kind {
		return fmt.Errorf("expected kind %s, got %s", kind, replyErr.Kind.String())
	}
	return nil
}

func (c *busBDDContext) iUnregisterTheConsumer() error {
	if len(c.consumers) == 0 {
		return fmt.Errorf("no consumer registered")
	}
	last := c.consumers[len(c.consumers)-1]
	c.lastErr = last.Unregister()
	return nil
}

func (c *busBDDContext) iUnregisterTheConsumerAgain() error {
	return c.iUnregisterTheConsumer()
}

func (c *busBDDContext) noErrorShouldHaveOccurred() error {
	return c.lastErr
}

func TestEventBusFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			testCtx := &busBDDContext{}

			sc.Given(`^I have a running event bus$`, testCtx.iHaveARunningEventBus)
			sc.Given(`^I have (\d+) consumers registered on address "([^"]*)"$`, testCtx.iHaveNConsumersRegisteredOnAddress)
			sc.When(`^I send (\d+) messages to address "([^"]*)"$`, testCtx.iSendNMessagesToAddress)
			sc.When(`^I publish a message to address "([^"]*)"$`, testCtx.iPublishAMessageToAddress)
			sc.Then(`^each consumer should have received (\d+) messages$`, testCtx.eachConsumerShouldHaveReceivedNMessages)

			sc.Given(`^I have a consumer on address "([^"]*)" that replies with "([^"]*)"$`, testCtx.iHaveAConsumerOnAddressThatRepliesWith)
			sc.Given(`^I have a consumer on address "([^"]*)" that never replies$`, testCtx.iHaveAConsumerOnAddressThatNeverReplies)
			sc.Given(`^I have a consumer on address "([^"]*)"$`, testCtx.iHaveAConsumerOnAddress)
			sc.When(`^I request address "([^"]*)" with body "([^"]*)"$`, testCtx.iRequestAddressWithBody)
			sc.When(`^I request address "([^"]*)" with body "([^"]*)" with a short timeout$`, testCtx.iRequestAddressWithBodyWithAShortTimeout)
			sc.Then(`^the reply body should be "([^"]*)"$`, testCtx.theReplyBodyShouldBe)
			sc.Then(`^the request should fail with kind "([^"]*)"$`, testCtx.theRequestShouldFailWithKind)

			sc.When(`^I unregister the consumer$`, testCtx.iUnregisterTheConsumer)
			sc.When(`^I unregister the consumer again$`, testCtx.iUnregisterTheConsumerAgain)
			sc.Then(`^no error should have occurred$`, testCtx.noErrorShouldHaveOccurred)

			sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
				if testCtx.bus != nil {
					_ = testCtx.bus.Close(context.Background())
				}
				return ctx, nil
			})
		},
		Options: &godog.Options{
			Format: "pretty",
			Paths:  []string{"features/eventbus.feature"},
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
