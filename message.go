package eventbus

import "time"

// Headers is a multi-map of string headers, mirroring the DeliveryOptions
// headers field from spec §3/§6: a key may carry more than one value.
type Headers map[string][]string

// Add appends a value under key, preserving any values already present.
func (h Headers) Add(key, value string) {
	h[key] = append(h[key], value)
}

// Set replaces all values under key with a single value.
func (h Headers) Set(key, value string) {
	h[key] = []string{value}
}

// Get returns the first value for key, or "" if absent.
func (h Headers) Get(key string) string {
	vs := h[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns every value for key.
func (h Headers) Values(key string) []string {
	return h[key]
}

// Clone returns an independent deep copy, so two deliveries derived from the
// same publish never alias each other's header slices (spec invariant P7).
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

// DeliveryOptions carries per-emission settings recognized by Send, Publish
// and Request (spec §6).
type DeliveryOptions struct {
	// Headers are attached to the outbound message. May be nil.
	Headers Headers
	// CodecName overrides the codec resolved for the message body. If empty,
	// the codec is resolved by the body's Go type, falling back to the
	// system default codec.
	CodecName string
	// SendTimeout bounds how long Request waits for a reply. Zero means use
	// the bus's configured default; DeliveryOptions.SendTimeout is only
	// consulted by Request, Send/Publish ignore it.
	SendTimeout time.Duration
	// LocalOnly restricts delivery to handlers registered as local-only.
	// The core bus is local-only end to end, so this mainly exists for
	// remote-bridge interop: a bridge must never re-publish a message that
	// arrived with LocalOnly set.
	LocalOnly bool
}

func (o *DeliveryOptions) headers() Headers {
	if o == nil {
		return nil
	}
	return o.Headers
}

func (o *DeliveryOptions) codecName() string {
	if o == nil {
		return ""
	}
	return o.CodecName
}

func (o *DeliveryOptions) localOnly() bool {
	return o != nil && o.LocalOnly
}

func (o *DeliveryOptions) sendTimeout(fallback time.Duration) time.Duration {
	if o == nil || o.SendTimeout <= 0 {
		return fallback
	}
	return o.SendTimeout
}

// Message is the unit of delivery flowing from a producer to a consumer.
// Each handler invocation receives its own Message value produced by Copy,
// so mutating one handler's Headers never affects another's (spec P7).
type Message struct {
	// Address is the destination the message was sent or published to.
	Address string
	// ReplyAddress is set when the message is part of a request/reply
	// exchange; replying is just sending to this address.
	ReplyAddress string
	// Headers carries metadata alongside Body.
	Headers Headers
	// Body is the decoded payload, as produced by the resolved Codec.
	Body any
	// CodecName names the codec that encoded/decoded Body.
	CodecName string
	// Send is true for point-to-point delivery, false for publish fan-out.
	Send bool
	// replyFailure is set on synthetic failure messages delivered to a
	// reply handler (the recipient failure sent by Consumer.Fail); it is
	// never set on ordinary user messages.
	replyFailure *ReplyError
}

// Copy returns an independent message for one handler's delivery: Headers
// are deep-copied so concurrent handlers in a publish fan-out cannot observe
// each other's mutations (spec invariant P7).
func (m *Message) Copy() *Message {
	cp := *m
	cp.Headers = m.Headers.Clone()
	return &cp
}

// newReplyFailureMessage builds the synthetic message that carries failure
// to a reply address instead of a reply body. Bus.sendFailure uses it on
// behalf of Consumer.Fail; consumers call Consumer.Fail rather than this.
func newReplyFailureMessage(address string, failure *ReplyError) *Message {
	return &Message{
		Address:      address,
		Headers:      Headers{},
		replyFailure: failure,
	}
}
