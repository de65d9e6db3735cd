package eventbus

import "sync"

// DeliveryContext is what an interceptor observes: the in-flight message and
// options, plus a Next method that advances the chain. Not calling Next
// short-circuits delivery on that side (spec §4.4).
type DeliveryContext struct {
	Message *Message
	Options *DeliveryOptions
	chain   []Interceptor
	pos     int
}

// Next invokes the following interceptor in the chain, or — once the chain
// is exhausted — returns true to signal "deliver". Interceptors that want to
// pass the message through unchanged simply call and return Next's result;
// interceptors that want to suppress delivery return false without calling
// Next.
func (d *DeliveryContext) Next() bool {
	if d.pos >= len(d.chain) {
		return true
	}
	next := d.chain[d.pos]
	d.pos++
	return next(d)
}

// Interceptor observes, may modify, or may suppress one delivery. Returning
// false (without calling DeliveryContext.Next) drops the message for this
// side of the chain.
type Interceptor func(dc *DeliveryContext) bool

// InterceptorToken identifies one registered interceptor so it can be
// removed later by identity, independent of its current slot in the chain
// (spec §4.4: "removal matches by identity; registration appends").
type InterceptorToken struct {
	fn Interceptor
}

// InterceptorChain is an append-only, copy-on-write ordered list of
// interceptors for one direction (outbound or inbound). A delivery captures
// the chain's current slice header via snapshot at the start of the
// delivery; later Add/Remove calls build a new backing array rather than
// mutating in place, so an in-flight delivery is never affected by
// concurrent chain mutation (spec invariant I5).
type InterceptorChain struct {
	mu     sync.Mutex
	tokens []*InterceptorToken
	funcs  []Interceptor
}

// NewInterceptorChain returns an empty chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// Add appends fn to the end of the chain (registration order, spec §4.4)
// and returns a token that Remove accepts.
func (c *InterceptorChain) Add(fn Interceptor) *InterceptorToken {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok := &InterceptorToken{fn: fn}
	c.tokens = append(append([]*InterceptorToken{}, c.tokens...), tok)
	c.funcs = append(append([]Interceptor{}, c.funcs...), fn)
	return tok
}

// Remove deletes the interceptor identified by tok, if still registered.
// Idempotent: removing an already-removed or unknown token is a no-op.
func (c *InterceptorChain) Remove(tok *InterceptorToken) {
	if tok == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, t := range c.tokens {
		if t == tok {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	tokens := make([]*InterceptorToken, 0, len(c.tokens)-1)
	funcs := make([]Interceptor, 0, len(c.funcs)-1)
	tokens = append(tokens, c.tokens[:idx]...)
	tokens = append(tokens, c.tokens[idx+1:]...)
	funcs = append(funcs, c.funcs[:idx]...)
	funcs = append(funcs, c.funcs[idx+1:]...)
	c.tokens = tokens
	c.funcs = funcs
}

// snapshot returns the chain's interceptor slice at this instant, safe for a
// caller to iterate without further synchronisation (spec I5).
func (c *InterceptorChain) snapshot() []Interceptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.funcs
}

// Run executes the chain against msg/options and returns true if the message
// survived every interceptor (i.e. should be delivered), false if any
// interceptor short-circuited it by returning without calling Next.
func (c *InterceptorChain) Run(msg *Message, opts *DeliveryOptions) bool {
	dc := &DeliveryContext{Message: msg, Options: opts, chain: c.snapshot()}
	return dc.Next()
}
