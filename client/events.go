package client

import "sync"

// AuthStateHandler receives session-change notifications. The session is nil
// for EventSignedOut. Handlers run synchronously on the goroutine performing
// the state change; keep them short and do not block.
type AuthStateHandler func(event AuthEvent, session *Session)

// subscriber pairs a handler with its registration order.
type subscriber struct {
	id      int
	handler AuthStateHandler
}

// Subscription is the disposable handle returned by OnAuthStateChange.
// Unsubscribe must be called exactly once when the observer goes away;
// extra calls are safe no-ops.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler. After it returns the handler will not be
// invoked again.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// OnAuthStateChange registers a handler for session-change events: sign-in,
// sign-out, token refresh, and user updates, from any code path sharing this
// Client. Events are delivered strictly in the order the state changes
// happened, with no coalescing.
//
// Example:
//
//	sub := c.OnAuthStateChange(func(event client.AuthEvent, sess *client.Session) {
//	    log.Info().Str("event", string(event)).Msg("Auth state changed")
//	})
//	defer sub.Unsubscribe()
func (c *Client) OnAuthStateChange(handler AuthStateHandler) *Subscription {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, &subscriber{id: id, handler: handler})
	c.subMu.Unlock()

	return &Subscription{cancel: func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}}
}

// dispatch delivers an event to all current subscribers in registration
// order. Callers must hold emitMu so concurrent state changes cannot
// interleave their notifications.
func (c *Client) dispatch(event AuthEvent, session *Session) {
	c.subMu.Lock()
	subs := make([]*subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	for _, sub := range subs {
		sub.handler(event, session)
	}
}
