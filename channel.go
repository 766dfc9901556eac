package phx

import (
	"fmt"
	"sync"
	"time"
)

// ChannelState is the membership state of a Channel.
type ChannelState int

const (
	ChannelClosed ChannelState = iota
	ChannelErrored
	ChannelJoined
	ChannelJoining
	ChannelLeaving
)

func (cs ChannelState) String() string {
	switch cs {
	case ChannelClosed:
		return "closed"
	case ChannelErrored:
		return "errored"
	case ChannelJoined:
		return "joined"
	case ChannelJoining:
		return "joining"
	case ChannelLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// MessageHook runs on every inbound event before subscriber fan-out and may
// transform the payload. Returning nil when the inbound payload was
// non-nil is a contract violation and panics.
type MessageHook func(event string, payload any, ref string) any

// Channel is the per-topic state machine: join/leave lifecycle, event
// subscriptions, push buffering while unjoined, and automatic rejoin with
// backoff after errors.
type Channel struct {
	mu              sync.Mutex
	topic           string
	params          map[string]any
	socket          *Socket
	state           ChannelState
	bindings        *bindingRegistry
	timeout         time.Duration
	joinedOnce      bool
	joinPush        *Push
	pushBuffer      []*Push
	rejoinTimer     *callbackTimer
	onMessageHook   MessageHook
	stateChangeRefs []int
}

func newChannel(topic string, params map[string]any, socket *Socket) *Channel {
	if params == nil {
		params = make(map[string]any)
	}

	c := &Channel{
		topic:    topic,
		params:   params,
		socket:   socket,
		state:    ChannelClosed,
		bindings: newBindingRegistry(),
		timeout:  socket.opts.timeout,
		onMessageHook: func(event string, payload any, ref string) any {
			return payload
		},
	}

	c.rejoinTimer = newCallbackTimer(func() {
		if c.socket.IsConnected() {
			c.rejoin(c.Timeout())
		}
	}, socket.opts.rejoinAfter)

	c.stateChangeRefs = append(c.stateChangeRefs,
		socket.OnError(func(error) {
			c.rejoinTimer.Reset()
		}),
		socket.OnOpen(func() {
			c.rejoinTimer.Reset()
			if c.IsErrored() {
				c.rejoin(c.Timeout())
			}
		}),
	)

	c.joinPush = newPush(c, eventJoin, func() any {
		return c.params
	}, c.timeout)
	c.setupJoinPush()

	c.On(eventReply, func(msg *Message) {
		c.trigger(replyEventName(msg.Ref), msg.Payload, msg.Ref, msg.JoinRef)
	})
	c.On(eventClose, c.handleClose)
	c.On(eventError, c.handleError)

	return c
}

func (c *Channel) setupJoinPush() {
	c.joinPush.Receive("ok", func(*ReplyPayload) {
		c.mu.Lock()
		if c.state != ChannelJoining {
			// A leave racing the join reply wins; don't disturb shutdown.
			c.mu.Unlock()
			return
		}
		c.state = ChannelJoined
		buffered := c.pushBuffer
		c.pushBuffer = nil
		c.mu.Unlock()

		c.rejoinTimer.Reset()
		for _, push := range buffered {
			push.Send()
		}
	})

	c.joinPush.Receive("error", func(reply *ReplyPayload) {
		if !c.IsJoining() {
			return
		}
		c.socket.logf("channel join error %s: %v", c.topic, reply.Response)
		c.mu.Lock()
		c.state = ChannelErrored
		c.mu.Unlock()
		c.rejoinTimer.ScheduleTimeout()
	})

	c.joinPush.Receive("timeout", func(*ReplyPayload) {
		if !c.IsJoining() {
			return
		}
		c.socket.logf("channel join timeout %s (%s)", c.topic, c.JoinRef())

		// Best-effort leave for the membership the server may have created.
		leavePush := newPush(c, eventLeave, emptyPayload, c.Timeout())
		leavePush.Send()

		c.mu.Lock()
		c.state = ChannelErrored
		c.mu.Unlock()
		c.joinPush.Reset()
		c.rejoinTimer.ScheduleTimeout()
	})
}

// Join sends the join push for this channel's topic. It may be called a
// single time per channel instance; rejoin after errors is automatic. A
// WithPushTimeout option also becomes the channel's default deadline for
// later pushes, leaves, and rejoins.
func (c *Channel) Join(opts ...PushOption) (*Push, error) {
	c.mu.Lock()
	if c.joinedOnce {
		c.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	o := pushDefaults(c.timeout)
	for _, opt := range opts {
		opt(&o)
	}
	c.timeout = o.timeout
	c.joinedOnce = true
	c.mu.Unlock()

	c.rejoin(o.timeout)
	return c.joinPush, nil
}

// rejoin evicts any prior incarnation of the topic, marks the channel
// Joining, and resends the join push under a fresh ref.
func (c *Channel) rejoin(timeout time.Duration) {
	if c.IsLeaving() {
		return
	}
	c.socket.leaveOpenTopic(c.topic, c)

	c.mu.Lock()
	c.state = ChannelJoining
	c.mu.Unlock()

	c.joinPush.Resend(timeout)
}

// Leave unsubscribes from the topic. The returned push completes with "ok"
// on the server's acknowledgment or with "timeout"; either way the channel
// transitions to Closed and stops auto-rejoining.
func (c *Channel) Leave(opts ...PushOption) *Push {
	o := pushDefaults(c.Timeout())
	for _, opt := range opts {
		opt(&o)
	}

	c.rejoinTimer.Reset()
	c.joinPush.CancelTimeout()

	couldPush := c.canPush()
	c.mu.Lock()
	c.state = ChannelLeaving
	c.mu.Unlock()

	onClose := func(*ReplyPayload) {
		c.socket.logf("channel leave %s", c.topic)
		c.trigger(eventClose, "leave", "", "")
	}

	leavePush := newPush(c, eventLeave, emptyPayload, o.timeout)
	leavePush.Receive("ok", onClose)
	leavePush.Receive("timeout", onClose)
	leavePush.Send()

	// With no acknowledgeable membership the leave completes locally.
	if !couldPush {
		leavePush.trigger("ok", map[string]any{})
	}
	return leavePush
}

// Push sends an event to the topic. Before the channel is joined the push
// is buffered (FIFO) and dispatched once the join succeeds; its reply
// deadline starts immediately either way.
func (c *Channel) Push(event string, payload any, opts ...PushOption) (*Push, error) {
	c.mu.Lock()
	if !c.joinedOnce {
		c.mu.Unlock()
		return nil, ErrNotJoined
	}
	o := pushDefaults(c.timeout)
	for _, opt := range opts {
		opt(&o)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	push := newPush(c, event, func() any { return payload }, o.timeout)

	if c.canPushLocked() {
		c.mu.Unlock()
		push.Send()
		return push, nil
	}

	push.StartTimeout()
	var dropped *Push
	limit := c.socket.opts.pushBufferLimit
	if limit > 0 && len(c.pushBuffer) >= limit {
		dropped = c.pushBuffer[0]
		c.pushBuffer = c.pushBuffer[1:]
	}
	c.pushBuffer = append(c.pushBuffer, push)
	c.mu.Unlock()

	if dropped != nil {
		dropped.trigger("timeout", map[string]any{})
		c.socket.reportError(SocketError{
			Kind:      ErrBufferOverflow,
			Topic:     c.topic,
			Event:     dropped.event,
			Timestamp: time.Now(),
		})
	}
	return push, nil
}

// On subscribes a callback to an event. Multiple subscriptions per event
// are allowed and fire in registration order. The returned Subscription
// removes exactly this callback via Off.
func (c *Channel) On(event string, callback EventCallback) Subscription {
	return c.bindings.add(event, callback)
}

// Off removes a single subscription by handle.
func (c *Channel) Off(sub Subscription) {
	c.bindings.remove(sub)
}

// OffEvent removes every subscription for the event.
func (c *Channel) OffEvent(event string) {
	c.bindings.removeEvent(event)
}

// OnMessage installs a hook that runs on every inbound event before
// subscriber fan-out and may transform the payload.
func (c *Channel) OnMessage(hook MessageHook) {
	c.mu.Lock()
	c.onMessageHook = hook
	c.mu.Unlock()
}

// handleClose transitions to Closed and detaches from the socket. The
// transition is idempotent: a server phx_close racing the synthetic one
// emitted by Leave is harmless.
func (c *Channel) handleClose(*Message) {
	c.rejoinTimer.Reset()
	c.socket.logf("channel close %s %s", c.topic, c.JoinRef())

	c.mu.Lock()
	c.state = ChannelClosed
	c.mu.Unlock()

	c.socket.remove(c)
}

// handleError transitions to Errored and schedules a rejoin. The rejoin
// timer checks connectivity when it fires, so scheduling while the socket
// is down is harmless; a reconnect also rejoins immediately via the
// socket's open event.
func (c *Channel) handleError(msg *Message) {
	c.socket.logf("channel error %s: %v", c.topic, msg.Payload)

	c.mu.Lock()
	if c.state == ChannelLeaving || c.state == ChannelClosed {
		c.mu.Unlock()
		return
	}
	wasJoining := c.state == ChannelJoining
	c.state = ChannelErrored
	c.mu.Unlock()

	if wasJoining {
		c.joinPush.Reset()
	}
	c.rejoinTimer.ScheduleTimeout()
}

// trigger runs the message hook and fans the event out to subscribers.
func (c *Channel) trigger(event string, payload any, ref, joinRef string) {
	c.mu.Lock()
	hook := c.onMessageHook
	c.mu.Unlock()

	handled := hook(event, payload, ref)
	if payload != nil && handled == nil {
		panic(fmt.Sprintf("phx: OnMessage hook on %q returned nil for a non-nil payload (event %q)", c.topic, event))
	}

	for _, callback := range c.bindings.matching(event) {
		callback(&Message{
			JoinRef: joinRef,
			Ref:     ref,
			Topic:   c.topic,
			Event:   event,
			Payload: handled,
		})
	}
}

// isMember reports whether an inbound envelope belongs to this channel's
// current join incarnation. Envelopes carrying a stale joinRef are dropped.
func (c *Channel) isMember(msg *Message) bool {
	if c.topic != msg.Topic {
		return false
	}
	if msg.JoinRef != "" && msg.JoinRef != c.JoinRef() {
		c.socket.logf("dropping outdated message topic=%s event=%s join_ref=%s", msg.Topic, msg.Event, msg.JoinRef)
		c.socket.reportError(SocketError{
			Kind:      ErrStaleMessage,
			Topic:     msg.Topic,
			Event:     msg.Event,
			Timestamp: time.Now(),
		})
		return false
	}
	return true
}

func (c *Channel) canPush() bool {
	return c.socket.IsConnected() && c.IsJoined()
}

// canPushLocked requires c.mu held.
func (c *Channel) canPushLocked() bool {
	return c.socket.IsConnected() && c.state == ChannelJoined
}

// Topic returns the channel's topic.
func (c *Channel) Topic() string {
	return c.topic
}

// JoinRef returns the ref of the push that joined the current incarnation,
// or "" before the first join attempt.
func (c *Channel) JoinRef() string {
	return c.joinPush.Ref()
}

// Timeout returns the channel's default per-push deadline.
func (c *Channel) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// State returns the channel's membership state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) IsClosed() bool  { return c.State() == ChannelClosed }
func (c *Channel) IsErrored() bool { return c.State() == ChannelErrored }
func (c *Channel) IsJoined() bool  { return c.State() == ChannelJoined }
func (c *Channel) IsJoining() bool { return c.State() == ChannelJoining }
func (c *Channel) IsLeaving() bool { return c.State() == ChannelLeaving }

func emptyPayload() any {
	return map[string]any{}
}
