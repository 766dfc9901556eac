package phx

import (
	"sync"
	"time"
)

type receiveHook struct {
	status   string
	callback func(*ReplyPayload)
}

// Push models one outbound request with reply correlation and a deadline.
// Results arrive asynchronously through receivers registered with Receive.
type Push struct {
	mu           sync.Mutex
	channel      *Channel
	event        string
	payload      func() any // deferred so params re-evaluate on resend
	timeout      time.Duration
	receivedResp *ReplyPayload
	timeoutTimer *time.Timer
	recHooks     []receiveHook
	sent         bool
	ref          string
	refEvent     string
	refSub       Subscription
	hasRefSub    bool
}

func newPush(channel *Channel, event string, payload func() any, timeout time.Duration) *Push {
	return &Push{
		channel: channel,
		event:   event,
		payload: payload,
		timeout: timeout,
	}
}

// Receive registers a callback for a reply with the given status
// ("ok", "error", or "timeout"). If a matching reply already arrived the
// callback fires immediately. The callback receives the whole reply
// payload so handlers may read Response.
func (p *Push) Receive(status string, callback func(*ReplyPayload)) *Push {
	p.mu.Lock()
	var fireNow *ReplyPayload
	if p.hasReceivedLocked(status) {
		fireNow = p.receivedResp
	}
	p.recHooks = append(p.recHooks, receiveHook{status: status, callback: callback})
	p.mu.Unlock()

	if fireNow != nil {
		callback(fireNow)
	}
	return p
}

// Send dispatches the push through the socket, assigning a fresh ref and
// restarting the reply timeout (any running timeout is cancelled first).
func (p *Push) Send() {
	p.mu.Lock()
	if p.hasReceivedLocked("timeout") {
		p.mu.Unlock()
		return
	}
	p.startTimeoutLocked()
	p.sent = true

	joinRef := p.ref
	if p.event != eventJoin {
		joinRef = p.channel.JoinRef()
	}
	msg := &Message{
		JoinRef: joinRef,
		Ref:     p.ref,
		Topic:   p.channel.topic,
		Event:   p.event,
		Payload: p.payload(),
	}
	p.mu.Unlock()

	p.channel.socket.push(msg)
}

// Resend cancels any pending timeout, clears the ref and any received
// reply, and sends again with the given deadline. A fresh ref (and, for
// joins, a fresh joinRef) is assigned by the send.
func (p *Push) Resend(timeout time.Duration) {
	p.mu.Lock()
	p.timeout = timeout
	p.resetLocked()
	p.mu.Unlock()
	p.Send()
}

// Reset clears the ref, reply listener, and received response so the push
// can be sent again under a new ref.
func (p *Push) Reset() {
	p.mu.Lock()
	p.resetLocked()
	p.mu.Unlock()
}

func (p *Push) resetLocked() {
	p.cancelRefEventLocked()
	p.cancelTimeoutLocked()
	p.ref = ""
	p.refEvent = ""
	p.receivedResp = nil
	p.sent = false
}

// StartTimeout starts the reply deadline without sending. Used for pushes
// buffered while the channel cannot send.
func (p *Push) StartTimeout() {
	p.mu.Lock()
	p.startTimeoutLocked()
	p.mu.Unlock()
}

func (p *Push) startTimeoutLocked() {
	if p.timeoutTimer != nil {
		p.cancelTimeoutLocked()
	}
	p.cancelRefEventLocked()

	p.ref = p.channel.socket.MakeRef()
	p.refEvent = replyEventName(p.ref)

	p.refSub = p.channel.On(p.refEvent, p.onReply)
	p.hasRefSub = true

	p.timeoutTimer = time.AfterFunc(p.timeout, func() {
		p.trigger("timeout", map[string]any{})
	})
}

// onReply handles the synthetic chan_reply_<ref> event for this push.
func (p *Push) onReply(msg *Message) {
	p.mu.Lock()
	p.cancelRefEventLocked()
	p.cancelTimeoutLocked()

	reply, err := parseReply(msg.Payload)
	if err != nil {
		p.mu.Unlock()
		p.channel.socket.reportError(SocketError{
			Kind:      ErrDecodeFailure,
			Topic:     p.channel.topic,
			Event:     p.event,
			Cause:     err,
			Timestamp: time.Now(),
		})
		return
	}
	p.receivedResp = reply
	hooks := make([]receiveHook, len(p.recHooks))
	copy(hooks, p.recHooks)
	p.mu.Unlock()

	for _, hook := range hooks {
		if hook.status == reply.Status {
			hook.callback(reply)
		}
	}
}

// CancelTimeout cancels the reply deadline without sending anything.
func (p *Push) CancelTimeout() {
	p.mu.Lock()
	p.cancelTimeoutLocked()
	p.mu.Unlock()
}

func (p *Push) cancelTimeoutLocked() {
	if p.timeoutTimer != nil {
		p.timeoutTimer.Stop()
		p.timeoutTimer = nil
	}
}

func (p *Push) cancelRefEventLocked() {
	if p.hasRefSub {
		p.channel.Off(p.refSub)
		p.hasRefSub = false
	}
}

// trigger synthesizes a local reply with the given status, as if the
// server had replied to this push's ref.
func (p *Push) trigger(status string, response any) {
	p.mu.Lock()
	refEvent := p.refEvent
	ref := p.ref
	p.mu.Unlock()

	if refEvent == "" {
		return
	}
	p.channel.trigger(refEvent, map[string]any{
		"status":   status,
		"response": response,
	}, ref, "")
}

func (p *Push) hasReceivedLocked(status string) bool {
	return p.receivedResp != nil && p.receivedResp.Status == status
}

// HasReceived reports whether a reply with the given status has arrived.
func (p *Push) HasReceived(status string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasReceivedLocked(status)
}

// ReceivedResponse returns the last received reply, or nil.
func (p *Push) ReceivedResponse() *ReplyPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receivedResp
}

// Ref returns the ref assigned on the most recent send, or "" before the
// first send.
func (p *Push) Ref() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ref
}

// IsSent reports whether the push has been dispatched at least once.
func (p *Push) IsSent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}
