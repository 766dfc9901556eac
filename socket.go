package phx

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SocketState is the connection state of a Socket.
type SocketState int

const (
	SocketClosed SocketState = iota
	SocketConnecting
	SocketOpen
	SocketClosing
)

func (ss SocketState) String() string {
	switch ss {
	case SocketClosed:
		return "closed"
	case SocketConnecting:
		return "connecting"
	case SocketOpen:
		return "open"
	case SocketClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// socketCallback is one registered socket-level listener. Exactly one of
// the function fields is set; removal is by ref across all kinds.
type socketCallback struct {
	ref     int
	onOpen  func()
	onClose func(code int, reason string)
	onError func(err error)
	onMsg   func(msg *Message)
}

// Socket is a single multiplexed Phoenix endpoint: it owns the transport,
// encodes and decodes envelopes, routes inbound messages to channels,
// sends heartbeats, and reconnects with backoff after transport failures.
type Socket struct {
	mu   sync.Mutex
	cfg  Config
	opts socketOptions

	onError   ErrorHandler
	transport Transport

	state               SocketState
	channels            []*Channel
	sendBuffer          []func()
	ref                 int64
	pendingHeartbeatRef string
	heartbeatStop       chan struct{}
	closeWasClean       bool

	reconnectTimer *callbackTimer

	callbacks   []socketCallback
	callbackRef int
}

// NewSocket creates a socket for the given endpoint. The onError handler
// is called for socket-level errors that cannot be returned to a direct
// caller (decode failures, transport faults, heartbeat timeouts) and must
// not be nil. The socket is not connected until Connect is called.
func NewSocket(cfg Config, onError ErrorHandler, opts ...SocketOption) (*Socket, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	o := socketDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = NewWebsocketTransport()
	}
	if o.params != nil {
		if resolved.Params == nil {
			resolved.Params = make(map[string]any)
		}
		for k, v := range o.params {
			resolved.Params[k] = v
		}
	}

	s := &Socket{
		cfg:       resolved,
		opts:      o,
		onError:   onError,
		transport: o.transport,
		state:     SocketClosed,
	}
	s.reconnectTimer = newCallbackTimer(s.attemptReconnect, o.reconnectAfter)
	return s, nil
}

// Connect opens the transport if not already open or opening.
func (s *Socket) Connect() error {
	s.mu.Lock()
	if s.state == SocketOpen || s.state == SocketConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = SocketConnecting
	s.closeWasClean = false
	endpoint := s.cfg.endpoint(s.opts.serializer.Vsn())
	transport := s.transport
	s.mu.Unlock()

	err := transport.Connect(endpoint, TransportCallbacks{
		OnOpen:    s.onConnOpen,
		OnMessage: s.onConnMessage,
		OnError:   s.onConnError,
		OnClose:   s.onConnClose,
	})
	if err != nil {
		s.mu.Lock()
		s.state = SocketClosed
		s.mu.Unlock()
		return &ConnectionError{URL: s.cfg.URL, Reason: err.Error()}
	}
	return nil
}

// Disconnect closes the transport and suppresses auto-reconnect. The
// close code defaults to 1000 (normal closure) with an empty reason;
// override with WithCloseCode and WithCloseReason.
func (s *Socket) Disconnect(opts ...DisconnectOption) error {
	o := disconnectDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	s.logf("disconnect %s (%d %q)", s.cfg.URL, o.code, o.reason)
	s.reconnectTimer.Reset()

	s.mu.Lock()
	s.closeWasClean = true
	state := s.state
	transport := s.transport
	s.mu.Unlock()

	if state == SocketOpen || state == SocketConnecting {
		return transport.Close(o.code, o.reason)
	}
	return nil
}

// Channel constructs a Channel for the topic and registers it with this
// socket. Each call constructs a new instance; joining a topic already
// held by another live channel evicts the prior incarnation.
func (s *Socket) Channel(topic string, params map[string]any) *Channel {
	ch := newChannel(topic, params, s)
	s.mu.Lock()
	s.channels = append(s.channels, ch)
	s.mu.Unlock()
	return ch
}

// remove detaches a channel from the socket and drops its socket-level
// listeners.
func (s *Socket) remove(ch *Channel) {
	s.Off(ch.stateChangeRefs...)
	s.mu.Lock()
	kept := s.channels[:0]
	for _, c := range s.channels {
		if c != ch {
			kept = append(kept, c)
		}
	}
	s.channels = kept
	s.mu.Unlock()
}

// leaveOpenTopic force-leaves any other live channel holding the topic.
// Prevents server-side phantom memberships when a client rebuilds state
// after an error.
func (s *Socket) leaveOpenTopic(topic string, joining *Channel) {
	for _, ch := range s.channelsSnapshot() {
		if ch == joining || ch.topic != topic {
			continue
		}
		if ch.IsJoined() || ch.IsJoining() {
			s.logf("leaving duplicate topic %q", topic)
			ch.Leave()
		}
	}
}

// MakeRef returns the next ref: a per-socket monotonic counter rendered as
// a string.
func (s *Socket) MakeRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.makeRefLocked()
}

func (s *Socket) makeRefLocked() string {
	s.ref++
	if s.ref < 0 { // overflow wrap
		s.ref = 1
	}
	return strconv.FormatInt(s.ref, 10)
}

// push serializes and sends an envelope if the transport is open,
// otherwise appends it to the send buffer flushed on the next open.
func (s *Socket) push(msg *Message) {
	s.logf("push %s %s (%s, %s)", msg.Topic, msg.Event, msg.JoinRef, msg.Ref)

	send := func() {
		data, err := s.opts.serializer.Encode(msg)
		if err != nil {
			s.reportError(SocketError{
				Kind:      ErrEncodeFailure,
				Topic:     msg.Topic,
				Event:     msg.Event,
				Cause:     err,
				Timestamp: time.Now(),
			})
			return
		}
		if err := s.transport.Send(data, msg.IsBinary()); err != nil {
			s.reportError(SocketError{
				Kind:      ErrTransport,
				Topic:     msg.Topic,
				Event:     msg.Event,
				Cause:     err,
				Timestamp: time.Now(),
			})
		}
	}

	s.mu.Lock()
	if s.state == SocketOpen {
		s.mu.Unlock()
		send()
		return
	}
	s.sendBuffer = append(s.sendBuffer, send)
	s.mu.Unlock()
}

// OnOpen registers a callback fired each time the transport opens. The
// returned ref removes it via Off.
func (s *Socket) OnOpen(fn func()) int {
	return s.addCallback(socketCallback{onOpen: fn})
}

// OnClose registers a callback fired each time the transport closes.
func (s *Socket) OnClose(fn func(code int, reason string)) int {
	return s.addCallback(socketCallback{onClose: fn})
}

// OnError registers a callback fired on transport errors.
func (s *Socket) OnError(fn func(err error)) int {
	return s.addCallback(socketCallback{onError: fn})
}

// OnMessage registers a callback fired for every decoded inbound envelope.
func (s *Socket) OnMessage(fn func(msg *Message)) int {
	return s.addCallback(socketCallback{onMsg: fn})
}

// Off removes previously registered socket-level callbacks by ref.
func (s *Socket) Off(refs ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.callbacks[:0]
	for _, cb := range s.callbacks {
		drop := false
		for _, ref := range refs {
			if cb.ref == ref {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, cb)
		}
	}
	s.callbacks = kept
}

func (s *Socket) addCallback(cb socketCallback) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbackRef++
	cb.ref = s.callbackRef
	s.callbacks = append(s.callbacks, cb)
	return cb.ref
}

// IsConnected reports whether the transport is open.
func (s *Socket) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SocketOpen
}

// ConnectionState returns the socket's connection state.
func (s *Socket) ConnectionState() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// onConnOpen flushes the send buffer, starts the heartbeat, and notifies
// open listeners (channels rejoin here).
func (s *Socket) onConnOpen() {
	s.logf("connected to %s", s.cfg.URL)
	s.reconnectTimer.Reset()

	s.mu.Lock()
	s.state = SocketOpen
	s.closeWasClean = false
	buffered := s.sendBuffer
	s.sendBuffer = nil
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
	}
	stop := make(chan struct{})
	s.heartbeatStop = stop
	s.pendingHeartbeatRef = ""
	callbacks := s.openCallbacksLocked()
	s.mu.Unlock()

	for _, send := range buffered {
		send()
	}
	go s.heartbeatLoop(stop)
	for _, fn := range callbacks {
		fn()
	}
}

func (s *Socket) onConnMessage(data []byte) {
	msg, err := s.opts.serializer.Decode(data)
	if err != nil {
		s.logf("failed to decode inbound frame: %v", err)
		s.reportError(SocketError{
			Kind:      ErrDecodeFailure,
			Cause:     err,
			Raw:       data,
			Timestamp: time.Now(),
		})
		return
	}
	s.logf("receive %s %s (%s)", msg.Topic, msg.Event, msg.Ref)

	s.mu.Lock()
	if msg.Ref != "" && msg.Ref == s.pendingHeartbeatRef {
		s.pendingHeartbeatRef = ""
	}
	var msgCallbacks []func(*Message)
	for _, cb := range s.callbacks {
		if cb.onMsg != nil {
			msgCallbacks = append(msgCallbacks, cb.onMsg)
		}
	}
	channels := make([]*Channel, len(s.channels))
	copy(channels, s.channels)
	s.mu.Unlock()

	for _, ch := range channels {
		if ch.isMember(msg) {
			ch.trigger(msg.Event, msg.Payload, msg.Ref, msg.JoinRef)
		}
	}
	for _, fn := range msgCallbacks {
		fn(msg)
	}
}

func (s *Socket) onConnError(err error) {
	s.logf("transport error: %v", err)
	s.reportError(SocketError{
		Kind:      ErrTransport,
		Cause:     err,
		Timestamp: time.Now(),
	})

	s.mu.Lock()
	var errCallbacks []func(error)
	for _, cb := range s.callbacks {
		if cb.onError != nil {
			errCallbacks = append(errCallbacks, cb.onError)
		}
	}
	s.mu.Unlock()

	for _, fn := range errCallbacks {
		fn(err)
	}
	s.triggerChanError()
}

func (s *Socket) onConnClose(code int, reason string) {
	s.logf("close %d %q", code, reason)

	s.mu.Lock()
	s.state = SocketClosed
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	clean := s.closeWasClean
	var closeCallbacks []func(int, string)
	for _, cb := range s.callbacks {
		if cb.onClose != nil {
			closeCallbacks = append(closeCallbacks, cb.onClose)
		}
	}
	s.mu.Unlock()

	if !clean {
		s.scheduleReconnect()
	}
	s.triggerChanError()
	for _, fn := range closeCallbacks {
		fn(code, reason)
	}
}

// triggerChanError routes a transport fault to every channel that is still
// live; channels already errored, leaving, or closed are left alone.
func (s *Socket) triggerChanError() {
	for _, ch := range s.channelsSnapshot() {
		if ch.IsErrored() || ch.IsLeaving() || ch.IsClosed() {
			continue
		}
		ch.trigger(eventError, nil, "", "")
	}
}

func (s *Socket) scheduleReconnect() {
	limit := s.opts.maxReconnectAttempts
	if limit > 0 && s.reconnectTimer.Tries() >= limit {
		s.logf("max reconnect attempts (%d) reached", limit)
		return
	}
	s.reconnectTimer.ScheduleTimeout()
}

func (s *Socket) attemptReconnect() {
	s.logf("attempting reconnect (%d)", s.reconnectTimer.Tries())
	if err := s.Connect(); err != nil {
		s.scheduleReconnect()
	}
}

func (s *Socket) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.opts.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sendHeartbeat()
		}
	}
}

// sendHeartbeat sends the periodic liveness probe. A heartbeat still
// outstanding when the next tick fires marks a half-open transport: force
// close and let the reconnect path rebuild the connection.
func (s *Socket) sendHeartbeat() {
	s.mu.Lock()
	if s.state != SocketOpen {
		s.mu.Unlock()
		return
	}
	if s.pendingHeartbeatRef != "" {
		s.pendingHeartbeatRef = ""
		s.closeWasClean = false
		transport := s.transport
		s.mu.Unlock()

		s.logf("heartbeat timeout, closing transport")
		s.reportError(SocketError{
			Kind:      ErrHeartbeatTimeout,
			Topic:     heartbeatTopic,
			Timestamp: time.Now(),
		})
		transport.Close(websocket.CloseNormalClosure, "heartbeat timeout")
		return
	}
	s.pendingHeartbeatRef = s.makeRefLocked()
	ref := s.pendingHeartbeatRef
	s.mu.Unlock()

	s.push(&Message{
		Topic:   heartbeatTopic,
		Event:   heartbeatEvent,
		Payload: map[string]any{},
		Ref:     ref,
	})
}

func (s *Socket) channelsSnapshot() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := make([]*Channel, len(s.channels))
	copy(channels, s.channels)
	return channels
}

// openCallbacksLocked requires s.mu held.
func (s *Socket) openCallbacksLocked() []func() {
	var callbacks []func()
	for _, cb := range s.callbacks {
		if cb.onOpen != nil {
			callbacks = append(callbacks, cb.onOpen)
		}
	}
	return callbacks
}

func (s *Socket) reportError(e SocketError) {
	s.onError(e)
}

func (s *Socket) logf(format string, args ...any) {
	if s.opts.logger != nil {
		s.opts.logger.Printf("[phx] "+format, args...)
	}
}
