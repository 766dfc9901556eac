package phx

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// SocketOption configures socket behavior.
type SocketOption func(*socketOptions)

type socketOptions struct {
	timeout              time.Duration
	heartbeatInterval    time.Duration
	reconnectAfter       BackoffFunc
	rejoinAfter          BackoffFunc
	logger               *log.Logger
	serializer           Serializer
	transport            Transport
	params               map[string]any
	maxReconnectAttempts int
	pushBufferLimit      int
}

func socketDefaults() socketOptions {
	return socketOptions{
		timeout:           10 * time.Second,
		heartbeatInterval: 30 * time.Second,
		reconnectAfter:    defaultReconnectAfter,
		rejoinAfter:       defaultRejoinAfter,
		serializer:        V2Serializer{},
	}
}

// WithTimeout sets the default per-push deadline (default: 10s).
func WithTimeout(d time.Duration) SocketOption {
	return func(o *socketOptions) {
		o.timeout = d
	}
}

// WithHeartbeatInterval sets the heartbeat period (default: 30s).
func WithHeartbeatInterval(d time.Duration) SocketOption {
	return func(o *socketOptions) {
		o.heartbeatInterval = d
	}
}

// WithReconnectAfter sets the backoff function for transport reconnection.
func WithReconnectAfter(fn BackoffFunc) SocketOption {
	return func(o *socketOptions) {
		o.reconnectAfter = fn
	}
}

// WithRejoinAfter sets the backoff function for channel rejoin attempts.
func WithRejoinAfter(fn BackoffFunc) SocketOption {
	return func(o *socketOptions) {
		o.rejoinAfter = fn
	}
}

// WithLogger enables debug logging to the given logger. A nil logger (the
// default) drops all log output.
func WithLogger(logger *log.Logger) SocketOption {
	return func(o *socketOptions) {
		o.logger = logger
	}
}

// WithSerializer selects the wire format (default: V2Serializer).
func WithSerializer(s Serializer) SocketOption {
	return func(o *socketOptions) {
		o.serializer = s
	}
}

// WithTransport injects a custom transport. The default is a
// gorilla/websocket transport.
func WithTransport(t Transport) SocketOption {
	return func(o *socketOptions) {
		o.transport = t
	}
}

// WithParams sets opaque connect parameters appended to the connect URL
// query string, merged over any set in Config.Params.
func WithParams(params map[string]any) SocketOption {
	return func(o *socketOptions) {
		if o.params == nil {
			o.params = make(map[string]any)
		}
		for k, v := range params {
			o.params[k] = v
		}
	}
}

// WithMaxReconnectAttempts limits reconnection attempts after a transport
// failure. Zero (the default) means unlimited.
func WithMaxReconnectAttempts(n int) SocketOption {
	return func(o *socketOptions) {
		o.maxReconnectAttempts = n
	}
}

// WithPushBufferLimit bounds the number of pushes a channel buffers while
// it cannot send. When the buffer is full the oldest buffered push receives
// a local "timeout" reply and is dropped. Zero (the default) means
// unbounded.
func WithPushBufferLimit(n int) SocketOption {
	return func(o *socketOptions) {
		o.pushBufferLimit = n
	}
}

// DisconnectOption configures a Disconnect call.
type DisconnectOption func(*disconnectOptions)

type disconnectOptions struct {
	code   int
	reason string
}

func disconnectDefaults() disconnectOptions {
	return disconnectOptions{code: websocket.CloseNormalClosure}
}

// WithCloseCode overrides the close code sent to the server
// (default: 1000, normal closure).
func WithCloseCode(code int) DisconnectOption {
	return func(o *disconnectOptions) {
		o.code = code
	}
}

// WithCloseReason sets the close reason sent to the server.
func WithCloseReason(reason string) DisconnectOption {
	return func(o *disconnectOptions) {
		o.reason = reason
	}
}

// PushOption configures a single join, push, or leave operation.
type PushOption func(*pushOptions)

type pushOptions struct {
	timeout time.Duration
}

func pushDefaults(timeout time.Duration) pushOptions {
	return pushOptions{timeout: timeout}
}

// WithPushTimeout overrides the reply deadline for this operation.
func WithPushTimeout(d time.Duration) PushOption {
	return func(o *pushOptions) {
		o.timeout = d
	}
}
