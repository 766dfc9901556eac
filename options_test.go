package phx

import (
	"log"
	"os"
	"testing"
	"time"
)

func TestSocketDefaults(t *testing.T) {
	o := socketDefaults()
	if o.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", o.timeout)
	}
	if o.heartbeatInterval != 30*time.Second {
		t.Errorf("heartbeatInterval = %v, want 30s", o.heartbeatInterval)
	}
	if o.serializer.Vsn() != "2.0.0" {
		t.Errorf("default serializer vsn = %q, want 2.0.0", o.serializer.Vsn())
	}
	if o.maxReconnectAttempts != 0 {
		t.Errorf("maxReconnectAttempts = %d, want 0 (unlimited)", o.maxReconnectAttempts)
	}
	if o.pushBufferLimit != 0 {
		t.Errorf("pushBufferLimit = %d, want 0 (unbounded)", o.pushBufferLimit)
	}
	if o.reconnectAfter == nil || o.rejoinAfter == nil {
		t.Error("backoff functions should default")
	}
}

func TestSocketOptionsApply(t *testing.T) {
	logger := log.New(os.Stderr, "", 0)
	o := socketDefaults()
	for _, opt := range []SocketOption{
		WithTimeout(time.Second),
		WithHeartbeatInterval(5 * time.Second),
		WithLogger(logger),
		WithSerializer(V1Serializer{}),
		WithMaxReconnectAttempts(7),
		WithPushBufferLimit(100),
	} {
		opt(&o)
	}

	if o.timeout != time.Second {
		t.Errorf("timeout = %v", o.timeout)
	}
	if o.heartbeatInterval != 5*time.Second {
		t.Errorf("heartbeatInterval = %v", o.heartbeatInterval)
	}
	if o.logger != logger {
		t.Error("logger not applied")
	}
	if o.serializer.Vsn() != "1.0.0" {
		t.Errorf("serializer vsn = %q", o.serializer.Vsn())
	}
	if o.maxReconnectAttempts != 7 {
		t.Errorf("maxReconnectAttempts = %d", o.maxReconnectAttempts)
	}
	if o.pushBufferLimit != 100 {
		t.Errorf("pushBufferLimit = %d", o.pushBufferLimit)
	}
}

func TestWithParamsMerges(t *testing.T) {
	o := socketDefaults()
	WithParams(map[string]any{"user_id": 42, "token": "abc"})(&o)
	WithParams(map[string]any{"token": "xyz"})(&o)

	if o.params["user_id"] != 42 {
		t.Errorf("user_id = %v", o.params["user_id"])
	}
	if o.params["token"] != "xyz" {
		t.Errorf("token = %v, later option should win", o.params["token"])
	}
}

func TestDisconnectOptions(t *testing.T) {
	o := disconnectDefaults()
	if o.code != 1000 || o.reason != "" {
		t.Errorf("defaults = (%d, %q), want (1000, \"\")", o.code, o.reason)
	}

	WithCloseCode(4001)(&o)
	WithCloseReason("shutting down")(&o)
	if o.code != 4001 {
		t.Errorf("code = %d", o.code)
	}
	if o.reason != "shutting down" {
		t.Errorf("reason = %q", o.reason)
	}
}

func TestPushOptions(t *testing.T) {
	o := pushDefaults(10 * time.Second)
	if o.timeout != 10*time.Second {
		t.Errorf("default timeout = %v", o.timeout)
	}
	WithPushTimeout(250 * time.Millisecond)(&o)
	if o.timeout != 250*time.Millisecond {
		t.Errorf("timeout = %v", o.timeout)
	}
}
