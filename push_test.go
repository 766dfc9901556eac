package phx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// joinedChannel returns a connected socket with a joined channel.
func joinedChannel(t *testing.T, extra ...SocketOption) (*Channel, *fakeTransport) {
	t.Helper()
	s, ft := newTestSocket(t, extra...)
	require.NoError(t, s.Connect())

	ch := s.Channel("rooms:lobby", nil)
	_, err := ch.Join()
	require.NoError(t, err)
	ft.replyOK(ft.sentTo("rooms:lobby", eventJoin)[0], nil)
	require.True(t, ch.IsJoined())
	return ch, ft
}

func TestPushReceiveMatchingStatusOnly(t *testing.T) {
	ch, ft := joinedChannel(t)

	push, err := ch.Push("new_msg", map[string]any{"body": "hi"})
	require.NoError(t, err)

	var okFired, errFired bool
	push.Receive("ok", func(*ReplyPayload) { okFired = true })
	push.Receive("error", func(*ReplyPayload) { errFired = true })

	ft.replyOK(ft.sentTo("rooms:lobby", "new_msg")[0], map[string]any{})

	assert.True(t, okFired)
	assert.False(t, errFired)
	assert.True(t, push.HasReceived("ok"))
	assert.False(t, push.HasReceived("error"))
}

func TestPushReceiveAfterReplyFiresImmediatelyOnce(t *testing.T) {
	ch, ft := joinedChannel(t)

	push, err := ch.Push("new_msg", nil)
	require.NoError(t, err)
	ft.replyOK(ft.sentTo("rooms:lobby", "new_msg")[0], map[string]any{"id": "42"})

	fired := 0
	push.Receive("ok", func(reply *ReplyPayload) {
		fired++
		assert.Equal(t, map[string]any{"id": "42"}, reply.Response)
	})
	assert.Equal(t, 1, fired)

	resp := push.ReceivedResponse()
	require.NotNil(t, resp)
	assert.Equal(t, "ok", resp.Status)
}

func TestPushTimeoutSynthesizesLocalReply(t *testing.T) {
	ch, ft := joinedChannel(t)

	push, err := ch.Push("new_msg", nil, WithPushTimeout(20*time.Millisecond))
	require.NoError(t, err)

	replies := make(chan *ReplyPayload, 1)
	push.Receive("timeout", func(reply *ReplyPayload) { replies <- reply })

	var got *ReplyPayload
	select {
	case got = <-replies:
	case <-time.After(2 * time.Second):
		t.Fatal("push did not time out")
	}
	assert.Equal(t, "timeout", got.Status)
	assert.Equal(t, map[string]any{}, got.Response)

	// A late server reply must not fire receivers a second time.
	okFired := false
	push.Receive("ok", func(*ReplyPayload) { okFired = true })
	ft.replyOK(ft.sentTo("rooms:lobby", "new_msg")[0], nil)
	assert.False(t, okFired)
}

func TestReplyCancelsTimeout(t *testing.T) {
	ch, ft := joinedChannel(t)

	push, err := ch.Push("new_msg", nil, WithPushTimeout(30*time.Millisecond))
	require.NoError(t, err)
	ft.replyOK(ft.sentTo("rooms:lobby", "new_msg")[0], nil)

	time.Sleep(60 * time.Millisecond)
	assert.False(t, push.HasReceived("timeout"))
	assert.True(t, push.HasReceived("ok"))
}

func TestPushResendAssignsFreshRef(t *testing.T) {
	ch, ft := joinedChannel(t)

	push, err := ch.Push("new_msg", map[string]any{"body": "hi"})
	require.NoError(t, err)
	firstRef := push.Ref()
	require.NotEmpty(t, firstRef)

	push.Resend(200 * time.Millisecond)
	secondRef := push.Ref()
	assert.NotEqual(t, firstRef, secondRef)
	assert.Nil(t, push.ReceivedResponse())

	msgs := ft.sentTo("rooms:lobby", "new_msg")
	require.Len(t, msgs, 2)
	assert.Equal(t, firstRef, msgs[0].Ref)
	assert.Equal(t, secondRef, msgs[1].Ref)

	// Only the current ref's reply is observed.
	okFired := false
	push.Receive("ok", func(*ReplyPayload) { okFired = true })
	ft.replyOK(msgs[0], nil)
	assert.False(t, okFired)
	ft.replyOK(msgs[1], nil)
	assert.True(t, okFired)
}

func TestPushSendAfterTimeoutIsNoop(t *testing.T) {
	ch, ft := joinedChannel(t)

	push, err := ch.Push("new_msg", nil, WithPushTimeout(10*time.Millisecond))
	require.NoError(t, err)
	waitFor(t, func() bool { return push.HasReceived("timeout") })

	before := len(ft.sentMessages())
	push.Send()
	assert.Equal(t, before, len(ft.sentMessages()))
}

func TestPushIsSent(t *testing.T) {
	s, ft := newTestSocket(t)
	ch := s.Channel("rooms:lobby", nil)
	_, err := ch.Join()
	require.NoError(t, err)

	// Buffered while unjoined: deadline running, not yet sent.
	push, err := ch.Push("new_msg", nil)
	require.NoError(t, err)
	assert.False(t, push.IsSent())
	assert.NotEmpty(t, push.Ref())

	require.NoError(t, s.Connect())
	ft.replyOK(ft.sentTo("rooms:lobby", eventJoin)[0], nil)
	assert.True(t, push.IsSent())
}

func TestJoinRefMatchesJoinPushRef(t *testing.T) {
	ch, ft := joinedChannel(t)

	joins := ft.sentTo("rooms:lobby", eventJoin)
	require.Len(t, joins, 1)
	assert.Equal(t, joins[0].Ref, ch.JoinRef())

	// A rejoin regenerates ref and joinRef together.
	ft.serverMessage(&Message{Topic: "rooms:lobby", Event: eventError, Payload: map[string]any{}})
	waitFor(t, func() bool { return len(ft.sentTo("rooms:lobby", eventJoin)) >= 2 })

	joins = ft.sentTo("rooms:lobby", eventJoin)
	latest := joins[len(joins)-1]
	assert.Equal(t, latest.Ref, latest.JoinRef)
	assert.NotEqual(t, joins[0].Ref, latest.Ref)
}
