// Package phx provides a Go client for Phoenix Channels: multiplexed,
// topic-oriented messaging over a single WebSocket connection.
//
// The package exposes three core types:
//
//   - Socket: owns the transport, multiplexes topics, sends heartbeats,
//     and reconnects with backoff after transport failures
//   - Channel: the per-topic join/leave state machine with event
//     subscriptions and automatic rejoin
//   - Push: one outbound request tracked for reply correlation and timeout
//
// Basic usage:
//
//	socket, err := phx.NewSocket(phx.Config{
//	    URL: "ws://localhost:4000/socket/websocket",
//	}, phx.LogErrors(log.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := socket.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//
//	channel := socket.Channel("rooms:lobby", nil)
//	join, err := channel.Join()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	join.Receive("ok", func(reply *phx.ReplyPayload) {
//	    log.Println("joined")
//	})
//
//	channel.On("new_msg", func(msg *phx.Message) {
//	    log.Println("received:", msg.Payload)
//	})
//
//	push, err := channel.Push("new_msg", map[string]any{"body": "hi"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	push.Receive("error", func(reply *phx.ReplyPayload) {
//	    log.Println("rejected:", reply.Response)
//	})
package phx
