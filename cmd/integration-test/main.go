// Integration test harness — exercises the SDK against a live Phoenix
// endpoint: join, push/reply, and leave. Broadcast delivery and rejoin
// after a dropped connection are not exercised.
//
// Each run tags its topic with a fresh UUID so parallel runs don't collide.
//
// Usage:
//
//	PHX_SOCKET_URL=ws://localhost:4000/socket/websocket \
//	  go run ./cmd/integration-test
package main

import (
	"log"
	"time"

	"github.com/google/uuid"
	phx "github.com/phxkit/go-sdk"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	runID := uuid.New().String()
	topic := "test:" + runID
	log.Printf("run %s", runID)

	socket, err := phx.NewSocket(phx.Config{}, phx.LogErrors(log.Default()),
		phx.WithLogger(log.Default()),
		phx.WithHeartbeatInterval(5*time.Second),
	)
	if err != nil {
		log.Fatalf("NewSocket: %v", err)
	}
	if err := socket.Connect(); err != nil {
		log.Fatalf("Connect: %v", err)
	}
	defer socket.Disconnect()

	channel := socket.Channel(topic, map[string]any{"run_id": runID})

	joined := make(chan struct{})
	join, err := channel.Join()
	if err != nil {
		log.Fatalf("Join: %v", err)
	}
	join.Receive("ok", func(*phx.ReplyPayload) { close(joined) })
	join.Receive("error", func(reply *phx.ReplyPayload) {
		log.Fatalf("join rejected: %v", reply.Response)
	})

	select {
	case <-joined:
		log.Printf("PASS join %s", topic)
	case <-time.After(10 * time.Second):
		log.Fatal("FAIL join timed out")
	}

	replied := make(chan struct{})
	push, err := channel.Push("ping", map[string]any{"run_id": runID})
	if err != nil {
		log.Fatalf("Push: %v", err)
	}
	push.Receive("ok", func(reply *phx.ReplyPayload) {
		log.Printf("PASS push reply: %v", reply.Response)
		close(replied)
	})
	push.Receive("timeout", func(*phx.ReplyPayload) {
		log.Fatal("FAIL push timed out")
	})
	<-replied

	left := make(chan struct{})
	channel.Leave().Receive("ok", func(*phx.ReplyPayload) { close(left) })
	select {
	case <-left:
		log.Println("PASS leave")
	case <-time.After(10 * time.Second):
		log.Fatal("FAIL leave timed out")
	}

	log.Println("all scenarios passed")
}
