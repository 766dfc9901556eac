// Echo Agent — a deployable channel echo service built with the phx SDK.
//
// Joins a topic and pushes every "echo:request" event back as an
// "echo:reply" with the same body.
//
// Configuration via environment variables:
//
//	PHX_SOCKET_URL — WebSocket URL of the Phoenix endpoint
//	PHX_API_KEY    — API key for authentication (optional)
//	ECHO_TOPIC     — topic to join (default "echo:lobby")
//
// Usage:
//
//	PHX_SOCKET_URL=ws://localhost:4000/socket/websocket \
//	  go run ./cmd/echo-agent
package main

import (
	"log"
	"os"
	"os/signal"

	phx "github.com/phxkit/go-sdk"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	topic := os.Getenv("ECHO_TOPIC")
	if topic == "" {
		topic = "echo:lobby"
	}

	socket, err := phx.NewSocket(phx.Config{
		// URL and APIKey read from PHX_* env vars by default
	}, phx.LogErrors(log.Default()),
		phx.WithLogger(log.Default()),
	)
	if err != nil {
		log.Fatalf("NewSocket: %v", err)
	}
	if err := socket.Connect(); err != nil {
		log.Fatalf("Connect: %v", err)
	}
	defer socket.Disconnect()

	channel := socket.Channel(topic, map[string]any{"role": "echo"})

	channel.On("echo:request", func(msg *phx.Message) {
		log.Printf("echo request: %v", msg.Payload)
		push, err := channel.Push("echo:reply", msg.Payload)
		if err != nil {
			log.Printf("push: %v", err)
			return
		}
		push.Receive("error", func(reply *phx.ReplyPayload) {
			log.Printf("echo rejected: %v", reply.Response)
		})
	})

	join, err := channel.Join()
	if err != nil {
		log.Fatalf("Join: %v", err)
	}
	join.Receive("ok", func(*phx.ReplyPayload) {
		log.Printf("joined %s", topic)
	})
	join.Receive("error", func(reply *phx.ReplyPayload) {
		log.Printf("join rejected: %v", reply.Response)
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	log.Println("shutting down")
	channel.Leave()
}
