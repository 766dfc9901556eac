package phx

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransportState is the connection state of a Transport.
type TransportState int

const (
	TransportClosed TransportState = iota
	TransportConnecting
	TransportOpen
	TransportClosing
)

func (ts TransportState) String() string {
	switch ts {
	case TransportClosed:
		return "closed"
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// TransportCallbacks are the event hooks a Transport invokes. OnOpen fires
// once the connection is established, before Connect returns. OnMessage and
// OnError fire from the transport's read loop; OnClose fires from the read
// loop or from Close, exactly once per connection.
type TransportCallbacks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Transport is the bidirectional frame connection a Socket runs over. The
// default implementation uses gorilla/websocket; tests inject fakes. A
// Transport is reusable: Connect may be called again after the connection
// closes.
type Transport interface {
	// Connect dials the endpoint and starts delivering callbacks. It
	// invokes cb.OnOpen before returning nil.
	Connect(url string, cb TransportCallbacks) error

	// Send writes one frame. Binary selects a binary frame over text.
	Send(data []byte, binary bool) error

	// Close shuts the connection down with the given close code and
	// reason, then invokes OnClose.
	Close(code int, reason string) error

	State() TransportState
}

// websocketTransport is the gorilla/websocket Transport.
type websocketTransport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	state  TransportState
	cb     TransportCallbacks
	closed bool // explicit Close happened; read loop exits silently
}

// NewWebsocketTransport returns the default gorilla/websocket transport.
func NewWebsocketTransport() Transport {
	return &websocketTransport{}
}

func (t *websocketTransport) Connect(wsURL string, cb TransportCallbacks) error {
	t.mu.Lock()
	if t.state == TransportOpen || t.state == TransportConnecting {
		t.mu.Unlock()
		return nil
	}
	t.state = TransportConnecting
	t.cb = cb
	t.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.mu.Lock()
		t.state = TransportClosed
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.state = TransportOpen
	t.closed = false
	t.mu.Unlock()

	go t.readLoop(conn)

	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return nil
}

func (t *websocketTransport) Send(data []byte, binary bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.state != TransportOpen {
		return ErrNotConnected
	}
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}
	return t.conn.WriteMessage(messageType, data)
}

func (t *websocketTransport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closed || t.conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = TransportClosing
	conn := t.conn
	cb := t.cb
	t.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	err := conn.Close()

	t.mu.Lock()
	t.conn = nil
	t.state = TransportClosed
	t.mu.Unlock()

	if cb.OnClose != nil {
		cb.OnClose(code, reason)
	}
	return err
}

func (t *websocketTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *websocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			t.mu.Lock()
			cb := t.cb
			t.mu.Unlock()
			if cb.OnMessage != nil {
				cb.OnMessage(data)
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			// Explicit Close already reported the shutdown.
			t.mu.Unlock()
			return
		}
		t.closed = true
		t.conn = nil
		t.state = TransportClosed
		cb := t.cb
		t.mu.Unlock()

		if closeErr, ok := err.(*websocket.CloseError); ok {
			if cb.OnClose != nil {
				cb.OnClose(closeErr.Code, closeErr.Text)
			}
		} else {
			if cb.OnError != nil {
				cb.OnError(err)
			}
			if cb.OnClose != nil {
				cb.OnClose(websocket.CloseAbnormalClosure, err.Error())
			}
		}
		return
	}
}
