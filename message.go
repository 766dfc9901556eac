package phx

import (
	"encoding/json"
	"fmt"
)

// Reserved Phoenix Channel events.
const (
	eventJoin  = "phx_join"
	eventLeave = "phx_leave"
	eventReply = "phx_reply"
	eventClose = "phx_close"
	eventError = "phx_error"

	heartbeatTopic = "phoenix"
	heartbeatEvent = "heartbeat"
)

// Message is the wire envelope carried in both directions.
//
// Ref correlates a push with its reply; JoinRef identifies the join
// incarnation the message belongs to. Both are empty strings when absent
// on the wire (null in JSON).
type Message struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload any
}

// BinaryPayload marks a payload that travels as a Phoenix binary frame
// instead of JSON text.
type BinaryPayload struct {
	Data []byte
}

// IsBinary reports whether the message carries a binary payload.
func (m *Message) IsBinary() bool {
	_, ok := m.Payload.(BinaryPayload)
	return ok
}

// ReplyPayload is the shape of a phx_reply payload. Status drives Push
// receivers; Response holds the server's response object.
type ReplyPayload struct {
	Status   string `json:"status"`
	Response any    `json:"response"`
}

// parseReply extracts a ReplyPayload from a decoded phx_reply payload.
func parseReply(payload any) (*ReplyPayload, error) {
	if rp, ok := payload.(*ReplyPayload); ok {
		return rp, nil
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("reply payload is not an object: %T", payload)
	}
	status, ok := m["status"].(string)
	if !ok {
		return nil, fmt.Errorf("reply payload missing status")
	}
	return &ReplyPayload{Status: status, Response: m["response"]}, nil
}

// replyEventName is the synthetic event a Push subscribes to for its reply.
func replyEventName(ref string) string {
	return "chan_reply_" + ref
}

// Serializer encodes outbound envelopes and decodes inbound frames.
type Serializer interface {
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)

	// Vsn is the protocol version advertised in the connect URL.
	Vsn() string
}

// Binary frame kinds and header sizes for the V2 binary protocol.
const (
	kindPush      byte = 0
	kindReply     byte = 1
	kindBroadcast byte = 2

	binaryHeaderLength = 1
	binaryMetaLength   = 4
)

// V2Serializer implements the Phoenix V2 wire format: JSON array frames
// [join_ref, ref, topic, event, payload] plus the binary frame variant for
// BinaryPayload messages.
type V2Serializer struct{}

func (V2Serializer) Vsn() string { return "2.0.0" }

func (s V2Serializer) Encode(msg *Message) ([]byte, error) {
	if msg.IsBinary() {
		return s.binaryEncode(msg)
	}
	frame := []any{
		nullable(msg.JoinRef),
		nullable(msg.Ref),
		msg.Topic,
		msg.Event,
		msg.Payload,
	}
	return json.Marshal(frame)
}

func (s V2Serializer) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if data[0] == kindPush || data[0] == kindReply || data[0] == kindBroadcast {
		return s.binaryDecode(data)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(frame) != 5 {
		return nil, fmt.Errorf("invalid frame: expected 5 elements, got %d", len(frame))
	}

	msg := &Message{}
	if err := decodeNullableString(frame[0], &msg.JoinRef); err != nil {
		return nil, fmt.Errorf("decode join_ref: %w", err)
	}
	if err := decodeNullableString(frame[1], &msg.Ref); err != nil {
		return nil, fmt.Errorf("decode ref: %w", err)
	}
	if err := json.Unmarshal(frame[2], &msg.Topic); err != nil {
		return nil, fmt.Errorf("decode topic: %w", err)
	}
	if err := json.Unmarshal(frame[3], &msg.Event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	var payload any
	if err := json.Unmarshal(frame[4], &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	msg.Payload = payload
	return msg, nil
}

// binaryEncode writes a push frame: kind byte, four meta length bytes,
// join_ref/ref/topic/event strings, then the raw payload.
func (s V2Serializer) binaryEncode(msg *Message) ([]byte, error) {
	bin, ok := msg.Payload.(BinaryPayload)
	if !ok {
		return nil, fmt.Errorf("payload is not binary")
	}

	metaLength := binaryMetaLength + len(msg.JoinRef) + len(msg.Ref) + len(msg.Topic) + len(msg.Event)
	buf := make([]byte, 0, binaryHeaderLength+metaLength+len(bin.Data))
	buf = append(buf, kindPush)
	buf = append(buf, byte(len(msg.JoinRef)), byte(len(msg.Ref)), byte(len(msg.Topic)), byte(len(msg.Event)))
	buf = append(buf, msg.JoinRef...)
	buf = append(buf, msg.Ref...)
	buf = append(buf, msg.Topic...)
	buf = append(buf, msg.Event...)
	buf = append(buf, bin.Data...)
	return buf, nil
}

func (s V2Serializer) binaryDecode(data []byte) (*Message, error) {
	switch data[0] {
	case kindPush:
		return s.decodeBinaryPush(data)
	case kindReply:
		return s.decodeBinaryReply(data)
	case kindBroadcast:
		return s.decodeBinaryBroadcast(data)
	default:
		return nil, fmt.Errorf("unknown binary frame kind: %d", data[0])
	}
}

// decodeBinaryPush decodes a server push: join_ref/topic/event meta, no ref.
func (s V2Serializer) decodeBinaryPush(data []byte) (*Message, error) {
	const metaOffset = binaryHeaderLength + binaryMetaLength - 1 // pushes carry no ref
	if len(data) < metaOffset {
		return nil, fmt.Errorf("binary push frame too short")
	}
	joinRefSize := int(data[1])
	topicSize := int(data[2])
	eventSize := int(data[3])

	offset := metaOffset
	if len(data) < offset+joinRefSize+topicSize+eventSize {
		return nil, fmt.Errorf("binary push frame truncated")
	}

	joinRef := string(data[offset : offset+joinRefSize])
	offset += joinRefSize
	topic := string(data[offset : offset+topicSize])
	offset += topicSize
	event := string(data[offset : offset+eventSize])
	offset += eventSize

	return &Message{
		JoinRef: joinRef,
		Topic:   topic,
		Event:   event,
		Payload: BinaryPayload{Data: data[offset:]},
	}, nil
}

// decodeBinaryReply decodes a reply frame. The event slot on the wire holds
// the reply status; the decoded message is a phx_reply with a
// status/response payload so replies route identically to JSON ones.
func (s V2Serializer) decodeBinaryReply(data []byte) (*Message, error) {
	const metaOffset = binaryHeaderLength + binaryMetaLength
	if len(data) < metaOffset {
		return nil, fmt.Errorf("binary reply frame too short")
	}
	joinRefSize := int(data[1])
	refSize := int(data[2])
	topicSize := int(data[3])
	eventSize := int(data[4])

	offset := metaOffset
	if len(data) < offset+joinRefSize+refSize+topicSize+eventSize {
		return nil, fmt.Errorf("binary reply frame truncated")
	}

	joinRef := string(data[offset : offset+joinRefSize])
	offset += joinRefSize
	ref := string(data[offset : offset+refSize])
	offset += refSize
	topic := string(data[offset : offset+topicSize])
	offset += topicSize
	status := string(data[offset : offset+eventSize])
	offset += eventSize

	return &Message{
		JoinRef: joinRef,
		Ref:     ref,
		Topic:   topic,
		Event:   eventReply,
		Payload: map[string]any{
			"status":   status,
			"response": BinaryPayload{Data: data[offset:]},
		},
	}, nil
}

func (s V2Serializer) decodeBinaryBroadcast(data []byte) (*Message, error) {
	const metaOffset = binaryHeaderLength + 2
	if len(data) < metaOffset {
		return nil, fmt.Errorf("binary broadcast frame too short")
	}
	topicSize := int(data[1])
	eventSize := int(data[2])

	offset := metaOffset
	if len(data) < offset+topicSize+eventSize {
		return nil, fmt.Errorf("binary broadcast frame truncated")
	}

	topic := string(data[offset : offset+topicSize])
	offset += topicSize
	event := string(data[offset : offset+eventSize])
	offset += eventSize

	return &Message{
		Topic:   topic,
		Event:   event,
		Payload: BinaryPayload{Data: data[offset:]},
	}, nil
}

// V1Serializer implements the Phoenix V1 wire format: a JSON object with
// topic/event/payload/ref fields. Binary payloads are not supported.
type V1Serializer struct{}

func (V1Serializer) Vsn() string { return "1.0.0" }

type wireV1 struct {
	JoinRef *string `json:"join_ref,omitempty"`
	Ref     *string `json:"ref"`
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Payload any     `json:"payload"`
}

func (V1Serializer) Encode(msg *Message) ([]byte, error) {
	if msg.IsBinary() {
		return nil, fmt.Errorf("v1 serializer does not support binary payloads")
	}
	w := wireV1{
		Topic:   msg.Topic,
		Event:   msg.Event,
		Payload: msg.Payload,
	}
	if msg.JoinRef != "" {
		w.JoinRef = &msg.JoinRef
	}
	if msg.Ref != "" {
		w.Ref = &msg.Ref
	}
	return json.Marshal(w)
}

func (V1Serializer) Decode(data []byte) (*Message, error) {
	var w struct {
		JoinRef *string `json:"join_ref"`
		Ref     *string `json:"ref"`
		Topic   string  `json:"topic"`
		Event   string  `json:"event"`
		Payload any     `json:"payload"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	msg := &Message{
		Topic:   w.Topic,
		Event:   w.Event,
		Payload: w.Payload,
	}
	if w.JoinRef != nil {
		msg.JoinRef = *w.JoinRef
	}
	if w.Ref != nil {
		msg.Ref = *w.Ref
	}
	return msg, nil
}

// nullable renders an empty ref as JSON null, matching the server's framing.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decodeNullableString(raw json.RawMessage, dst *string) error {
	if string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
