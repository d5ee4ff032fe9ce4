package types

import (
	"encoding/json"
	"fmt"
)

// MessageID is a 16-byte opaque identifier, assumed unique with overwhelming
// probability.
type MessageID [16]byte

// Tag names the MessageType variant. One JSON key per variant is used at the
// top level of the serialized message_type object; unit variants (no
// payload) serialize as the bare tag string.
type Tag string

const (
	TagJoinRequest      Tag = "JoinRequest"
	TagJoinResponse     Tag = "JoinResponse"
	TagPing             Tag = "Ping"
	TagPong             Tag = "Pong"
	TagCopyNotification Tag = "CopyNotification"
	TagCopyRequest      Tag = "CopyRequest"
	TagTextResponse     Tag = "TextResponse"
	TagErrorResponse    Tag = "ErrorResponse"
)

// MessageType is a tagged union over the eight protocol variants. Tag
// selects which payload fields are meaningful (none for JoinRequest, both
// State and Error for ErrorResponse, one for every other variant).
type MessageType struct {
	Tag Tag

	// JoinResponse
	Target Endpoint

	// Ping / Pong / CopyNotification / ErrorResponse
	State CopyClock

	// CopyRequest
	ContentType string

	// TextResponse
	Text string

	// ErrorResponse
	Error string
}

// Message is exchanged between two peers. Every message has an ID, a
// source, a TTL, and a hop count; MessageType carries the rest.
type Message struct {
	MessageID   MessageID   `json:"message_id"`
	MessageType MessageType `json:"message_type"`
	SrcID       PeerID      `json:"src_id"`
	TTL         uint32      `json:"ttl"`
	HopCount    uint32      `json:"hop_count"`
}

// joinResponsePayload, etc. are the per-variant wire payload shapes used
// only during (un)marshaling.
type joinResponsePayload struct {
	Target Endpoint `json:"target"`
}

type statePayload struct {
	State CopyClock `json:"state"`
}

type copyRequestPayload struct {
	ContentType string `json:"content_type"`
}

type textResponsePayload struct {
	Text string `json:"text"`
}

type errorResponsePayload struct {
	State CopyClock `json:"state"`
	Error string    `json:"error"`
}

// MarshalJSON renders the tagged union as a single-key object, or a bare
// string for unit variants.
func (m MessageType) MarshalJSON() ([]byte, error) {
	switch m.Tag {
	case TagJoinRequest:
		return json.Marshal(string(TagJoinRequest))
	case TagJoinResponse:
		return json.Marshal(map[string]joinResponsePayload{
			string(TagJoinResponse): {Target: m.Target},
		})
	case TagPing:
		return json.Marshal(map[string]statePayload{
			string(TagPing): {State: m.State},
		})
	case TagPong:
		return json.Marshal(map[string]statePayload{
			string(TagPong): {State: m.State},
		})
	case TagCopyNotification:
		return json.Marshal(map[string]statePayload{
			string(TagCopyNotification): {State: m.State},
		})
	case TagCopyRequest:
		return json.Marshal(map[string]copyRequestPayload{
			string(TagCopyRequest): {ContentType: m.ContentType},
		})
	case TagTextResponse:
		return json.Marshal(map[string]textResponsePayload{
			string(TagTextResponse): {Text: m.Text},
		})
	case TagErrorResponse:
		return json.Marshal(map[string]errorResponsePayload{
			string(TagErrorResponse): {State: m.State, Error: m.Error},
		})
	default:
		return nil, fmt.Errorf("clipcast/types: unknown message tag %q", m.Tag)
	}
}

// UnmarshalJSON parses either a bare tag string (unit variants) or a
// single-key object carrying the variant's payload.
func (m *MessageType) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if Tag(asString) != TagJoinRequest {
			return fmt.Errorf("clipcast/types: unexpected unit variant %q", asString)
		}
		m.Tag = TagJoinRequest
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("clipcast/types: message_type is neither a string nor an object: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("clipcast/types: message_type object must have exactly one key, got %d", len(raw))
	}

	for key, payload := range raw {
		switch Tag(key) {
		case TagJoinResponse:
			var p joinResponsePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.Target = TagJoinResponse, p.Target
		case TagPing:
			var p statePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.State = TagPing, p.State
		case TagPong:
			var p statePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.State = TagPong, p.State
		case TagCopyNotification:
			var p statePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.State = TagCopyNotification, p.State
		case TagCopyRequest:
			var p copyRequestPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.ContentType = TagCopyRequest, p.ContentType
		case TagTextResponse:
			var p textResponsePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.Text = TagTextResponse, p.Text
		case TagErrorResponse:
			var p errorResponsePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			m.Tag, m.State, m.Error = TagErrorResponse, p.State, p.Error
		default:
			return fmt.Errorf("clipcast/types: unknown message_type variant %q", key)
		}
	}
	return nil
}
