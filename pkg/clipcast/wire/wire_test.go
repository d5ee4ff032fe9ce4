package wire

import (
	"bytes"
	"testing"

	"github.com/arjunv/clipcast/pkg/clipcast/clock"
	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

func TestWriteReadRoundTrip(t *testing.T) {
	ep, err := types.ParseEndpoint("127.0.0.1:9000")
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}

	original := &types.Message{
		MessageID: NewMessageID(),
		MessageType: types.MessageType{
			Tag:   types.TagCopyNotification,
			State: types.NewCopyClock(clock.VectorClock{ep.String(): 3}, ep),
		},
		SrcID:    ep,
		TTL:      8,
		HopCount: 0,
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, original); err != nil {
		t.Fatalf("write message: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	if got.MessageID != original.MessageID {
		t.Fatalf("message id mismatch: got %v want %v", got.MessageID, original.MessageID)
	}
	if got.MessageType.Tag != types.TagCopyNotification {
		t.Fatalf("tag mismatch: got %v", got.MessageType.Tag)
	}
	if !got.SrcID.Equal(ep) {
		t.Fatalf("src id mismatch: got %v want %v", got.SrcID, ep)
	}
	if got.TTL != 8 {
		t.Fatalf("ttl mismatch: got %d", got.TTL)
	}
	if !got.MessageType.State.Clock.Equal(original.MessageType.State.Clock) {
		t.Fatalf("clock mismatch: got %v want %v", got.MessageType.State.Clock, original.MessageType.State.Clock)
	}
}

func TestJoinRequestUnitVariant(t *testing.T) {
	ep, _ := types.ParseEndpoint("10.0.0.1:1234")
	original := &types.Message{
		MessageID:   NewMessageID(),
		MessageType: types.MessageType{Tag: types.TagJoinRequest},
		SrcID:       ep,
		TTL:         8,
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, original); err != nil {
		t.Fatalf("write message: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if got.MessageType.Tag != types.TagJoinRequest {
		t.Fatalf("expected JoinRequest tag, got %v", got.MessageType.Tag)
	}
}

func TestShortBodyErrors(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.WriteString("short")

	if _, err := ReadMessage(&buf); err == nil {
		t.Fatalf("expected error reading truncated body")
	}
}

func TestMessageIDsAreDistinct(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()
	if a == b {
		t.Fatalf("expected distinct message ids")
	}
}
