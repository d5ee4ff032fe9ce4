// Package wire implements the length-prefixed framing used on every
// clipcast connection: a 4-byte big-endian length followed by a JSON body.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gofrs/uuid"

	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

// MaxMessageSize bounds how large a single frame's body may be, guarding
// against a misbehaving or malicious peer claiming an unbounded length
// prefix.
const MaxMessageSize = 16 * 1024 * 1024

// NewMessageID draws a fresh 16-byte message identifier from a
// cryptographically indifferent random source.
func NewMessageID() types.MessageID {
	id, err := uuid.NewV4()
	if err != nil {
		// uuid.NewV4 only fails if the system RNG is broken beyond repair;
		// there is nothing a caller could do differently with an error
		// return here.
		panic(fmt.Sprintf("clipcast/wire: unable to generate message id: %v", err))
	}
	return types.MessageID(id)
}

// WriteMessage writes msg to w as a length-prefixed JSON frame. A short
// write is treated as an error.
func WriteMessage(w io.Writer, msg *types.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("clipcast/wire: marshal message: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))

	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("clipcast/wire: write length prefix: %w", err)
	}

	n, err := w.Write(body)
	if err != nil {
		return fmt.Errorf("clipcast/wire: write body: %w", err)
	}
	if n != len(body) {
		return fmt.Errorf("clipcast/wire: short write, wrote %d bytes, expected %d", n, len(body))
	}

	return nil
}

// ReadMessage reads one length-prefixed JSON frame from r.
func ReadMessage(r io.Reader) (*types.Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("clipcast/wire: read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(lenPrefix[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("clipcast/wire: frame of %d bytes exceeds max size %d", length, MaxMessageSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("clipcast/wire: read body: %w", err)
	}

	var msg types.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("clipcast/wire: unmarshal message: %w", err)
	}

	return &msg, nil
}
