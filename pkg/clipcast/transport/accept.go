package transport

import (
	"fmt"
	"net"

	"github.com/arjunv/clipcast/pkg/clipcast/types"
	"github.com/arjunv/clipcast/pkg/clipcast/wire"
)

// Connection is the demultiplexed result of Accept: exactly one of Join, P2P,
// or Copy is non-nil, matching the first message's discriminator tag.
type Connection struct {
	Join *JoinConnection
	P2P  *P2PConnection
	Copy *CopyConnection
}

// IncomingConnection pairs a demultiplexed Connection with the first message
// read off it, which callers need to know who is joining, pinging, or
// requesting a copy.
type IncomingConnection struct {
	Conn     Connection
	FirstMsg *types.Message
}

// Accept reads one length-prefixed frame off conn and classifies the
// connection by that frame's message type tag. Any other first-message
// variant is reported as an error so the caller can log and drop it.
func Accept(conn net.Conn) (*IncomingConnection, error) {
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("clipcast/transport: accept: %w", err)
	}

	switch msg.MessageType.Tag {
	case types.TagJoinRequest:
		return &IncomingConnection{
			Conn:     Connection{Join: &JoinConnection{conn: conn, dir: Incoming}},
			FirstMsg: msg,
		}, nil
	case types.TagPing:
		return &IncomingConnection{
			Conn:     Connection{P2P: &P2PConnection{conn: conn, dir: Incoming, writeMu: newWriteMutex()}},
			FirstMsg: msg,
		}, nil
	case types.TagCopyRequest:
		return &IncomingConnection{
			Conn:     Connection{Copy: &CopyConnection{conn: conn, dir: Incoming}},
			FirstMsg: msg,
		}, nil
	default:
		return nil, fmt.Errorf("%w: got %q from %s", ErrUnexpectedMessageType, msg.MessageType.Tag, conn.RemoteAddr())
	}
}
