package transport

import (
	"fmt"
	"net"

	"github.com/arjunv/clipcast/pkg/clipcast/types"
	"github.com/arjunv/clipcast/pkg/clipcast/wire"
)

func dial(remote types.PeerID) (net.Conn, error) {
	conn, err := net.Dial("tcp4", remote.String())
	if err != nil {
		return nil, fmt.Errorf("clipcast/transport: dial %s: %w", remote, err)
	}
	return conn, nil
}

// JoinConnection is the connection kind used when a peer joins the overlay
// or floods a join request on behalf of another node.
type JoinConnection struct {
	conn net.Conn
	dir  Direction
}

// OpenJoin dials remote and sends a JoinRequest announcing local, with the
// given TTL, starting a new flood.
func OpenJoin(local, remote types.PeerID, ttl uint32) (*JoinConnection, error) {
	conn, err := dial(remote)
	if err != nil {
		return nil, err
	}
	msg := &types.Message{
		MessageID:   wire.NewMessageID(),
		MessageType: types.MessageType{Tag: types.TagJoinRequest},
		SrcID:       local,
		TTL:         ttl,
		HopCount:    0,
	}
	if err := wire.WriteMessage(conn, msg); err != nil {
		conn.Close()
		return nil, err
	}
	return &JoinConnection{conn: conn, dir: Outgoing}, nil
}

// ForwardJoin dials remote, forwarding incoming as part of the flooding
// procedure: ttl-1, hop_count+1, message_id and src_id unchanged so
// downstream peers learn the joiner's identity.
func ForwardJoin(remote types.PeerID, incoming *types.Message) (*JoinConnection, error) {
	conn, err := dial(remote)
	if err != nil {
		return nil, err
	}
	msg := &types.Message{
		MessageID:   incoming.MessageID,
		MessageType: types.MessageType{Tag: types.TagJoinRequest},
		SrcID:       incoming.SrcID,
		TTL:         incoming.TTL - 1,
		HopCount:    incoming.HopCount + 1,
	}
	if err := wire.WriteMessage(conn, msg); err != nil {
		conn.Close()
		return nil, err
	}
	return &JoinConnection{conn: conn, dir: Outgoing}, nil
}

// Respond replies to incoming with a JoinResponse naming ownID as the
// responder and incoming.SrcID as the target. Only valid on an incoming
// connection.
func (j *JoinConnection) Respond(ownID types.PeerID, incoming *types.Message) error {
	if j.dir != Incoming {
		return ErrWrongDirection
	}
	msg := &types.Message{
		MessageID: incoming.MessageID,
		MessageType: types.MessageType{
			Tag:    types.TagJoinResponse,
			Target: incoming.SrcID,
		},
		SrcID:    ownID,
		TTL:      incoming.TTL,
		HopCount: incoming.HopCount,
	}
	return wire.WriteMessage(j.conn, msg)
}

// ForwardResponse reverse-path routes a downstream JoinResponse (incoming)
// back toward target, preserving the responder's SrcID. Only valid on an
// incoming connection.
func (j *JoinConnection) ForwardResponse(incoming *types.Message, target types.PeerID) error {
	if j.dir != Incoming {
		return ErrWrongDirection
	}
	msg := &types.Message{
		MessageID: incoming.MessageID,
		MessageType: types.MessageType{
			Tag:    types.TagJoinResponse,
			Target: target,
		},
		SrcID:    incoming.SrcID,
		TTL:      incoming.TTL,
		HopCount: incoming.HopCount,
	}
	return wire.WriteMessage(j.conn, msg)
}

// ReadMessage reads a JoinResponse frame. Only valid on an outgoing
// connection.
func (j *JoinConnection) ReadMessage() (*types.Message, error) {
	if j.dir != Outgoing {
		return nil, ErrWrongDirection
	}
	return wire.ReadMessage(j.conn)
}

// Close closes the underlying socket.
func (j *JoinConnection) Close() error {
	return j.conn.Close()
}

// RemoteAddr returns the remote address of the underlying socket, useful
// for diagnostics.
func (j *JoinConnection) RemoteAddr() net.Addr {
	return j.conn.RemoteAddr()
}

// CopyConnection is the single-shot request/response connection kind used
// to fetch the clipboard from whichever peer last performed a copy.
type CopyConnection struct {
	conn net.Conn
	dir  Direction
}

// OpenCopy dials remote and sends a CopyRequest for contentType.
func OpenCopy(local, remote types.PeerID, contentType string) (*CopyConnection, error) {
	conn, err := dial(remote)
	if err != nil {
		return nil, err
	}
	msg := &types.Message{
		MessageID: wire.NewMessageID(),
		MessageType: types.MessageType{
			Tag:         types.TagCopyRequest,
			ContentType: contentType,
		},
		SrcID:    local,
		TTL:      1,
		HopCount: 0,
	}
	if err := wire.WriteMessage(conn, msg); err != nil {
		conn.Close()
		return nil, err
	}
	return &CopyConnection{conn: conn, dir: Outgoing}, nil
}

// Respond replies with the clipboard's current text. Only valid on an
// incoming connection.
func (c *CopyConnection) Respond(local types.PeerID, text string) error {
	if c.dir != Incoming {
		return ErrWrongDirection
	}
	msg := &types.Message{
		MessageID:   wire.NewMessageID(),
		MessageType: types.MessageType{Tag: types.TagTextResponse, Text: text},
		SrcID:       local,
		TTL:         1,
		HopCount:    0,
	}
	return wire.WriteMessage(c.conn, msg)
}

// RespondError replies with an ErrorResponse carrying the local state, used
// when this node does not currently hold the latest clipboard. Only valid
// on an incoming connection.
func (c *CopyConnection) RespondError(local types.PeerID, state types.CopyClock, errMsg string) error {
	if c.dir != Incoming {
		return ErrWrongDirection
	}
	msg := &types.Message{
		MessageID: wire.NewMessageID(),
		MessageType: types.MessageType{
			Tag:   types.TagErrorResponse,
			State: state,
			Error: errMsg,
		},
		SrcID:    local,
		TTL:      1,
		HopCount: 0,
	}
	return wire.WriteMessage(c.conn, msg)
}

// ReadMessage reads the single response frame. Only valid on an outgoing
// connection.
func (c *CopyConnection) ReadMessage() (*types.Message, error) {
	if c.dir != Outgoing {
		return nil, ErrWrongDirection
	}
	return wire.ReadMessage(c.conn)
}

// Close closes the underlying socket.
func (c *CopyConnection) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address of the underlying socket.
func (c *CopyConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// P2PConnection is the bidirectional, long-lived connection kind used to
// exchange ping/pong soft state and copy notifications between two
// directly-connected peers.
//
// The write half is serialized behind writeMu so an independent reader
// goroutine and writer goroutine (see pkg/clipcast/core.Peer) can safely
// share one net.Conn concurrently.
type P2PConnection struct {
	conn    net.Conn
	dir     Direction
	writeMu *writeMutex
}

type writeMutex struct {
	ch chan struct{}
}

func newWriteMutex() *writeMutex {
	wm := &writeMutex{ch: make(chan struct{}, 1)}
	wm.ch <- struct{}{}
	return wm
}

func (w *writeMutex) lock()   { <-w.ch }
func (w *writeMutex) unlock() { w.ch <- struct{}{} }

// OpenP2P dials remote and sends an initial Ping carrying state.
func OpenP2P(local, remote types.PeerID, state types.CopyClock) (*P2PConnection, error) {
	conn, err := dial(remote)
	if err != nil {
		return nil, err
	}
	p := &P2PConnection{conn: conn, dir: Outgoing, writeMu: newWriteMutex()}
	if err := p.Ping(local, state); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// Dup returns a second handle onto the same underlying socket, sharing the
// write mutex, so a writer goroutine can use it independently of whatever
// goroutine is reading.
func (p *P2PConnection) Dup() *P2PConnection {
	return &P2PConnection{conn: p.conn, dir: p.dir, writeMu: p.writeMu}
}

func (p *P2PConnection) write(msg *types.Message) error {
	p.writeMu.lock()
	defer p.writeMu.unlock()
	return wire.WriteMessage(p.conn, msg)
}

// Ping sends a Ping carrying state.
func (p *P2PConnection) Ping(local types.PeerID, state types.CopyClock) error {
	return p.write(&types.Message{
		MessageID:   wire.NewMessageID(),
		MessageType: types.MessageType{Tag: types.TagPing, State: state},
		SrcID:       local,
		TTL:         1,
		HopCount:    0,
	})
}

// Pong replies to a Ping with state.
func (p *P2PConnection) Pong(local types.PeerID, state types.CopyClock) error {
	return p.write(&types.Message{
		MessageID:   wire.NewMessageID(),
		MessageType: types.MessageType{Tag: types.TagPong, State: state},
		SrcID:       local,
		TTL:         1,
		HopCount:    0,
	})
}

// NotifyCopy sends a fresh CopyNotification with TTL=8, starting a new
// flood from this node.
func (p *P2PConnection) NotifyCopy(local types.PeerID, state types.CopyClock) error {
	return p.write(&types.Message{
		MessageID:   wire.NewMessageID(),
		MessageType: types.MessageType{Tag: types.TagCopyNotification, State: state},
		SrcID:       local,
		TTL:         8,
		HopCount:    0,
	})
}

// ForwardNotifyCopy forwards an in-flight CopyNotification, preserving
// messageID across the hop so duplicate-forward suppression can work.
func (p *P2PConnection) ForwardNotifyCopy(local types.PeerID, state types.CopyClock, messageID types.MessageID, ttl, hopCount uint32) error {
	return p.write(&types.Message{
		MessageID:   messageID,
		MessageType: types.MessageType{Tag: types.TagCopyNotification, State: state},
		SrcID:       local,
		TTL:         ttl,
		HopCount:    hopCount,
	})
}

// ReadMessage reads the next frame off the socket.
func (p *P2PConnection) ReadMessage() (*types.Message, error) {
	return wire.ReadMessage(p.conn)
}

// Close closes the underlying socket. Safe to call from either the reader
// or the writer handle; net.Conn.Close is safe for concurrent use.
func (p *P2PConnection) Close() error {
	return p.conn.Close()
}

// RemoteAddr returns the remote address of the underlying socket.
func (p *P2PConnection) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}
