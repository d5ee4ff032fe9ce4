package core

import (
	"fmt"

	"github.com/arjunv/clipcast/pkg/clipcast/transport"
	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

// command is the writer's work queue item. kind selects which of the other
// fields are meaningful.
type commandKind int

const (
	cmdPing commandKind = iota
	cmdCopyNotification
	cmdForwardCopyNotification
	cmdClose
)

type command struct {
	kind      commandKind
	state     types.CopyClock
	messageID types.MessageID
	ttl       uint32
	hopCount  uint32
}

// StateStore is the shared, mutex-guarded CopyClock the overlay owns. Peer
// reconciles every Ping/Pong/CopyNotification it receives against it.
type StateStore interface {
	UpdateState(incoming types.CopyClock) (updated types.CopyClock)
	Snapshot() types.CopyClock
}

// Forwarder lets a Peer hand a CopyNotification off to every other
// connected peer, without Peer needing to know how the registry is
// implemented.
type Forwarder interface {
	ForwardCopyNotification(exclude types.PeerID, state types.CopyClock, messageID types.MessageID, ttl, hopCount uint32)
}

// Peer encapsulates one live P2PConnection with one remote: a reader
// goroutine that applies incoming state and forwards copy notifications, and
// a writer goroutine that owns the outbound half and drains a command queue.
type Peer struct {
	ownID, remoteID types.PeerID
	logger          types.Logger

	commands chan command
	done     chan struct{}
}

// NewPeer spawns the reader and writer goroutines for conn and returns a
// handle to enqueue commands on it. own is this node's ID, remote is the
// peer's ID. state is the overlay's shared CopyClock; forwarder lets
// CopyNotifications reach every other connected peer. seen suppresses
// re-forwarding a CopyNotification already forwarded once.
func NewPeer(invoker Invoker, conn *transport.P2PConnection, own, remote types.PeerID, state StateStore, forwarder Forwarder, seen *SeenSet, logger types.Logger) *Peer {
	writerConn := conn.Dup()

	p := &Peer{
		ownID:    own,
		remoteID: remote,
		logger:   logger.WithFields(map[string]interface{}{"remote": remote.String()}),
		commands: make(chan command, 16),
		done:     make(chan struct{}),
	}

	invoker.Spawn(func() { p.readLoop(conn, state, forwarder, seen) })
	invoker.Spawn(func() { p.writeLoop(writerConn) })

	return p
}

func (p *Peer) readLoop(conn *transport.P2PConnection, state StateStore, forwarder Forwarder, seen *SeenSet) {
	defer close(p.done)
	defer conn.Close()

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			p.logger.Debugf("read failed, closing: %v", err)
			return
		}

		entry := p.logger.WithFields(map[string]interface{}{
			"message_type": msg.MessageType.Tag,
			"ttl":          msg.TTL,
			"hop_count":    msg.HopCount,
		})

		switch msg.MessageType.Tag {
		case types.TagPing:
			newState := state.UpdateState(msg.MessageType.State)
			if err := conn.Pong(p.ownID, newState); err != nil {
				entry.Debugf("pong failed, closing: %v", err)
				return
			}
		case types.TagPong:
			state.UpdateState(msg.MessageType.State)
		case types.TagCopyNotification:
			state.UpdateState(msg.MessageType.State)
			if msg.TTL <= 1 {
				entry.Debug("copy notification ttl exhausted, not forwarding")
				continue
			}
			if seen != nil && seen.CheckAndMark(msg.MessageID) {
				entry.Debug("copy notification already forwarded once, dropping")
				continue
			}
			forwarder.ForwardCopyNotification(p.remoteID, msg.MessageType.State, msg.MessageID, msg.TTL-1, msg.HopCount+1)
		default:
			entry.Warn("unexpected message type on p2p connection, closing")
			return
		}
	}
}

func (p *Peer) writeLoop(conn *transport.P2PConnection) {
	defer conn.Close()

	for {
		select {
		case cmd := <-p.commands:
			switch cmd.kind {
			case cmdPing:
				if err := conn.Ping(p.ownID, cmd.state); err != nil {
					p.logger.WithFields(map[string]interface{}{
						"message_type": types.TagPing,
					}).Debugf("send failed, closing: %v", err)
					return
				}
			case cmdCopyNotification:
				if err := conn.NotifyCopy(p.ownID, cmd.state); err != nil {
					p.logger.WithFields(map[string]interface{}{
						"message_type": types.TagCopyNotification,
					}).Debugf("send failed, closing: %v", err)
					return
				}
			case cmdForwardCopyNotification:
				if err := conn.ForwardNotifyCopy(p.ownID, cmd.state, cmd.messageID, cmd.ttl, cmd.hopCount); err != nil {
					p.logger.WithFields(map[string]interface{}{
						"message_type": types.TagCopyNotification,
						"ttl":          cmd.ttl,
						"hop_count":    cmd.hopCount,
					}).Debugf("forward send failed, closing: %v", err)
					return
				}
			case cmdClose:
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *Peer) enqueue(cmd command) error {
	// Check done first: the command channel is buffered, so a send would
	// otherwise succeed even after the reader has exited.
	select {
	case <-p.done:
		return fmt.Errorf("clipcast/core: peer %s is closed", p.remoteID)
	default:
	}
	select {
	case p.commands <- cmd:
		return nil
	case <-p.done:
		return fmt.Errorf("clipcast/core: peer %s is closed", p.remoteID)
	}
}

// Ping enqueues a Ping carrying state.
func (p *Peer) Ping(state types.CopyClock) error {
	return p.enqueue(command{kind: cmdPing, state: state})
}

// NotifyCopy enqueues a fresh CopyNotification.
func (p *Peer) NotifyCopy(state types.CopyClock) error {
	return p.enqueue(command{kind: cmdCopyNotification, state: state})
}

// ForwardNotifyCopy enqueues forwarding of an in-flight CopyNotification.
func (p *Peer) ForwardNotifyCopy(state types.CopyClock, messageID types.MessageID, ttl, hopCount uint32) error {
	return p.enqueue(command{kind: cmdForwardCopyNotification, state: state, messageID: messageID, ttl: ttl, hopCount: hopCount})
}

// Close signals the writer to stop and the reader's connection to close.
// Close is advisory: it may race with the reader/writer winding down on
// their own after a socket error, which is harmless.
func (p *Peer) Close() {
	select {
	case p.commands <- command{kind: cmdClose}:
	case <-p.done:
	}
}

// RemoteID returns the PeerID this Peer represents.
func (p *Peer) RemoteID() types.PeerID {
	return p.remoteID
}
