// Package clipcast implements the peer-to-peer overlay that distributes a
// single shared clipboard across cooperating nodes: node identity, peer set
// management, join-by-flooding with reverse-path response, periodic
// soft-state ping/pong, and copy-notification flooding with TTL and
// duplicate suppression.
package clipcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arjunv/clipcast/pkg/clipcast/clipboard"
	"github.com/arjunv/clipcast/pkg/clipcast/clock"
	"github.com/arjunv/clipcast/pkg/clipcast/core"
	"github.com/arjunv/clipcast/pkg/clipcast/logging"
	"github.com/arjunv/clipcast/pkg/clipcast/transport"
	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

// ErrNoPeersLearned is returned by PerformJoin when no bootstrap peer
// produced a usable JoinResponse.
var ErrNoPeersLearned = errors.New("clipcast: no peers learned during join")

// ErrNoPeerConnected is returned by PerformJoin when peer IDs were learned
// but no P2P connection to any of them could be established.
var ErrNoPeerConnected = errors.New("clipcast: not connected to any peer after join")

// pingPeriod is the steady-state interval between ping rounds.
const pingPeriod = 10 * time.Second

// pingJitterMinMS / pingJitterMaxMS bound the randomized initial autoping
// delay, avoiding synchronized waves across nodes that joined at once.
const pingJitterMinMS = 1000
const pingJitterMaxMS = 5000

// joinTTL is the TTL a fresh join request starts with.
const joinTTL = 8

// Overlay is one node in the clipboard overlay network.
type Overlay struct {
	ownID        types.PeerID
	ln           net.Listener
	bootstrapIDs []types.PeerID

	logger  types.Logger
	invoker core.Invoker
	seen    *core.SeenSet
	adapter clipboard.Adapter

	availableMu  sync.Mutex
	availableIDs []types.PeerID

	peersMu sync.Mutex
	peers   map[types.PeerID]*core.Peer

	stateMu sync.Mutex
	state   types.CopyClock

	clipboardMu sync.Mutex
	localText   string

	cacheMu         sync.Mutex
	cachedClipboard string
	cacheState      types.CopyClock

	ctx    context.Context
	cancel context.CancelFunc
}

// New binds a TCP listener on addr's ephemeral port, derives own_id from the
// bound address, and stores bootstrapPeers for later use by PerformJoin. The
// node does not yet accept connections or join the network; call
// StartAccepting, PerformJoin, and StartAutoping on the returned Overlay.
func New(addr net.IP, bootstrapPeers []types.PeerID, adapter clipboard.Adapter, logger types.Logger) (*Overlay, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf("%s:0", addr.String()))
	if err != nil {
		return nil, fmt.Errorf("clipcast: bind listener: %w", err)
	}

	local := ln.Addr().(*net.TCPAddr)
	ownID := types.NewEndpoint(local.IP, uint16(local.Port))

	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Overlay{
		ownID:        ownID,
		ln:           ln,
		bootstrapIDs: bootstrapPeers,
		logger:       logger.WithFields(map[string]interface{}{"own_id": ownID.String()}),
		invoker:      core.NewInvoker(),
		seen:         core.NewSeenSet(),
		adapter:      adapter,
		peers:        make(map[types.PeerID]*core.Peer),
		state:        types.NewCopyClock(clock.New(), ownID),
		cacheState:   types.NewCopyClock(clock.New(), ownID),
		ctx:          ctx,
		cancel:       cancel,
	}

	o.logger.Infof("bound to address %s", ownID)
	return o, nil
}

// OwnID returns this node's PeerID.
func (o *Overlay) OwnID() types.PeerID {
	return o.ownID
}

// Adapter returns the local clipboard adapter passed to New. The overlay
// itself never calls Read/Write on it; binding the platform clipboard to
// SetClipboard/GetClipboard is the entry point's concern. Exposing the
// handle here lets the entry point drive the two without threading a second
// reference through its own plumbing.
func (o *Overlay) Adapter() clipboard.Adapter {
	return o.adapter
}

// Shutdown stops the accept loop, the autoping loop, and every Peer actor,
// then waits for all of them to finish.
func (o *Overlay) Shutdown() error {
	o.cancel()
	err := o.ln.Close()

	o.peersMu.Lock()
	for _, p := range o.peers {
		p.Close()
	}
	o.peersMu.Unlock()

	o.invoker.Stop()
	return err
}

// UpdateState reconciles the local state against incoming and stores the
// result, implementing core.StateStore for the Peer actors.
func (o *Overlay) UpdateState(incoming types.CopyClock) types.CopyClock {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state = types.UpdateState(o.state, incoming)
	return o.state
}

// Snapshot returns the current CopyClock.
func (o *Overlay) Snapshot() types.CopyClock {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

// ForwardCopyNotification implements core.Forwarder: it hands the
// notification to every connected peer except exclude.
func (o *Overlay) ForwardCopyNotification(exclude types.PeerID, state types.CopyClock, messageID types.MessageID, ttl, hopCount uint32) {
	o.peersMu.Lock()
	snapshot := make([]*core.Peer, 0, len(o.peers))
	for id, p := range o.peers {
		if id.Equal(exclude) {
			continue
		}
		snapshot = append(snapshot, p)
	}
	o.peersMu.Unlock()

	for _, p := range snapshot {
		if err := p.ForwardNotifyCopy(state, messageID, ttl, hopCount); err != nil {
			o.logger.WithFields(map[string]interface{}{
				"remote":       p.RemoteID().String(),
				"message_type": types.TagCopyNotification,
				"ttl":          ttl,
				"hop_count":    hopCount,
			}).Debugf("forward copy notification failed: %v", err)
		}
	}
}

// SetClipboard replaces the local clipboard with text, advances the local
// clock, and floods a CopyNotification to every connected peer.
func (o *Overlay) SetClipboard(text string) {
	o.clipboardMu.Lock()
	o.localText = text
	o.clipboardMu.Unlock()

	o.stateMu.Lock()
	o.state = types.NewCopyClock(o.state.Clock.IncrClone(o.ownID.String()), o.ownID)
	newState := o.state
	o.stateMu.Unlock()

	o.logger.WithFields(map[string]interface{}{
		"last_copy_src": newState.LastCopySrc.String(),
	}).Debugf("set_clipboard: state now %+v", newState.Clock)

	o.peersMu.Lock()
	snapshot := make([]*core.Peer, 0, len(o.peers))
	for _, p := range o.peers {
		snapshot = append(snapshot, p)
	}
	o.peersMu.Unlock()

	for _, p := range snapshot {
		if err := p.NotifyCopy(newState); err != nil {
			o.logger.WithFields(map[string]interface{}{
				"remote":       p.RemoteID().String(),
				"message_type": types.TagCopyNotification,
			}).Debugf("set_clipboard: notify failed: %v", err)
		}
	}
}

// GetClipboard returns the latest clipboard text. It returns (_, false) if
// this node's platform adapter already holds the authoritative copy (the
// overlay must not echo the clipboard back to its own platform adapter).
func (o *Overlay) GetClipboard() (string, bool, error) {
	state := o.Snapshot()
	if state.LastCopySrc.Equal(o.ownID) {
		return "", false, nil
	}

	o.cacheMu.Lock()
	if o.cacheState.Equal(state) {
		cached := o.cachedClipboard
		o.cacheMu.Unlock()
		return cached, true, nil
	}
	o.cacheMu.Unlock()

	o.logger.WithFields(map[string]interface{}{
		"remote":       state.LastCopySrc.String(),
		"message_type": types.TagCopyRequest,
	}).Debug("->copy: fetching clipboard from last copier")

	conn, err := transport.OpenCopy(o.ownID, state.LastCopySrc, "text")
	if err != nil {
		return "", false, fmt.Errorf("clipcast: open copy connection to %s: %w", state.LastCopySrc, err)
	}
	defer conn.Close()

	msg, err := conn.ReadMessage()
	if err != nil {
		return "", false, fmt.Errorf("clipcast: read copy response: %w", err)
	}

	switch msg.MessageType.Tag {
	case types.TagErrorResponse:
		o.UpdateState(msg.MessageType.State)
		return "", false, fmt.Errorf("clipcast: remote replied with error: %s", msg.MessageType.Error)
	case types.TagTextResponse:
		o.cacheMu.Lock()
		o.cachedClipboard = msg.MessageType.Text
		o.cacheState = state
		o.cacheMu.Unlock()
		return msg.MessageType.Text, true, nil
	default:
		return "", false, fmt.Errorf("clipcast: unexpected response type %v", msg.MessageType.Tag)
	}
}

// StartAccepting spawns the accept loop: for each accepted stream it reads
// one frame and dispatches by its tag.
func (o *Overlay) StartAccepting() {
	o.invoker.Spawn(func() {
		for {
			conn, err := o.ln.Accept()
			if err != nil {
				select {
				case <-o.ctx.Done():
					return
				default:
				}
				o.logger.Warnf("accept failed: %v", err)
				continue
			}

			incoming, err := transport.Accept(conn)
			if err != nil {
				o.logger.WithFields(map[string]interface{}{
					"remote": conn.RemoteAddr().String(),
				}).Warnf("dropping connection, invalid first message: %v", err)
				conn.Close()
				continue
			}

			switch {
			case incoming.Conn.P2P != nil:
				o.handleP2PConnection(incoming.Conn.P2P, incoming.FirstMsg.SrcID)
			case incoming.Conn.Copy != nil:
				o.handleCopyConnection(incoming.Conn.Copy)
			case incoming.Conn.Join != nil:
				o.handleJoinConnection(incoming.Conn.Join, incoming.FirstMsg)
			}
		}
	})
}

func (o *Overlay) handleP2PConnection(conn *transport.P2PConnection, remoteID types.PeerID) {
	peer := core.NewPeer(o.invoker, conn, o.ownID, remoteID, o, o, o.seen, o.logger)

	o.peersMu.Lock()
	o.peers[remoteID] = peer
	o.peersMu.Unlock()
}

func (o *Overlay) handleCopyConnection(conn *transport.CopyConnection) {
	o.invoker.Spawn(func() {
		defer conn.Close()

		entry := o.logger.WithFields(map[string]interface{}{
			"remote": conn.RemoteAddr().String(),
		})

		state := o.Snapshot()
		if !state.LastCopySrc.Equal(o.ownID) {
			if err := conn.RespondError(o.ownID, state, "I don't have the latest clipboard"); err != nil {
				entry.Debugf("<-copy: respond error failed: %v", err)
			}
			return
		}

		o.clipboardMu.Lock()
		text := o.localText
		o.clipboardMu.Unlock()

		if err := conn.Respond(o.ownID, text); err != nil {
			entry.Debugf("<-copy: respond failed: %v", err)
		}
	})
}

func (o *Overlay) handleJoinConnection(conn *transport.JoinConnection, msg *types.Message) {
	o.invoker.Spawn(func() {
		defer conn.Close()

		entry := o.logger.WithFields(map[string]interface{}{
			"src_id":       msg.SrcID.String(),
			"message_type": msg.MessageType.Tag,
			"ttl":          msg.TTL,
			"hop_count":    msg.HopCount,
		})

		if o.seen.CheckAndMark(msg.MessageID) {
			entry.Debugf("<-join: already saw message id %x, closing", msg.MessageID)
			return
		}

		if msg.TTL <= 1 {
			if err := conn.Respond(o.ownID, msg); err != nil {
				entry.Debugf("<-join: reply failed: %v", err)
			}
			return
		}

		o.peersMu.Lock()
		downstream := make([]types.PeerID, 0, len(o.peers))
		for id := range o.peers {
			downstream = append(downstream, id)
		}
		o.peersMu.Unlock()

		var mu sync.Mutex
		g, _ := errgroup.WithContext(o.ctx)
		for _, ep := range downstream {
			ep := ep
			g.Go(func() error {
				o.forwardJoinToDownstream(conn, &mu, ep, msg)
				return nil
			})
		}
		_ = g.Wait()

		mu.Lock()
		defer mu.Unlock()
		if err := conn.Respond(o.ownID, msg); err != nil {
			entry.Debugf("<-join: final reply failed: %v", err)
		}
	})
}

// forwardJoinToDownstream opens a new JoinConnection to ep carrying the
// flood forward, then relays every JoinResponse it reads back along conn
// (the incoming connection), which is the reverse-path route. Writes to
// conn are serialized by mu since multiple downstream fan-out goroutines
// share the one incoming connection.
func (o *Overlay) forwardJoinToDownstream(conn *transport.JoinConnection, mu *sync.Mutex, ep types.PeerID, msg *types.Message) {
	entry := o.logger.WithFields(map[string]interface{}{
		"remote":    ep.String(),
		"src_id":    msg.SrcID.String(),
		"ttl":       msg.TTL,
		"hop_count": msg.HopCount,
	})

	downstreamConn, err := transport.ForwardJoin(ep, msg)
	if err != nil {
		entry.Debugf("<-join: unable to forward: %v", err)
		return
	}
	defer downstreamConn.Close()

	for {
		resp, err := downstreamConn.ReadMessage()
		if err != nil {
			return
		}
		if resp.MessageType.Tag != types.TagJoinResponse {
			entry.WithFields(map[string]interface{}{
				"message_type": resp.MessageType.Tag,
			}).Debug("<-join: expected JoinResponse, dropping downstream")
			return
		}

		mu.Lock()
		err = conn.ForwardResponse(resp, resp.MessageType.Target)
		mu.Unlock()
		if err != nil {
			entry.Debugf("<-join: unable to relay response back: %v", err)
			return
		}
	}
}

func (o *Overlay) performJoinSingle(conn *transport.JoinConnection) {
	defer conn.Close()
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msg.MessageType.Tag != types.TagJoinResponse {
			o.logger.WithFields(map[string]interface{}{
				"message_type": msg.MessageType.Tag,
				"src_id":       msg.SrcID.String(),
			}).Debug("->join: unexpected message type, dropping connection")
			return
		}
		if !msg.MessageType.Target.Equal(o.ownID) {
			o.logger.WithFields(map[string]interface{}{
				"target": msg.MessageType.Target.String(),
				"src_id": msg.SrcID.String(),
			}).Debug("->join: response targeted a different node, dropping connection")
			return
		}

		o.availableMu.Lock()
		o.availableIDs = append(o.availableIDs, msg.SrcID)
		o.availableMu.Unlock()
	}
}

// PerformJoin joins the overlay using the bootstrap peers given at
// construction, fanning the dials out concurrently, then opens a
// P2PConnection to every learned peer.
func (o *Overlay) PerformJoin() error {
	g, _ := errgroup.WithContext(o.ctx)
	for _, id := range o.bootstrapIDs {
		id := id
		g.Go(func() error {
			conn, err := transport.OpenJoin(o.ownID, id, joinTTL)
			if err != nil {
				o.logger.WithFields(map[string]interface{}{
					"remote": id.String(),
					"ttl":    joinTTL,
				}).Debugf("->join: unable to connect: %v", err)
				return nil
			}
			o.performJoinSingle(conn)
			return nil
		})
	}
	_ = g.Wait()

	o.availableMu.Lock()
	available := dedupeAndSort(o.availableIDs)
	o.availableIDs = available
	o.availableMu.Unlock()

	o.logger.Infof("->join: got peers %v", available)
	if len(available) == 0 {
		return ErrNoPeersLearned
	}

	state := o.Snapshot()

	var mu sync.Mutex
	connected := 0
	pg, _ := errgroup.WithContext(o.ctx)
	for _, p := range available {
		p := p
		pg.Go(func() error {
			conn, err := transport.OpenP2P(o.ownID, p, state)
			if err != nil {
				o.logger.WithFields(map[string]interface{}{
					"remote": p.String(),
				}).Debugf("->join: unable to open p2p connection: %v", err)
				return nil
			}
			peer := core.NewPeer(o.invoker, conn, o.ownID, p, o, o, o.seen, o.logger)

			o.peersMu.Lock()
			o.peers[p] = peer
			o.peersMu.Unlock()

			mu.Lock()
			connected++
			mu.Unlock()
			return nil
		})
	}
	_ = pg.Wait()

	if connected == 0 {
		return ErrNoPeerConnected
	}
	return nil
}

func dedupeAndSort(ids []types.PeerID) []types.PeerID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	out := ids[:0]
	var last *types.PeerID
	for _, id := range ids {
		id := id
		if last != nil && last.Equal(id) {
			continue
		}
		out = append(out, id)
		last = &id
	}
	return out
}

// StartAutoping spawns a goroutine that, after a randomized initial delay,
// periodically pings every connected peer, evicting any whose enqueue
// fails.
func (o *Overlay) StartAutoping() {
	o.invoker.Spawn(func() {
		initialDelay := time.Duration(pingJitterMinMS+rand.Intn(pingJitterMaxMS-pingJitterMinMS)) * time.Millisecond
		select {
		case <-time.After(initialDelay):
		case <-o.ctx.Done():
			return
		}

		for {
			o.pingRound()

			select {
			case <-time.After(pingPeriod):
			case <-o.ctx.Done():
				return
			}
		}
	})
}

func (o *Overlay) pingRound() {
	state := o.Snapshot()

	o.peersMu.Lock()
	type entry struct {
		id types.PeerID
		p  *core.Peer
	}
	snapshot := make([]entry, 0, len(o.peers))
	for id, p := range o.peers {
		snapshot = append(snapshot, entry{id, p})
	}
	o.peersMu.Unlock()

	var toEvict []types.PeerID
	for _, e := range snapshot {
		if err := e.p.Ping(state); err != nil {
			o.logger.WithFields(map[string]interface{}{
				"remote":       e.id.String(),
				"message_type": types.TagPing,
			}).Debugf("ping: peer unreachable, evicting: %v", err)
			e.p.Close()
			toEvict = append(toEvict, e.id)
		}
	}

	if len(toEvict) == 0 {
		return
	}
	o.peersMu.Lock()
	for _, id := range toEvict {
		delete(o.peers, id)
	}
	o.peersMu.Unlock()
}

var _ core.StateStore = (*Overlay)(nil)
var _ core.Forwarder = (*Overlay)(nil)
