package clipcast

import (
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/arjunv/clipcast/pkg/clipcast/clipboard"
	"github.com/arjunv/clipcast/pkg/clipcast/logging"
	"github.com/arjunv/clipcast/pkg/clipcast/transport"
	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

func openRawCopy(t *testing.T, remote types.PeerID) (*transport.CopyConnection, error) {
	t.Helper()
	local := types.NewEndpoint(net.ParseIP("127.0.0.1"), 0)
	return transport.OpenCopy(local, remote, "text")
}

func newTestNode(t *testing.T, bootstrap []types.PeerID) *Overlay {
	t.Helper()
	o, err := New(net.ParseIP("127.0.0.1"), bootstrap, clipboard.NewInMemoryAdapter(), logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("new overlay: %v", err)
	}
	o.StartAccepting()
	return o
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestTwoNodeCopyPropagation(t *testing.T) {
	defer goleak.VerifyNone(t)

	n2 := newTestNode(t, nil)
	defer n2.Shutdown()
	n1 := newTestNode(t, []types.PeerID{n2.OwnID()})
	defer n1.Shutdown()

	if err := n1.PerformJoin(); err != nil {
		t.Fatalf("n1 perform join: %v", err)
	}

	n1.SetClipboard("x")

	waitUntil(t, 2*time.Second, func() bool {
		return n2.Snapshot().LastCopySrc.Equal(n1.OwnID())
	})

	text, ok, err := n2.GetClipboard()
	if err != nil {
		t.Fatalf("n2 get clipboard: %v", err)
	}
	if !ok || text != "x" {
		t.Fatalf("expected n2 to fetch %q, got %q ok=%v", "x", text, ok)
	}

	_, ok, err = n1.GetClipboard()
	if err != nil {
		t.Fatalf("n1 get clipboard: %v", err)
	}
	if ok {
		t.Fatalf("n1 is the owner, expected GetClipboard to report no remote fetch needed")
	}
}

func TestThreeNodeFloodWithTTL(t *testing.T) {
	defer goleak.VerifyNone(t)

	n1 := newTestNode(t, nil)
	defer n1.Shutdown()
	n2 := newTestNode(t, []types.PeerID{n1.OwnID()})
	defer n2.Shutdown()

	if err := n2.PerformJoin(); err != nil {
		t.Fatalf("n2 perform join: %v", err)
	}

	n3 := newTestNode(t, []types.PeerID{n2.OwnID()})
	defer n3.Shutdown()

	if err := n3.PerformJoin(); err != nil {
		t.Fatalf("n3 perform join: %v", err)
	}

	n3.availableMu.Lock()
	available := append([]types.PeerID(nil), n3.availableIDs...)
	n3.availableMu.Unlock()

	foundN1, foundN2 := false, false
	for _, id := range available {
		if id.Equal(n1.OwnID()) {
			foundN1 = true
		}
		if id.Equal(n2.OwnID()) {
			foundN2 = true
		}
	}
	if !foundN1 || !foundN2 {
		t.Fatalf("expected n3 to learn both n1 and n2, got %v", available)
	}
}

func TestDuplicateJoinSuppression(t *testing.T) {
	defer goleak.VerifyNone(t)

	n1 := newTestNode(t, nil)
	defer n1.Shutdown()

	if n1.seen.CheckAndMark(types.MessageID{1, 2, 3}) {
		t.Fatalf("expected first sighting to report not-seen")
	}
	if !n1.seen.CheckAndMark(types.MessageID{1, 2, 3}) {
		t.Fatalf("expected re-injected message id to be suppressed")
	}
}

func TestReinjectedJoinRequestClosesWithoutResponse(t *testing.T) {
	defer goleak.VerifyNone(t)

	n1 := newTestNode(t, nil)
	defer n1.Shutdown()

	joiner := types.NewEndpoint(net.ParseIP("127.0.0.1"), 7000)

	first, err := transport.OpenJoin(joiner, n1.OwnID(), 1)
	if err != nil {
		t.Fatalf("open join: %v", err)
	}
	defer first.Close()

	resp, err := first.ReadMessage()
	if err != nil {
		t.Fatalf("read join response: %v", err)
	}
	if resp.MessageType.Tag != types.TagJoinResponse {
		t.Fatalf("expected JoinResponse, got %v", resp.MessageType.Tag)
	}

	// Re-inject the same message id: the handler must close the connection
	// immediately without fanning out or responding.
	dup, err := transport.ForwardJoin(n1.OwnID(), &types.Message{
		MessageID:   resp.MessageID,
		MessageType: types.MessageType{Tag: types.TagJoinRequest},
		SrcID:       joiner,
		TTL:         9,
		HopCount:    0,
	})
	if err != nil {
		t.Fatalf("re-inject join: %v", err)
	}
	defer dup.Close()

	if msg, err := dup.ReadMessage(); err == nil {
		t.Fatalf("expected closed connection, got %v", msg.MessageType.Tag)
	}
}

func TestCacheValidity(t *testing.T) {
	defer goleak.VerifyNone(t)

	n2 := newTestNode(t, nil)
	defer n2.Shutdown()
	n1 := newTestNode(t, []types.PeerID{n2.OwnID()})
	defer n1.Shutdown()

	if err := n1.PerformJoin(); err != nil {
		t.Fatalf("perform join: %v", err)
	}
	n1.SetClipboard("cached")

	waitUntil(t, 2*time.Second, func() bool {
		return n2.Snapshot().LastCopySrc.Equal(n1.OwnID())
	})

	text, ok, err := n2.GetClipboard()
	if err != nil || !ok || text != "cached" {
		t.Fatalf("first fetch failed: text=%q ok=%v err=%v", text, ok, err)
	}

	n1.Shutdown()

	text2, ok2, err2 := n2.GetClipboard()
	if err2 != nil {
		t.Fatalf("second fetch should use cache, not dial: %v", err2)
	}
	if !ok2 || text2 != "cached" {
		t.Fatalf("expected cached fetch to return %q, got %q", "cached", text2)
	}
}

func TestConcurrentCopiesConvergeOnSameWinner(t *testing.T) {
	defer goleak.VerifyNone(t)

	n2 := newTestNode(t, nil)
	defer n2.Shutdown()
	n1 := newTestNode(t, []types.PeerID{n2.OwnID()})
	defer n1.Shutdown()

	if err := n1.PerformJoin(); err != nil {
		t.Fatalf("perform join: %v", err)
	}

	// n2 registers n1 asynchronously in its accept loop; wait for it so n2's
	// notification has a peer to reach.
	waitUntil(t, 2*time.Second, func() bool {
		n2.peersMu.Lock()
		defer n2.peersMu.Unlock()
		_, ok := n2.peers[n1.OwnID()]
		return ok
	})

	// Both nodes set their clipboard independently, without an intervening
	// ping round, so their clocks diverge and must be reconciled by the
	// deterministic concurrent tie-break once notifications cross.
	n1.SetClipboard("a")
	n2.SetClipboard("b")

	waitUntil(t, 2*time.Second, func() bool {
		return n1.Snapshot().LastCopySrc.Equal(n2.Snapshot().LastCopySrc)
	})

	winner := n1.Snapshot().LastCopySrc
	if !n2.Snapshot().LastCopySrc.Equal(winner) {
		t.Fatalf("nodes disagree on winner: n1=%v n2=%v", n1.Snapshot().LastCopySrc, n2.Snapshot().LastCopySrc)
	}
}

func TestServeCopyErrorPath(t *testing.T) {
	defer goleak.VerifyNone(t)

	n2 := newTestNode(t, nil)
	defer n2.Shutdown()
	n1 := newTestNode(t, []types.PeerID{n2.OwnID()})
	defer n1.Shutdown()

	if err := n1.PerformJoin(); err != nil {
		t.Fatalf("perform join: %v", err)
	}

	// n2 registers n1 asynchronously in its accept loop; wait for it so n2's
	// notification has a peer to reach.
	waitUntil(t, 2*time.Second, func() bool {
		n2.peersMu.Lock()
		defer n2.peersMu.Unlock()
		_, ok := n2.peers[n1.OwnID()]
		return ok
	})

	// After n2's copy propagates, n1's state points at n2, so a CopyRequest
	// aimed at n1 must be answered with ErrorResponse.
	n2.SetClipboard("owned-by-n2")

	waitUntil(t, 2*time.Second, func() bool {
		return n1.Snapshot().LastCopySrc.Equal(n2.OwnID())
	})

	conn, err := openRawCopy(t, n1.OwnID())
	if err != nil {
		t.Fatalf("open copy: %v", err)
	}
	defer conn.Close()

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if msg.MessageType.Tag != types.TagErrorResponse {
		t.Fatalf("expected ErrorResponse, got %v", msg.MessageType.Tag)
	}
}
