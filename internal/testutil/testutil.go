// Package testutil provides a multi-node harness for exercising the
// clipcast overlay end to end on loopback.
package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/arjunv/clipcast/pkg/clipcast"
	"github.com/arjunv/clipcast/pkg/clipcast/clipboard"
	"github.com/arjunv/clipcast/pkg/clipcast/logging"
	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

// Cluster is a set of Overlay nodes sharing loopback, started and stopped
// together.
type Cluster struct {
	Nodes []*clipcast.Overlay
}

// NewNode constructs and starts a single overlay node bound to loopback,
// bootstrapping off the given peer IDs.
func NewNode(t *testing.T, bootstrap []types.PeerID) *clipcast.Overlay {
	t.Helper()

	o, err := clipcast.New(net.ParseIP("127.0.0.1"), bootstrap, clipboard.NewInMemoryAdapter(), logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("testutil: construct overlay: %v", err)
	}
	o.StartAccepting()
	return o
}

// NewCluster starts n independent nodes, none bootstrapped to one another.
// The nodes are not joined to each other; Cluster has no join helper.
func NewCluster(t *testing.T, n int) *Cluster {
	t.Helper()
	c := &Cluster{}
	for i := 0; i < n; i++ {
		c.Nodes = append(c.Nodes, NewNode(t, nil))
	}
	return c
}

// Shutdown tears down every node in the cluster.
func (c *Cluster) Shutdown() {
	for _, n := range c.Nodes {
		n.Shutdown()
	}
}

// WaitUntil polls cond every tick until it returns true or timeout elapses,
// failing the test on timeout.
func WaitUntil(t *testing.T, timeout, tick time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(tick)
	}
	if !cond() {
		t.Fatalf("testutil: condition not met within %s", timeout)
	}
}
