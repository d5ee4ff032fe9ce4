// Package core implements the Peer actor and its supporting goroutine
// lifecycle and duplicate-suppression primitives.
package core

import "sync"

// Invoker abstracts goroutine spawning so every long-lived task in the
// overlay can be collected and awaited on shutdown.
type Invoker interface {
	// Spawn runs f in a new goroutine tracked by this Invoker.
	Spawn(f func())
	// Stop waits for every spawned goroutine to return. Goroutines are
	// expected to observe their own cancellation signal (a context or
	// close channel) and exit; Stop does not forcibly interrupt them.
	Stop()
}

// WaitGroupInvoker is the default Invoker, backed by a sync.WaitGroup.
type WaitGroupInvoker struct {
	wg sync.WaitGroup
}

// NewInvoker returns a ready-to-use WaitGroupInvoker.
func NewInvoker() *WaitGroupInvoker {
	return &WaitGroupInvoker{}
}

// Spawn runs f in a new goroutine, tracked until it returns.
func (i *WaitGroupInvoker) Spawn(f func()) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		f()
	}()
}

// Stop blocks until every goroutine spawned via Spawn has returned.
func (i *WaitGroupInvoker) Stop() {
	i.wg.Wait()
}

var _ Invoker = (*WaitGroupInvoker)(nil)
