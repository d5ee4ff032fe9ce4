package core

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

// defaultSeenCapacity bounds how many message IDs a SeenSet remembers. A
// flooded message's lifetime is already bounded by TTL and duplicate
// suppression; this cap additionally bounds the set's own memory use.
const defaultSeenCapacity = 4096

// SeenSet is an LRU-capped set of message IDs, used to suppress re-flooding
// of join requests and copy notifications already processed once.
type SeenSet struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewSeenSet builds a SeenSet with the default capacity.
func NewSeenSet() *SeenSet {
	cache, err := lru.New(defaultSeenCapacity)
	if err != nil {
		// lru.New only errors on a non-positive size, which defaultSeenCapacity
		// never is.
		panic(err)
	}
	return &SeenSet{cache: cache}
}

// CheckAndMark reports whether id was already seen, and if not, marks it
// seen. "Was this seen before" and "record that it's seen now" must happen
// together or two concurrent handlers could both think they are first.
func (s *SeenSet) CheckAndMark(id types.MessageID) (alreadySeen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Contains(id) {
		return true
	}
	s.cache.Add(id, struct{}{})
	return false
}
