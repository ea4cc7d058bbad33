package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/patchsync/internal/transform"
)

// DefaultIDPrefix is used when a scenario does not name its own prefix.
const DefaultIDPrefix = "t"

// SequentialIDs generates transform ids "<prefix>-1", "<prefix>-2", ...
//
// Unlike transform.FixedGenerator it never runs out, so scenarios do not
// have to predict how many transforms connectors will spawn. Ids depend
// only on generation order, which makes golden traces byte-identical as
// long as propagation order is deterministic.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

var _ transform.IDGenerator = (*SequentialIDs)(nil)

// NewSequentialIDs creates a generator. An empty prefix uses
// DefaultIDPrefix.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Issued returns how many ids have been generated.
func (g *SequentialIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
