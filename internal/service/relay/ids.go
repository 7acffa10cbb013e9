package relay

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator issues provisional session ids used until the telephony
// provider names the call.
type IDGenerator struct {
	prefix  string
	counter uint64
}

func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
