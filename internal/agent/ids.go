package agent

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const idPrefix = "echo"

// IDGenerator builds post ids of the form echo-<unix-millis>-<slug>.
// The millisecond part strictly increases within one process, so two
// agents posting in the same millisecond still get distinct ids.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator returns a generator reading the given clock.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh id for slug.
func (g *IDGenerator) Next(slug string) string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()
	return fmt.Sprintf("%s-%d-%s", idPrefix, ms, slug)
}

// targetSuffix is the short piece of a target id appended to some reply
// ids. The shared "echo-" prefix carries no information and is skipped.
func targetSuffix(targetID string) string {
	s := strings.TrimPrefix(targetID, idPrefix+"-")
	if len(s) > 5 {
		s = s[:5]
	}
	return s
}
