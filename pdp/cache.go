package pdp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/ristretto"
)

// decisionCache memoizes Decisions keyed on the input tuple and the
// PolicySet generation that produced them. Keying on generation means
// a reload invalidates every prior entry implicitly — there is never
// a sweep or explicit purge, so a reload can't race a cache read into
// returning a decision from the set it just replaced.
type decisionCache struct {
	c *ristretto.Cache
}

func newDecisionCache() *decisionCache {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		// ristretto.NewCache only fails on invalid config constants
		// above, which are fixed literals; treat as unreachable.
		return &decisionCache{c: nil}
	}
	return &decisionCache{c: c}
}

func (d *decisionCache) get(key string) (*Decision, bool) {
	if d.c == nil {
		return nil, false
	}
	v, ok := d.c.Get(key)
	if !ok {
		return nil, false
	}
	dec, ok := v.(*Decision)
	return dec, ok
}

func (d *decisionCache) set(key string, dec *Decision) {
	if d.c == nil {
		return
	}
	d.c.Set(key, dec, 1)
}

// cacheKey serializes the evaluation request and generation into a
// stable string. Map iteration order in Go is randomized, so keys are built
// from sorted entries rather than range order.
func cacheKey(generation uint64, req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "g%d|", generation)
	b.WriteString(req.Action)
	b.WriteByte('|')
	writeSortedMap(&b, req.Subject)
	b.WriteByte('|')
	writeSortedMap(&b, req.Resource)
	b.WriteByte('|')
	writeSortedMap(&b, req.Context)
	return b.String()
}

func writeSortedMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s=%v;", k, m[k])
	}
}
