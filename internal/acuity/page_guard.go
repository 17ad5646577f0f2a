package acuity

// PageGuard spots an upstream that keeps serving records it already sent
// instead of ending the listing. One guard per calendar per run.
type PageGuard struct {
	seen  map[string]struct{}
	pages int
}

func NewPageGuard() *PageGuard {
	return &PageGuard{seen: map[string]struct{}{}}
}

// Observe records a fetched page and reports whether it repeats ids from an
// earlier page. The first page never repeats. A repeat page's ids are not
// added to the seen set.
func (g *PageGuard) Observe(ids []string) bool {
	g.pages++
	if g.pages > 1 {
		for _, id := range ids {
			if _, ok := g.seen[id]; ok {
				return true
			}
		}
	}
	for _, id := range ids {
		g.seen[id] = struct{}{}
	}
	return false
}

// Seen is the number of distinct ids accepted so far.
func (g *PageGuard) Seen() int { return len(g.seen) }
