package analyzer

import (
	"sort"

	"github.com/adamavenir/cwthread/internal/types"
)

// Graph indexes the reference edges of one room's message pool. Edges are
// undirected: a message is related to every message it references and to every
// message that references it.
type Graph struct {
	messages map[string]types.Message
	edges    map[string]map[string]struct{}
}

// NewGraph builds the reference index for pool. When the pool holds the same id
// more than once, the later entry is the one returned, while the references of
// every entry still count as edges.
func NewGraph(pool []types.Message) *Graph {
	g := &Graph{
		messages: make(map[string]types.Message, len(pool)),
		edges:    make(map[string]map[string]struct{}, len(pool)),
	}
	for _, msg := range pool {
		g.messages[msg.ID] = msg
	}
	for _, msg := range pool {
		for _, ref := range ExtractReferences(msg.Content) {
			if ref == msg.ID {
				continue
			}
			if _, ok := g.messages[ref]; !ok {
				continue
			}
			g.link(msg.ID, ref)
		}
	}
	return g
}

func (g *Graph) link(a, b string) {
	if g.edges[a] == nil {
		g.edges[a] = map[string]struct{}{}
	}
	if g.edges[b] == nil {
		g.edges[b] = map[string]struct{}{}
	}
	g.edges[a][b] = struct{}{}
	g.edges[b][a] = struct{}{}
}

// Has reports whether id is part of the pool.
func (g *Graph) Has(id string) bool {
	_, ok := g.messages[id]
	return ok
}

// Len returns the number of distinct messages in the pool.
func (g *Graph) Len() int {
	return len(g.messages)
}

// Closure returns every message transitively related to any of the seeds,
// seeds included, ordered by send time. Seeds missing from the pool are skipped.
func (g *Graph) Closure(seeds ...string) []types.Message {
	visited := make(map[string]struct{}, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if !g.Has(seed) {
			continue
		}
		if _, ok := visited[seed]; ok {
			continue
		}
		visited[seed] = struct{}{}
		queue = append(queue, seed)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range g.edges[current] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	related := make([]types.Message, 0, len(visited))
	for id := range visited {
		related = append(related, g.messages[id])
	}
	SortBySendTime(related)
	return related
}

// Expand returns the closure of rootID within pool. It fails with a
// NotFoundError when the root is not part of the pool.
func Expand(rootID string, pool []types.Message) ([]types.Message, error) {
	g := NewGraph(pool)
	if !g.Has(rootID) {
		return nil, types.NewMessageNotFound(rootID)
	}
	return g.Closure(rootID), nil
}

// ExpandFrom returns the closure of several seed messages within pool. Seeds are
// added to the pool first, so a fresher pool copy of a seed replaces it.
func ExpandFrom(seeds []types.Message, pool []types.Message) []types.Message {
	combined := make([]types.Message, 0, len(seeds)+len(pool))
	combined = append(combined, seeds...)
	combined = append(combined, pool...)

	ids := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		ids = append(ids, seed.ID)
	}
	return NewGraph(combined).Closure(ids...)
}

// SortBySendTime orders messages by send time, then id.
func SortBySendTime(messages []types.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].SendTime != messages[j].SendTime {
			return messages[i].SendTime < messages[j].SendTime
		}
		return messages[i].ID < messages[j].ID
	})
}
