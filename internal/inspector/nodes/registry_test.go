package nodes

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func elem(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag}
}

func tree() (root, a, b, c *html.Node) {
	root = elem("div")
	a = elem("p")
	b = elem("span")
	c = &html.Node{Type: html.TextNode, Data: "text"}
	root.AppendChild(a)
	a.AppendChild(b)
	b.AppendChild(c)
	return
}

func TestRegistry_BindIsIdempotent(t *testing.T) {
	r := NewRegistry()
	n := elem("div")

	id := r.Bind(n)
	assert.Equal(t, NodeID(1), id)
	assert.Equal(t, id, r.Bind(n))
	assert.Equal(t, id, r.IDOf(n))

	got, err := r.Resolve(id)
	require.NoError(t, err)
	assert.Same(t, n, got)
}

func TestRegistry_BindNil(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, Unbound, r.Bind(nil))
}

func TestRegistry_UnbindIsShallow(t *testing.T) {
	r := NewRegistry()
	root, a, _, _ := tree()
	rootID := r.Bind(root)
	aID := r.Bind(a)
	r.MarkChildrenRequested(rootID)

	r.Unbind(root)

	_, err := r.Resolve(rootID)
	assert.ErrorIs(t, err, ErrUnknownNodeID)
	assert.False(t, r.ChildrenRequested(rootID))
	got, err := r.Resolve(aID)
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestRegistry_UnbindSubtree(t *testing.T) {
	r := NewRegistry()
	root, a, b, c := tree()
	ids := []NodeID{r.Bind(root), r.Bind(a), r.Bind(b), r.Bind(c)}

	r.UnbindSubtree(a)

	_, err := r.Resolve(ids[0])
	assert.NoError(t, err, "root outside the removed subtree stays bound")
	for _, id := range ids[1:] {
		_, err := r.Resolve(id)
		assert.ErrorIs(t, err, ErrUnknownNodeID)
	}
}

func TestRegistry_UnbindSubtreeKeepsDanglingCopies(t *testing.T) {
	r := NewRegistry()
	root, a, b, _ := tree()
	r.Bind(root)
	activeID := r.Bind(b)
	scope := r.CreateDanglingMap()
	danglingID := scope.Bind(b)
	assert.NotEqual(t, activeID, danglingID)

	r.UnbindSubtree(a)

	_, err := r.Resolve(activeID)
	assert.ErrorIs(t, err, ErrUnknownNodeID)
	got, err := r.Resolve(danglingID)
	require.NoError(t, err)
	assert.Same(t, b, got)

	r.ReleaseDangling()
	_, err = r.Resolve(danglingID)
	assert.ErrorIs(t, err, ErrUnknownNodeID)
}

func TestRegistry_DanglingRangesAreDisjoint(t *testing.T) {
	r := NewRegistry()
	s1 := r.CreateDanglingMap()
	s2 := r.CreateDanglingMap()
	seen := map[NodeID]bool{}
	for i := 0; i < 20; i++ {
		for _, s := range []*Scope{r.Document(), s1, s2} {
			id := s.Bind(elem("i"))
			require.False(t, seen[id], "id %d issued twice", id)
			seen[id] = true
		}
	}
	assert.Equal(t, 2, r.DanglingCount())
}

func TestRegistry_ResolveSearchOrder(t *testing.T) {
	r := NewRegistry()
	n := elem("div")
	s := r.CreateDanglingMap()
	id := s.Bind(n)

	scope, ok := r.ScopeOf(id)
	require.True(t, ok)
	assert.True(t, scope.Dangling())

	_, err := r.Resolve(999)
	assert.ErrorIs(t, err, ErrUnknownNodeID)
	assert.True(t, strings.Contains(err.Error(), "999"))
}

func TestRegistry_ResetInvalidatesAllScopes(t *testing.T) {
	r := NewRegistry()
	a := elem("a")
	b := elem("b")
	idA := r.Bind(a)
	idB := r.CreateDanglingMap().Bind(b)
	r.MarkChildrenRequested(idA)

	r.Reset()

	for _, id := range []NodeID{idA, idB} {
		_, err := r.Resolve(id)
		assert.ErrorIs(t, err, ErrUnknownNodeID)
	}
	assert.False(t, r.ChildrenRequested(idA))
	assert.Greater(t, r.Bind(a), idB, "ids are not reused after reset")
}

func TestRegistry_RandomBindUnbind(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry()
	pool := make([]*html.Node, 50)
	for i := range pool {
		pool[i] = elem("n")
	}
	bound := map[*html.Node]NodeID{}

	for step := 0; step < 2000; step++ {
		n := pool[rng.Intn(len(pool))]
		if rng.Intn(3) == 0 {
			r.Unbind(n)
			delete(bound, n)
			continue
		}
		id := r.Bind(n)
		if prev, ok := bound[n]; ok {
			require.Equal(t, prev, id)
		}
		bound[n] = id

		owners := map[NodeID]*html.Node{}
		for node, nodeID := range bound {
			got, err := r.Resolve(nodeID)
			require.NoError(t, err)
			require.Same(t, node, got)
			require.Nil(t, owners[nodeID], "duplicate id %d", nodeID)
			owners[nodeID] = node
		}
	}
}
