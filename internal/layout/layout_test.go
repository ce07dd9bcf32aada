package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefold/nodefold/pkg/schema"
)

func mkNode(id, parentID string, seq int64) *schema.Node {
	return &schema.Node{
		ID:        id,
		Kind:      schema.KindWorker,
		ParentID:  parentID,
		State:     schema.NodeStateActive,
		Seq:       seq,
		SpawnedAt: time.Unix(0, 0),
	}
}

func TestPlace_ZeroViewportReturnsOrigin(t *testing.T) {
	e := New(Config{})
	n := mkNode("a", "", 1)

	p := e.Place(n, []*schema.Node{n})
	assert.Equal(t, schema.Point{}, p)
	assert.Equal(t, schema.Point{}, e.SinkPoint())
}

func TestPlace_RootsFlowOntoGrid(t *testing.T) {
	e := New(Config{Width: 800, Height: 600})
	a := mkNode("a", "", 1)
	b := mkNode("b", "", 2)
	live := []*schema.Node{a, b}

	pa := e.Place(a, live)
	pb := e.Place(b, live)

	assert.Equal(t, schema.Point{X: defaultMargin, Y: defaultMargin}, pa)
	assert.Equal(t, schema.Point{X: defaultMargin + defaultCellWidth, Y: defaultMargin}, pb)
}

func TestPlace_ChildOffsetFromParent(t *testing.T) {
	e := New(Config{Width: 800, Height: 600})
	parent := mkNode("p", "", 1)
	child := mkNode("c", "p", 2)
	live := []*schema.Node{parent, child}

	e.Relayout(live)

	// Single child sits directly beneath the parent.
	assert.Equal(t, parent.Position.X, child.Position.X)
	assert.Equal(t, parent.Position.Y+defaultChildDrop, child.Position.Y)
}

func TestPlace_SiblingsFanOut(t *testing.T) {
	e := New(Config{Width: 800, Height: 600})
	parent := mkNode("p", "", 1)
	c1 := mkNode("c1", "p", 2)
	c2 := mkNode("c2", "p", 3)
	c3 := mkNode("c3", "p", 4)
	live := []*schema.Node{parent, c1, c2, c3}

	e.Relayout(live)

	// Middle sibling centered under the parent, outer two mirrored.
	assert.Equal(t, parent.Position.X, c2.Position.X)
	assert.Equal(t, parent.Position.X-defaultChildSpacing, c1.Position.X)
	assert.Equal(t, parent.Position.X+defaultChildSpacing, c3.Position.X)
	for _, c := range []*schema.Node{c1, c2, c3} {
		assert.Equal(t, parent.Position.Y+defaultChildDrop, c.Position.Y)
	}
}

func TestPlace_DeadParentTreatedAsRoot(t *testing.T) {
	e := New(Config{Width: 800, Height: 600})
	// Parent already archived: not in the live set.
	orphan := mkNode("c", "gone", 5)
	live := []*schema.Node{orphan}

	p := e.Place(orphan, live)
	assert.Equal(t, schema.Point{X: defaultMargin, Y: defaultMargin}, p)
}

func TestRelayout_DeterministicAcrossRuns(t *testing.T) {
	build := func() []*schema.Node {
		p := mkNode("p", "", 1)
		c := mkNode("c", "p", 2)
		d := mkNode("d", "", 3)
		return []*schema.Node{p, c, d}
	}

	e := New(Config{Width: 640, Height: 480, JitterAmp: 6, Seed: 42})

	first := build()
	e.Relayout(first)
	second := build()
	e.Relayout(second)

	for i := range first {
		assert.Equal(t, first[i].Position, second[i].Position)
	}
}

func TestRelayout_CompactsAfterRemoval(t *testing.T) {
	e := New(Config{Width: 800, Height: 600})
	a := mkNode("a", "", 1)
	b := mkNode("b", "", 2)
	c := mkNode("c", "", 3)

	e.Relayout([]*schema.Node{a, b, c})
	require.NotEqual(t, a.Position, c.Position)
	posB := b.Position

	// After a's archive the remaining flow shifts left.
	e.Relayout([]*schema.Node{b, c})
	assert.Equal(t, schema.Point{X: defaultMargin, Y: defaultMargin}, b.Position)
	assert.NotEqual(t, posB, b.Position)
}
