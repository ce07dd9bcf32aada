// Package layout computes on-screen positions for live nodes. Placement is a
// deterministic function of spawn order and parentage; the only randomness is
// an optional jitter driven by an injected seed, so layouts are reproducible.
package layout

import (
	"math/rand"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Config controls the flow layout. Zero values fall back to defaults, except
// the viewport: a zero-size viewport is a legal degenerate state (container
// not mounted yet) and pins every node to the origin.
type Config struct {
	Width  float64
	Height float64

	CellWidth  float64
	CellHeight float64
	MarginX    float64
	MarginY    float64

	// Children fan out horizontally beneath their parent.
	ChildSpacing float64
	ChildDrop    float64

	// JitterAmp > 0 adds a small deterministic offset derived from Seed and
	// the node's spawn sequence.
	JitterAmp float64
	Seed      int64
}

const (
	defaultCellWidth    = 180
	defaultCellHeight   = 120
	defaultMargin       = 40
	defaultChildSpacing = 140
	defaultChildDrop    = 110
)

// Engine lays out live nodes. It owns node positions but not node identity.
type Engine struct {
	cfg Config
}

// New creates a layout engine, filling config defaults.
func New(cfg Config) *Engine {
	if cfg.CellWidth <= 0 {
		cfg.CellWidth = defaultCellWidth
	}
	if cfg.CellHeight <= 0 {
		cfg.CellHeight = defaultCellHeight
	}
	if cfg.MarginX <= 0 {
		cfg.MarginX = defaultMargin
	}
	if cfg.MarginY <= 0 {
		cfg.MarginY = defaultMargin
	}
	if cfg.ChildSpacing <= 0 {
		cfg.ChildSpacing = defaultChildSpacing
	}
	if cfg.ChildDrop <= 0 {
		cfg.ChildDrop = defaultChildDrop
	}
	return &Engine{cfg: cfg}
}

// Place computes the position for one node given the current live set.
// Roots flow onto a wrapping grid by root index; a node with a live parent
// is offset from the parent's current position by its sibling index.
func (e *Engine) Place(node *schema.Node, live []*schema.Node) schema.Point {
	if e.cfg.Width <= 0 || e.cfg.Height <= 0 {
		return schema.Point{}
	}

	var p schema.Point
	if parent := findLive(node.ParentID, live); parent != nil {
		sib, count := siblingIndex(node, parent.ID, live)
		spread := float64(sib) - float64(count-1)/2
		p = schema.Point{
			X: parent.Position.X + spread*e.cfg.ChildSpacing,
			Y: parent.Position.Y + e.cfg.ChildDrop,
		}
	} else {
		idx := rootIndex(node, live)
		cols := int((e.cfg.Width - 2*e.cfg.MarginX) / e.cfg.CellWidth)
		if cols < 1 {
			cols = 1
		}
		p = schema.Point{
			X: e.cfg.MarginX + float64(idx%cols)*e.cfg.CellWidth,
			Y: e.cfg.MarginY + float64(idx/cols)*e.cfg.CellHeight,
		}
	}

	if e.cfg.JitterAmp > 0 {
		rng := rand.New(rand.NewSource(e.cfg.Seed + node.Seq))
		p.X += (rng.Float64()*2 - 1) * e.cfg.JitterAmp
		p.Y += (rng.Float64()*2 - 1) * e.cfg.JitterAmp
	}
	return p
}

// Relayout repositions every live node. Called on every live-set change so
// the flow stays compact; processing in spawn order guarantees a parent is
// placed before any of its children.
func (e *Engine) Relayout(live []*schema.Node) {
	for _, n := range live {
		n.Position = e.Place(n, live)
	}
}

// SinkPoint is the default collapse target for parentless nodes: the anchor
// of the history panel at the bottom edge of the viewport.
func (e *Engine) SinkPoint() schema.Point {
	if e.cfg.Width <= 0 || e.cfg.Height <= 0 {
		return schema.Point{}
	}
	return schema.Point{X: e.cfg.Width / 2, Y: e.cfg.Height - e.cfg.MarginY}
}

func findLive(id string, live []*schema.Node) *schema.Node {
	if id == "" {
		return nil
	}
	for _, n := range live {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// siblingIndex returns the node's position among the parent's live children
// and the total child count, both in spawn order.
func siblingIndex(node *schema.Node, parentID string, live []*schema.Node) (int, int) {
	idx, count := 0, 0
	for _, n := range live {
		if n.ParentID != parentID {
			continue
		}
		if n.ID == node.ID {
			idx = count
		}
		count++
	}
	return idx, count
}

// rootIndex returns the node's position among live nodes without a live
// parent, in spawn order.
func rootIndex(node *schema.Node, live []*schema.Node) int {
	idx := 0
	for _, n := range live {
		if findLive(n.ParentID, live) != nil {
			continue
		}
		if n.ID == node.ID {
			return idx
		}
		idx++
	}
	return idx
}
