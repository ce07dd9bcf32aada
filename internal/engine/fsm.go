package engine

import (
	"sync"

	"github.com/nodefold/nodefold/pkg/schema"
)

// TransitionHook is called before or after a node state transition.
type TransitionHook func(nodeID string, from, to schema.NodeState) error

type hookKey struct {
	from, to schema.NodeState
}

// NodeFSM validates and applies node lifecycle transitions.
type NodeFSM struct {
	mu     sync.Mutex
	before map[hookKey][]TransitionHook
	after  map[hookKey][]TransitionHook
}

// NewNodeFSM creates a NodeFSM with empty hook sets.
func NewNodeFSM() *NodeFSM {
	return &NodeFSM{
		before: make(map[hookKey][]TransitionHook),
		after:  make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition is applied.
func (f *NodeFSM) OnBefore(from, to schema.NodeState, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition is applied.
func (f *NodeFSM) OnAfter(from, to schema.NodeState, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates the move from the node's current state to the target
// state and applies it. A node gets at most one terminal transition: archived
// has no outgoing edges, and collapsing can only reach archived or, via batch
// cancellation, return to active.
func (f *NodeFSM) Transition(node *schema.Node, to schema.NodeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := node.State
	if !isValidNodeTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid node transition: %s -> %s", from, to).
			WithNode(node.ID).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(node.ID, from, to); err != nil {
			return err
		}
	}

	node.State = to

	for _, hook := range f.after[key] {
		if err := hook(node.ID, from, to); err != nil {
			return err
		}
	}

	return nil
}

func isValidNodeTransition(from, to schema.NodeState) bool {
	allowed, ok := ValidNodeTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

// ValidNodeTransitions defines the allowed lifecycle transitions.
// spawning -> active may be instantaneous (the registry promotes at spawn);
// collapsing -> active exists only for batch cancellation.
var ValidNodeTransitions = map[schema.NodeState][]schema.NodeState{
	schema.NodeStateSpawning:   {schema.NodeStateActive},
	schema.NodeStateActive:     {schema.NodeStateCollapsing},
	schema.NodeStateCollapsing: {schema.NodeStateArchived, schema.NodeStateActive},
	schema.NodeStateArchived:   {},
}
