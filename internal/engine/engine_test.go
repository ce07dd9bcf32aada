package engine

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefold/nodefold/internal/layout"
	"github.com/nodefold/nodefold/internal/streaming"
	"github.com/nodefold/nodefold/pkg/schema"
)

func newTestEngine() (*Engine, *clock.Mock) {
	mock := clock.NewMock()
	e := New(Config{
		Layout: layout.Config{Width: 800, Height: 600},
	}, Deps{Clock: mock})
	return e, mock
}

func TestSpawn_RegistersAndConnects(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	parent := e.Spawn(ctx, schema.KindUnderstanding, "read the request", "")
	child := e.Spawn(ctx, schema.KindWorker, "draft the change", parent.ID)

	require.Equal(t, parent.ID, child.ParentID)

	live := e.LiveNodes()
	require.Len(t, live, 2)
	assert.Equal(t, parent.ID, live[0].ID)
	assert.Equal(t, child.ID, live[1].ID)
	assert.Equal(t, schema.NodeStateActive, live[0].State)

	conns := e.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, parent.ID, conns[0].FromID)
	assert.Equal(t, child.ID, conns[0].ToID)
	assert.Equal(t, live[0].Position, conns[0].Geometry.Start)
	assert.Equal(t, live[1].Position, conns[0].Geometry.End)
}

func TestSpawn_DanglingParentClearedNoConnection(t *testing.T) {
	e, _ := newTestEngine()

	n := e.Spawn(context.Background(), schema.KindWorker, "orphan", "no-such-node")
	assert.Empty(t, n.ParentID)
	assert.Empty(t, e.Connections())
	assert.Len(t, e.LiveNodes(), 1)
}

func TestConnections_FollowRelayout(t *testing.T) {
	e, mock := newTestEngine()
	ctx := context.Background()

	// r1 occupies the first grid slot, so r2 lands in the second.
	e.Spawn(ctx, schema.KindWorker, "r1", "")
	_, n := e.CollapseAll(ctx)
	require.Equal(t, 1, n)

	r2 := e.Spawn(ctx, schema.KindWorker, "r2", "")
	c2 := e.Spawn(ctx, schema.KindHelper, "c2", r2.ID)
	before := e.Connections()[0].Geometry

	// r1's archive triggers a relayout that shifts r2 into the first slot.
	// The r2->c2 edge must track the move without an explicit reconnect.
	mock.Add(2 * time.Second)

	live := e.LiveNodes()
	require.Len(t, live, 2)
	conns := e.Connections()
	require.Len(t, conns, 1)
	assert.NotEqual(t, before.Start, conns[0].Geometry.Start)
	assert.Equal(t, live[0].Position, conns[0].Geometry.Start)
	assert.Equal(t, live[1].Position, conns[0].Geometry.End)
	_ = c2
}

func TestSnapshot_Counters(t *testing.T) {
	e, mock := newTestEngine()
	ctx := context.Background()

	e.Spawn(ctx, schema.KindWorker, "w", "")
	mock.Add(3 * time.Second)

	st := e.Snapshot()
	assert.Equal(t, 1, st.Live)
	assert.Zero(t, st.Collapsing)
	assert.Zero(t, st.Archived)
	assert.InDelta(t, 3.0, st.IdleSeconds, 0.001)

	// A fresh spawn resets the idle counter.
	e.Spawn(ctx, schema.KindHelper, "h", "")
	assert.InDelta(t, 0.0, e.Snapshot().IdleSeconds, 0.001)
}

func TestHub_BatchCompletedSubscription(t *testing.T) {
	e, mock := newTestEngine()
	ctx := context.Background()

	ch, cancel, err := e.Hub().Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventBatchCompleted},
	})
	require.NoError(t, err)
	defer cancel()

	e.Spawn(ctx, schema.KindWorker, "a", "")
	e.Spawn(ctx, schema.KindWorker, "b", "")
	batchID, _ := e.CollapseAll(ctx)
	mock.Add(2 * time.Second)

	select {
	case got := <-ch:
		assert.Equal(t, schema.EventBatchCompleted, got.EventType)
		assert.Equal(t, batchID, got.BatchID)
	default:
		t.Fatal("expected a batch_completed event")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra event: %+v", evt)
	default:
	}
}
