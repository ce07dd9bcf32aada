package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefold/nodefold/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func mkEntry(order int64, kind schema.NodeKind, annotation string) schema.HistoryEntry {
	return schema.HistoryEntry{
		ID:              uuid.New().String(),
		OriginalID:      uuid.New().String(),
		Kind:            kind,
		Label:           "entry",
		CompletionOrder: order,
		Annotation:      annotation,
		ArchivedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

// --- History Tests ---

func TestAppendAndListHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e0 := mkEntry(0, schema.KindHelper, "")
	e1 := mkEntry(1, schema.KindWorker, "")
	e2 := mkEntry(2, schema.KindUnderstanding, "the board clears")
	require.NoError(t, s.AppendHistory(ctx, e0))
	require.NoError(t, s.AppendHistory(ctx, e1))
	require.NoError(t, s.AppendHistory(ctx, e2))

	got, err := s.ListHistory(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, e0.ID, got[0].ID)
	assert.Equal(t, e2.ID, got[2].ID)
	assert.Equal(t, "the board clears", got[2].Annotation)
	assert.Empty(t, got[0].Annotation)
}

func TestListHistory_FilterByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendHistory(ctx, mkEntry(0, schema.KindWorker, "")))
	require.NoError(t, s.AppendHistory(ctx, mkEntry(1, schema.KindHelper, "")))
	require.NoError(t, s.AppendHistory(ctx, mkEntry(2, schema.KindWorker, "")))

	got, err := s.ListHistory(ctx, HistoryFilter{Kind: schema.KindWorker})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, schema.KindWorker, e.Kind)
	}
}

func TestListHistory_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.AppendHistory(ctx, mkEntry(i, schema.KindWorker, "")))
	}

	got, err := s.ListHistory(ctx, HistoryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(0), got[0].CompletionOrder)
	assert.Equal(t, int64(1), got[1].CompletionOrder)
}

func TestAppendHistory_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := mkEntry(0, schema.KindWorker, "")
	require.NoError(t, s.AppendHistory(ctx, e))

	err := s.AppendHistory(ctx, e)
	require.Error(t, err)
	var fe *schema.FoldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeStore, fe.Code)
}

// --- Event Log Tests ---

func TestAppendEvent_AssignsMonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := &Event{BatchID: "b-1", Type: schema.EventBatchStarted}
	e2 := &Event{BatchID: "b-1", NodeID: "n-1", Type: schema.EventNodeArchived}
	e3 := &Event{Type: schema.EventLayoutUpdated, Payload: json.RawMessage(`{"live":2}`)}

	require.NoError(t, s.AppendEvent(ctx, e1))
	require.NoError(t, s.AppendEvent(ctx, e2))
	require.NoError(t, s.AppendEvent(ctx, e3))

	assert.Equal(t, int64(1), e1.Sequence)
	assert.Equal(t, int64(2), e2.Sequence)
	assert.Equal(t, int64(3), e3.Sequence)
	assert.False(t, e1.Timestamp.IsZero())
}

func TestListEvents_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, &Event{BatchID: "b-1", Type: schema.EventBatchStarted}))
	require.NoError(t, s.AppendEvent(ctx, &Event{BatchID: "b-1", Type: schema.EventBatchCompleted}))
	require.NoError(t, s.AppendEvent(ctx, &Event{BatchID: "b-2", Type: schema.EventBatchStarted}))

	byBatch, err := s.ListEvents(ctx, EventFilter{BatchID: "b-1"})
	require.NoError(t, err)
	require.Len(t, byBatch, 2)

	byType, err := s.ListEvents(ctx, EventFilter{EventType: schema.EventBatchStarted})
	require.NoError(t, err)
	require.Len(t, byType, 2)

	since, err := s.ListEvents(ctx, EventFilter{Since: 2})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "b-2", since[0].BatchID)
}
