package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefold/nodefold/pkg/schema"
)

type recordingSink struct {
	entries []schema.HistoryEntry
	err     error
}

func (s *recordingSink) AppendHistory(_ context.Context, entry schema.HistoryEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestArchive_MonotonicCompletionOrder(t *testing.T) {
	a := New(nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	e0 := a.Append(ctx, "n-3", schema.KindHelper, "check the edges", "", now)
	e1 := a.Append(ctx, "n-2", schema.KindWorker, "draft the change", "", now)
	e2 := a.Append(ctx, "n-1", schema.KindUnderstanding, "read the request", "wrapped up", now)

	assert.Equal(t, int64(0), e0.CompletionOrder)
	assert.Equal(t, int64(1), e1.CompletionOrder)
	assert.Equal(t, int64(2), e2.CompletionOrder)

	all := a.All()
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].CompletionOrder, all[i-1].CompletionOrder)
	}
	assert.Equal(t, "wrapped up", all[2].Annotation)
	assert.Empty(t, all[0].Annotation)
}

func TestArchive_AllReturnsCopy(t *testing.T) {
	a := New(nil, nil)
	a.Append(context.Background(), "n-1", schema.KindWorker, "w", "", time.Now())

	got := a.All()
	got[0].Label = "mutated"
	assert.Equal(t, "w", a.All()[0].Label)
}

func TestArchive_WriteThroughSink(t *testing.T) {
	sink := &recordingSink{}
	a := New(sink, nil)
	ctx := context.Background()

	a.Append(ctx, "n-1", schema.KindWorker, "w", "", time.Now())
	a.Append(ctx, "n-2", schema.KindHelper, "h", "", time.Now())

	require.Len(t, sink.entries, 2)
	assert.Equal(t, a.All(), sink.entries)
}

func TestArchive_SinkFailureDoesNotSurface(t *testing.T) {
	sink := &recordingSink{err: errors.New("db locked")}
	a := New(sink, nil)

	entry := a.Append(context.Background(), "n-1", schema.KindWorker, "w", "", time.Now())
	assert.Equal(t, int64(0), entry.CompletionOrder)
	assert.Equal(t, 1, a.Len())
}
