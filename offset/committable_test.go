//go:build unit

package offset_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/offset"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	added   []offset.Committable
	flushes int
	addErr  error
}

func (s *recordingSink) Add(_ context.Context, c offset.Committable) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, c)
	return nil
}

func (s *recordingSink) Flush(context.Context) error {
	s.flushes++
	return nil
}

func TestCommittable_CommitAddsAndFlushes(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	c := offset.ForRecord(kafka.Record{Topic: "a", Partition: 0, Offset: 4}, sink)

	require.NoError(t, c.Commit(context.Background()))
	require.Equal(t, []offset.Committable{c}, sink.added)
	require.Equal(t, 1, sink.flushes)
	require.Equal(t, int64(5), c.Position())
	require.Equal(t, "a-0@4", c.String())
}

func TestCommittable_StageDoesNotFlush(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	c := offset.NewCommittable(tpA0, 1, sink)

	require.NoError(t, c.Stage(context.Background()))
	require.Len(t, sink.added, 1)
	require.Zero(t, sink.flushes)
}

func TestCommittable_AddErrorSkipsFlush(t *testing.T) {
	t.Parallel()

	boom := errors.New("closed")
	sink := &recordingSink{addErr: boom}

	err := offset.NewCommittable(tpA0, 1, sink).Commit(context.Background())
	require.ErrorIs(t, err, boom)
	require.Zero(t, sink.flushes)
}

func TestCommittable_WithoutSink(t *testing.T) {
	t.Parallel()

	err := offset.NewCommittable(tpA0, 1, nil).Commit(context.Background())
	require.ErrorIs(t, err, offset.ErrNoCommitter)
}
