//go:build unit

package offset_test

import (
	"sync"
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/offset"
	"github.com/stretchr/testify/require"
)

func TestLedger_RecordIsMonotonic(t *testing.T) {
	t.Parallel()

	l := offset.NewLedger()

	_, ok := l.HighestSeen(tpA0)
	require.False(t, ok)

	require.True(t, l.Record(tpA0, 5))
	require.False(t, l.Record(tpA0, 3))
	require.False(t, l.Record(tpA0, 5))
	require.True(t, l.Record(tpA0, 6))

	o, ok := l.HighestSeen(tpA0)
	require.True(t, ok)
	require.Equal(t, int64(6), o)
}

func TestLedger_MarkCommittedIsMonotonic(t *testing.T) {
	t.Parallel()

	l := offset.NewLedger()

	require.True(t, l.MarkCommitted(tpA0, 10))
	require.False(t, l.MarkCommitted(tpA0, 9))

	o, ok := l.HighestCommitted(tpA0)
	require.True(t, ok)
	require.Equal(t, int64(10), o)
}

func TestLedger_Forget(t *testing.T) {
	t.Parallel()

	l := offset.NewLedger()
	l.Record(tpA0, 1)
	l.MarkCommitted(tpA0, 1)
	l.Record(tpB0, 2)

	require.Equal(t, []kafka.TopicPartition{tpA0, tpB0}, l.Partitions())

	l.Forget(tpA0)

	_, ok := l.HighestSeen(tpA0)
	require.False(t, ok)
	_, ok = l.HighestCommitted(tpA0)
	require.False(t, ok)
	require.Equal(t, []kafka.TopicPartition{tpB0}, l.Partitions())
}

func TestLedger_ConcurrentRecordKeepsMaximum(t *testing.T) {
	t.Parallel()

	l := offset.NewLedger()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				l.Record(tpA0, int64(i*8+w))
			}
		}()
	}
	wg.Wait()

	o, ok := l.HighestSeen(tpA0)
	require.True(t, ok)
	require.Equal(t, int64(999*8+7), o)
}
