package offset

import (
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Ledger tracks, per partition, the highest record offset handed out and the
// highest record offset durably committed. Both only move forward.
type Ledger struct {
	mu        sync.RWMutex
	seen      map[kafka.TopicPartition]int64
	committed map[kafka.TopicPartition]int64
}

func NewLedger() *Ledger {
	return &Ledger{
		seen:      make(map[kafka.TopicPartition]int64),
		committed: make(map[kafka.TopicPartition]int64),
	}
}

// Record notes that offset was seen on tp. It returns false and leaves the
// ledger untouched when offset is not above what was already seen.
func (l *Ledger) Record(tp kafka.TopicPartition, offset int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return raise(l.seen, tp, offset)
}

func (l *Ledger) HighestSeen(tp kafka.TopicPartition) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o, ok := l.seen[tp]
	return o, ok
}

// MarkCommitted records a successful broker commit of offset on tp.
func (l *Ledger) MarkCommitted(tp kafka.TopicPartition, offset int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return raise(l.committed, tp, offset)
}

func (l *Ledger) HighestCommitted(tp kafka.TopicPartition) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o, ok := l.committed[tp]
	return o, ok
}

// Forget drops all state for tps.
func (l *Ledger) Forget(tps ...kafka.TopicPartition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, tp := range tps {
		delete(l.seen, tp)
		delete(l.committed, tp)
	}
}

// Partitions returns every partition the ledger holds state for.
func (l *Ledger) Partitions() []kafka.TopicPartition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	set := make(map[kafka.TopicPartition]struct{}, len(l.seen))
	for tp := range l.seen {
		set[tp] = struct{}{}
	}
	for tp := range l.committed {
		set[tp] = struct{}{}
	}

	tps := make([]kafka.TopicPartition, 0, len(set))
	for tp := range set {
		tps = append(tps, tp)
	}
	return kafka.SortTopicPartitions(tps)
}

func raise(m map[kafka.TopicPartition]int64, tp kafka.TopicPartition, offset int64) bool {
	if cur, ok := m[tp]; ok && offset <= cur {
		return false
	}
	m[tp] = offset
	return true
}
