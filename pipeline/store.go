package pipeline

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/subscription"
)

// OffsetStore persists the offset of the last record handled per partition
// outside the broker.
type OffsetStore interface {
	Load(ctx context.Context) (map[kafka.TopicPartition]int64, error)
	Save(ctx context.Context, tp kafka.TopicPartition, offset int64) error
}

var _ OffsetStore = (*MemoryStore)(nil)

// MemoryStore is an OffsetStore backed by a map.
type MemoryStore struct {
	mu      sync.Mutex
	offsets map[kafka.TopicPartition]int64
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offsets: make(map[kafka.TopicPartition]int64)}
}

func (s *MemoryStore) Load(context.Context) (map[kafka.TopicPartition]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.offsets), nil
}

func (s *MemoryStore) Save(_ context.Context, tp kafka.TopicPartition, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offsets[tp] = offset
	s.saves++
	return nil
}

func (s *MemoryStore) Offset(tp kafka.TopicPartition) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offsets[tp]
	return o, ok
}

func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saves
}

// SeedSubscription loads store and assigns tps starting after the stored
// offsets. Partitions with nothing stored start at offset 0.
func SeedSubscription(ctx context.Context, store OffsetStore, tps ...kafka.TopicPartition) (
	subscription.Subscription, error,
) {
	if store == nil {
		return nil, ErrNilStore
	}

	stored, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load offsets: %w", err)
	}

	offsets := make(map[kafka.TopicPartition]int64, len(tps))
	for _, tp := range tps {
		if o, ok := stored[tp]; ok {
			offsets[tp] = o + 1
		} else {
			offsets[tp] = 0
		}
	}

	return subscription.AssignmentWithOffsets(offsets), nil
}

// ExternalStore returns a stage for a plain engine that saves each record's
// offset to store after h has finished with it. The broker's offset store is
// not used.
func ExternalStore(e *engine.Engine, store OffsetStore, h Handler, opts ...Option) control.Stage {
	p := newProcessor(h, "external-store", opts)

	return func(ctx context.Context) (any, error) {
		records := e.Records()
		if records == nil {
			return nil, fmt.Errorf("external store needs a plain engine: %w", ErrWrongMode)
		}
		if store == nil {
			return nil, ErrNilStore
		}

		var t tally
		for {
			var (
				r  kafka.Record
				ok bool
			)

			select {
			case <-ctx.Done():
				return t.result(), ctx.Err()
			case r, ok = <-records:
				if !ok {
					return t.result(), nil
				}
			}

			o, err := p.process(ctx, r)
			if err != nil {
				return t.result(), err
			}
			t.add(o)

			if err := store.Save(ctx, r.TopicPartition(), r.Offset); err != nil {
				return t.result(), fmt.Errorf("save %s@%d: %w", r.TopicPartition(), r.Offset, err)
			}
		}
	}
}
