package offset

import (
	"maps"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Batch maps each partition to the highest record offset added for it.
// Batches are values: Updated, Merge and Without return new batches and leave
// the receiver unchanged. Merging is commutative and idempotent.
type Batch struct {
	offsets map[kafka.TopicPartition]int64
	adds    int
}

func NewBatch(cs ...Committable) Batch {
	b := Batch{}
	for _, c := range cs {
		b = b.Updated(c)
	}
	return b
}

// BatchFromOffsets builds a batch from record offsets.
func BatchFromOffsets(offsets map[kafka.TopicPartition]int64) Batch {
	return Batch{offsets: maps.Clone(offsets), adds: len(offsets)}
}

// Updated returns b with c folded in.
func (b Batch) Updated(c Committable) Batch {
	out := Batch{offsets: make(map[kafka.TopicPartition]int64, len(b.offsets)+1), adds: b.adds + 1}
	maps.Copy(out.offsets, b.offsets)

	if cur, ok := out.offsets[c.TopicPartition]; !ok || c.Offset > cur {
		out.offsets[c.TopicPartition] = c.Offset
	}

	return out
}

// Merge returns the per-partition maximum of b and other.
func (b Batch) Merge(other Batch) Batch {
	out := Batch{
		offsets: make(map[kafka.TopicPartition]int64, len(b.offsets)+len(other.offsets)),
		adds:    b.adds + other.adds,
	}
	maps.Copy(out.offsets, b.offsets)

	for tp, o := range other.offsets {
		if cur, ok := out.offsets[tp]; !ok || o > cur {
			out.offsets[tp] = o
		}
	}

	return out
}

// Without returns b minus tps.
func (b Batch) Without(tps ...kafka.TopicPartition) Batch {
	out := Batch{offsets: maps.Clone(b.offsets), adds: b.adds}
	for _, tp := range tps {
		delete(out.offsets, tp)
	}
	if len(out.offsets) == 0 {
		out.adds = 0
	}
	return out
}

// Filter keeps the entries keep returns true for.
func (b Batch) Filter(keep func(tp kafka.TopicPartition, offset int64) bool) Batch {
	out := Batch{offsets: make(map[kafka.TopicPartition]int64, len(b.offsets)), adds: b.adds}
	for tp, o := range b.offsets {
		if keep(tp, o) {
			out.offsets[tp] = o
		}
	}
	if len(out.offsets) == 0 {
		out.adds = 0
	}
	return out
}

// Offset returns the highest record offset for tp.
func (b Batch) Offset(tp kafka.TopicPartition) (int64, bool) {
	o, ok := b.offsets[tp]
	return o, ok
}

// Offsets returns a copy of the record offsets.
func (b Batch) Offsets() map[kafka.TopicPartition]int64 {
	out := make(map[kafka.TopicPartition]int64, len(b.offsets))
	maps.Copy(out, b.offsets)
	return out
}

// Positions returns offset+1 per partition, the values a broker commit takes.
func (b Batch) Positions() map[kafka.TopicPartition]int64 {
	out := make(map[kafka.TopicPartition]int64, len(b.offsets))
	for tp, o := range b.offsets {
		out[tp] = o + 1
	}
	return out
}

func (b Batch) Partitions() []kafka.TopicPartition {
	tps := make([]kafka.TopicPartition, 0, len(b.offsets))
	for tp := range b.offsets {
		tps = append(tps, tp)
	}
	return kafka.SortTopicPartitions(tps)
}

// Len is the number of partitions in the batch.
func (b Batch) Len() int {
	return len(b.offsets)
}

// Adds counts the committables folded into the batch, including superseded
// ones.
func (b Batch) Adds() int {
	return b.adds
}

func (b Batch) IsEmpty() bool {
	return len(b.offsets) == 0
}

// Equal compares offsets only.
func (b Batch) Equal(other Batch) bool {
	return maps.Equal(b.offsets, other.offsets)
}
