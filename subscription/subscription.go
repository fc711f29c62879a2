package subscription

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hugolhafner/go-consumer/kafka"
)

var (
	ErrNoTopics         = errors.New("subscription: no topics")
	ErrNoPartitions     = errors.New("subscription: no partitions")
	ErrDuplicate        = errors.New("subscription: duplicate entry")
	ErrInvalidPartition = errors.New("subscription: invalid topic partition")
	ErrNegativeOffset   = errors.New("subscription: negative starting offset")
	ErrUnknownKind      = errors.New("subscription: unknown subscription type")
)

type Kind int

const (
	// KindTopics lets the group coordinator assign partitions of a topic set.
	KindTopics Kind = iota
	// KindAssignment consumes a fixed set of partitions from their committed
	// or reset offsets.
	KindAssignment
	// KindAssignmentWithOffsets consumes a fixed set of partitions from the
	// given offsets, bypassing the committed offset lookup.
	KindAssignmentWithOffsets
)

func (k Kind) String() string {
	switch k {
	case KindTopics:
		return "topics"
	case KindAssignment:
		return "assignment"
	case KindAssignmentWithOffsets:
		return "assignment-with-offsets"
	default:
		return "unknown"
	}
}

// Subscription declares what an engine consumes. The set of implementations
// is closed: Topics, Assignment and AssignmentWithOffsets. Values are
// immutable; WithListener returns a copy.
type Subscription interface {
	Kind() Kind
	Listener() kafka.RebalanceListener
	WithListener(l kafka.RebalanceListener) Subscription

	sealed()
}

type topics struct {
	topics   []string
	listener kafka.RebalanceListener
}

// Topics subscribes to topics through the consumer group.
func Topics(names ...string) Subscription {
	return topics{topics: slices.Clone(names)}
}

func (s topics) Kind() Kind                        { return KindTopics }
func (s topics) Listener() kafka.RebalanceListener { return s.listener }
func (s topics) sealed()                           {}

func (s topics) WithListener(l kafka.RebalanceListener) Subscription {
	s.topics = slices.Clone(s.topics)
	s.listener = l
	return s
}

func (s topics) String() string {
	return fmt.Sprintf("topics%v", s.topics)
}

type assignment struct {
	partitions []kafka.TopicPartition
	listener   kafka.RebalanceListener
}

// Assignment consumes exactly partitions.
func Assignment(partitions ...kafka.TopicPartition) Subscription {
	return assignment{partitions: slices.Clone(partitions)}
}

func (s assignment) Kind() Kind                        { return KindAssignment }
func (s assignment) Listener() kafka.RebalanceListener { return s.listener }
func (s assignment) sealed()                           {}

func (s assignment) WithListener(l kafka.RebalanceListener) Subscription {
	s.partitions = slices.Clone(s.partitions)
	s.listener = l
	return s
}

func (s assignment) String() string {
	return fmt.Sprintf("assignment%v", s.partitions)
}

type assignmentWithOffsets struct {
	offsets  map[kafka.TopicPartition]int64
	listener kafka.RebalanceListener
}

// AssignmentWithOffsets consumes the keys of offsets, starting each partition
// at its value: the offset of the first record to deliver.
func AssignmentWithOffsets(offsets map[kafka.TopicPartition]int64) Subscription {
	return assignmentWithOffsets{offsets: maps.Clone(offsets)}
}

func (s assignmentWithOffsets) Kind() Kind                        { return KindAssignmentWithOffsets }
func (s assignmentWithOffsets) Listener() kafka.RebalanceListener { return s.listener }
func (s assignmentWithOffsets) sealed()                           {}

func (s assignmentWithOffsets) WithListener(l kafka.RebalanceListener) Subscription {
	s.offsets = maps.Clone(s.offsets)
	s.listener = l
	return s
}

func (s assignmentWithOffsets) String() string {
	return fmt.Sprintf("assignment-with-offsets%v", s.offsets)
}

// Resolved is the validated, flattened form of a Subscription the engine
// works from.
type Resolved struct {
	Kind Kind

	// Topics is set for KindTopics
	Topics []string

	// Partitions is set for both assignment kinds, sorted
	Partitions []kafka.TopicPartition

	// Offsets is set for KindAssignmentWithOffsets
	Offsets map[kafka.TopicPartition]int64

	Listener kafka.RebalanceListener
}

// StartOffset returns the explicit starting offset for tp, if any.
func (r Resolved) StartOffset(tp kafka.TopicPartition) (int64, bool) {
	o, ok := r.Offsets[tp]
	return o, ok
}

// IsAssignment reports whether partitions are fixed rather than handed out by
// the group.
func (r Resolved) IsAssignment() bool {
	return r.Kind == KindAssignment || r.Kind == KindAssignmentWithOffsets
}

// Resolve validates sub and flattens it. The listener is replaced by a no-op
// when none was set.
func Resolve(sub Subscription) (Resolved, error) {
	if sub == nil {
		return Resolved{}, ErrUnknownKind
	}

	listener := sub.Listener()
	if listener == nil {
		listener = kafka.RebalanceListenerFuncs{}
	}

	switch s := sub.(type) {
	case topics:
		if len(s.topics) == 0 {
			return Resolved{}, ErrNoTopics
		}

		seen := make(map[string]struct{}, len(s.topics))
		for _, t := range s.topics {
			if t == "" {
				return Resolved{}, fmt.Errorf("%w: empty topic name", ErrNoTopics)
			}
			if _, dup := seen[t]; dup {
				return Resolved{}, fmt.Errorf("%w: topic %q", ErrDuplicate, t)
			}
			seen[t] = struct{}{}
		}

		return Resolved{Kind: KindTopics, Topics: slices.Sorted(maps.Keys(seen)), Listener: listener}, nil

	case assignment:
		partitions, err := validatePartitions(s.partitions)
		if err != nil {
			return Resolved{}, err
		}

		return Resolved{Kind: KindAssignment, Partitions: partitions, Listener: listener}, nil

	case assignmentWithOffsets:
		partitions, err := validatePartitions(slices.Collect(maps.Keys(s.offsets)))
		if err != nil {
			return Resolved{}, err
		}

		for tp, o := range s.offsets {
			if o < 0 {
				return Resolved{}, fmt.Errorf("%w: %s@%d", ErrNegativeOffset, tp, o)
			}
		}

		return Resolved{
			Kind:       KindAssignmentWithOffsets,
			Partitions: partitions,
			Offsets:    maps.Clone(s.offsets),
			Listener:   listener,
		}, nil

	default:
		return Resolved{}, fmt.Errorf("%w: %T", ErrUnknownKind, sub)
	}
}

func validatePartitions(in []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	if len(in) == 0 {
		return nil, ErrNoPartitions
	}

	seen := make(map[kafka.TopicPartition]struct{}, len(in))
	for _, tp := range in {
		if tp.Topic == "" || tp.Partition < 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPartition, tp)
		}
		if _, dup := seen[tp]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, tp)
		}
		seen[tp] = struct{}{}
	}

	return kafka.SortTopicPartitions(slices.Collect(maps.Keys(seen))), nil
}
