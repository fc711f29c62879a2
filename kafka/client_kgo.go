package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var (
	_ Broker   = (*KgoBroker)(nil)
	_ Producer = (*KgoBroker)(nil)
)

type KgoBrokerConfig struct {
	BootstrapServers  []string
	GroupID           string
	ClientID          string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	FetchMaxWait      time.Duration
	FetchMaxBytes     int32
	OffsetReset       OffsetReset

	// BufferSize is the number of records held per partition before fetching
	// for that partition is paused.
	BufferSize int

	// ExtraOptions are appended to the generated kgo options.
	ExtraOptions []kgo.Opt

	Logger logger.Logger
}

func defaultKgoConfig() KgoBrokerConfig {
	return KgoBrokerConfig{
		BootstrapServers:  []string{"localhost:9092"},
		ClientID:          "go-consumer-" + uuid.NewString(),
		SessionTimeout:    45 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		FetchMaxWait:      500 * time.Millisecond,
		FetchMaxBytes:     50 << 20,
		BufferSize:        500,
		Logger:            logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoBrokerConfig)

func WithBootstrapServers(servers ...string) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithGroupID(id string) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.GroupID = id
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.ClientID = id
	}
}

func WithSessionTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.SessionTimeout = d
	}
}

func WithHeartbeatInterval(d time.Duration) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.HeartbeatInterval = d
	}
}

func WithFetchMaxWait(d time.Duration) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.FetchMaxWait = d
	}
}

func WithOffsetReset(reset OffsetReset) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.OffsetReset = reset
	}
}

func WithPartitionBuffer(n int) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		if n > 0 {
			cfg.BufferSize = n
		}
	}
}

func WithKgoOptions(opts ...kgo.Opt) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.ExtraOptions = append(cfg.ExtraOptions, opts...)
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoBrokerConfig) {
		cfg.Logger = l.With("client", "kgo")
	}
}

// kgoPartition buffers records fetched ahead for one partition. pos is the
// offset the next Fetch is expected to ask for, -1 until known.
type kgoPartition struct {
	buf         []Record
	pos         int64
	seekPending bool
	seen        bool
	paused      bool
	err         error
	notify      chan struct{}
}

func newKgoPartition() *kgoPartition {
	return &kgoPartition{pos: -1, notify: make(chan struct{}, 1)}
}

func (p *kgoPartition) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// KgoBroker implements Broker on franz-go. Calling Subscribe puts it in group
// mode; fetching a partition without subscribing puts it in direct mode.
// A background loop polls the client and spreads records into bounded
// per-partition buffers.
type KgoBroker struct {
	config KgoBrokerConfig
	logger logger.Logger

	mu         sync.Mutex
	client     *kgo.Client
	group      bool
	closed     bool
	subscribed bool
	listener   RebalanceListener
	partitions map[TopicPartition]*kgoPartition

	pollCancel context.CancelFunc
	pollDone   chan struct{}
	closeOnce  sync.Once
}

func NewKgoBroker(opts ...KgoOption) (*KgoBroker, error) {
	cfg := defaultKgoConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.BootstrapServers) == 0 {
		return nil, errors.New("kafka: no bootstrap servers configured")
	}

	return &KgoBroker{
		config:     cfg,
		logger:     cfg.Logger,
		partitions: make(map[TopicPartition]*kgoPartition),
	}, nil
}

func (k *KgoBroker) baseOptions() []kgo.Opt {
	reset := kgo.NewOffset().AtStart()
	if k.config.OffsetReset == OffsetResetLatest {
		reset = kgo.NewOffset().AtEnd()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(k.config.BootstrapServers...),
		kgo.ClientID(k.config.ClientID),
		kgo.WithLogger(newKgoLogger(k.logger)),
		kgo.FetchMaxWait(k.config.FetchMaxWait),
		kgo.FetchMaxBytes(k.config.FetchMaxBytes),
		kgo.ConsumeResetOffset(reset),
	}

	return opts
}

// ensureClient lazily builds the kgo client in the requested mode. k.mu must
// be held.
func (k *KgoBroker) ensureClient(group bool) (*kgo.Client, error) {
	if k.closed {
		return nil, ErrClosed
	}

	if k.client != nil {
		if group && !k.group {
			return nil, ErrModeConflict
		}
		return k.client, nil
	}

	opts := k.baseOptions()
	if group {
		if k.config.GroupID == "" {
			return nil, ErrNoGroup
		}

		opts = append(
			opts,
			kgo.ConsumerGroup(k.config.GroupID),
			kgo.SessionTimeout(k.config.SessionTimeout),
			kgo.HeartbeatInterval(k.config.HeartbeatInterval),
			kgo.DisableAutoCommit(),
			kgo.OnPartitionsAssigned(k.onAssigned),
			kgo.OnPartitionsRevoked(k.onRevoked),
			kgo.OnPartitionsLost(k.onRevoked),
			kgo.AdjustFetchOffsetsFn(k.adjustOffsets),
		)
	}
	opts = append(opts, k.config.ExtraOptions...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	k.client = client
	k.group = group
	k.pollCancel = cancel
	k.pollDone = make(chan struct{})

	go k.pollLoop(ctx, client)

	return client, nil
}

// adminClient returns a client for offset and metadata requests, creating a
// direct-mode one if nothing exists yet.
func (k *KgoBroker) adminClient() (*kgo.Client, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.client != nil {
		return k.client, nil
	}

	return k.ensureClient(false)
}

func (k *KgoBroker) Subscribe(topics []string, l RebalanceListener) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return ErrSubscribed
	}
	if k.client != nil && !k.group {
		return ErrModeConflict
	}

	k.listener = l
	client, err := k.ensureClient(true)
	if err != nil {
		k.listener = nil
		return err
	}
	k.subscribed = true

	client.AddConsumeTopics(topics...)
	k.logger.Info("Subscribed", "topics", topics, "group", k.config.GroupID)

	return nil
}

func (k *KgoBroker) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	tps := mapToTopicPartitions(assigned)

	k.mu.Lock()
	for _, tp := range tps {
		if _, ok := k.partitions[tp]; !ok {
			k.partitions[tp] = newKgoPartition()
		}
	}
	l := k.listener
	k.mu.Unlock()

	k.logger.Debug("Partitions assigned", "partitions", tps)
	if l != nil {
		l.OnAssigned(ctx, tps)
	}
}

func (k *KgoBroker) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	tps := mapToTopicPartitions(revoked)

	k.mu.Lock()
	l := k.listener
	k.mu.Unlock()

	k.logger.Debug("Partitions revoked", "partitions", tps)
	if l != nil {
		l.OnRevoked(ctx, tps)
	}

	k.mu.Lock()
	for _, tp := range tps {
		if p, ok := k.partitions[tp]; ok {
			p.signal()
			delete(k.partitions, tp)
		}
	}
	k.mu.Unlock()
}

// adjustOffsets applies positions the engine asked for before kgo starts
// fetching, and remembers kgo's own starting points otherwise.
func (k *KgoBroker) adjustOffsets(_ context.Context, offsets map[string]map[int32]kgo.Offset) (
	map[string]map[int32]kgo.Offset, error,
) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for topic, partitions := range offsets {
		for partition, o := range partitions {
			p, ok := k.partitions[TopicPartition{Topic: topic, Partition: partition}]
			if !ok {
				continue
			}

			if p.seekPending {
				partitions[partition] = kgo.NewOffset().At(p.pos).WithEpoch(-1)
				p.seekPending = false
				continue
			}

			if eo := o.EpochOffset(); eo.Offset >= 0 && p.pos < 0 {
				p.pos = eo.Offset
			}
		}
	}

	return offsets, nil
}

func (k *KgoBroker) pollLoop(ctx context.Context, client *kgo.Client) {
	defer close(k.pollDone)

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}

		seeks := make(map[string]map[int32]kgo.EpochOffset)
		var pause []TopicPartition

		k.mu.Lock()
		fetches.EachError(
			func(topic string, partition int32, err error) {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}

				tp := TopicPartition{Topic: topic, Partition: partition}
				if p, ok := k.partitions[tp]; ok {
					p.err = err
					p.signal()
					return
				}

				k.logger.Warn("Fetch error for unowned partition", "partition", tp.String(), "error", err)
			},
		)

		fetches.EachPartition(
			func(ftp kgo.FetchTopicPartition) {
				tp := TopicPartition{Topic: ftp.Topic, Partition: ftp.Partition}
				p, ok := k.partitions[tp]
				if !ok || len(ftp.Records) == 0 {
					return
				}
				p.seen = true

				if p.seekPending {
					if seeks[tp.Topic] == nil {
						seeks[tp.Topic] = make(map[int32]kgo.EpochOffset)
					}
					seeks[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: p.pos}
					p.seekPending = false
					p.buf = p.buf[:0]
					return
				}

				last := p.pos - 1
				if n := len(p.buf); n > 0 {
					last = p.buf[n-1].Offset
				}
				for _, r := range ftp.Records {
					if r.Offset <= last {
						continue
					}
					p.buf = append(p.buf, convertRecord(r))
					last = r.Offset
				}

				if len(p.buf) >= k.config.BufferSize && !p.paused {
					p.paused = true
					pause = append(pause, tp)
				}
				p.signal()
			},
		)
		k.mu.Unlock()

		if len(seeks) > 0 {
			client.SetOffsets(seeks)
		}
		if len(pause) > 0 {
			client.PauseFetchPartitions(topicPartitionsToMap(pause))
		}
	}
}

// Fetch drains the partition's buffer. A from that differs from the
// buffered position is treated as a seek.
func (k *KgoBroker) Fetch(ctx context.Context, tp TopicPartition, from int64, maxWait time.Duration) (
	[]Record, error,
) {
	p, client, err := k.fetchPartition(tp, from)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		k.mu.Lock()
		if cur, ok := k.partitions[tp]; !ok || cur != p {
			k.mu.Unlock()
			return nil, ErrNotAssigned
		}

		if p.err != nil {
			err := p.err
			p.err = nil
			k.mu.Unlock()
			return nil, fmt.Errorf("fetch %s: %w", tp, err)
		}

		if len(p.buf) > 0 && !p.seekPending {
			records := p.buf
			p.buf = nil
			p.pos = records[len(records)-1].Offset + 1
			resume := p.paused
			p.paused = false
			k.mu.Unlock()

			if resume {
				client.ResumeFetchPartitions(topicPartitionsToMap([]TopicPartition{tp}))
			}
			return records, nil
		}
		k.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-p.notify:
		}
	}
}

func (k *KgoBroker) fetchPartition(tp TopicPartition, from int64) (*kgoPartition, *kgo.Client, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, nil, ErrClosed
	}

	if k.client != nil && k.group {
		p, ok := k.partitions[tp]
		if !ok {
			return nil, nil, ErrNotAssigned
		}

		if p.pos != from {
			switch {
			case p.pos < 0 && len(p.buf) > 0 && p.buf[0].Offset == from:
				p.pos = from
			default:
				p.pos = from
				p.buf = nil
				p.seekPending = true
				if p.seen {
					p.seekPending = false
					k.client.SetOffsets(
						map[string]map[int32]kgo.EpochOffset{
							tp.Topic: {tp.Partition: {Epoch: -1, Offset: from}},
						},
					)
				}
			}
			if p.paused {
				p.paused = false
				k.client.ResumeFetchPartitions(topicPartitionsToMap([]TopicPartition{tp}))
			}
		}
		return p, k.client, nil
	}

	client, err := k.ensureClient(false)
	if err != nil {
		return nil, nil, err
	}

	p, ok := k.partitions[tp]
	if !ok {
		p = newKgoPartition()
		p.pos = from
		k.partitions[tp] = p
		client.AddConsumePartitions(
			map[string]map[int32]kgo.Offset{
				tp.Topic: {tp.Partition: kgo.NewOffset().At(from)},
			},
		)
		return p, client, nil
	}

	if p.pos != from {
		p.pos = from
		p.buf = nil
		client.SetOffsets(
			map[string]map[int32]kgo.EpochOffset{
				tp.Topic: {tp.Partition: {Epoch: -1, Offset: from}},
			},
		)
		if p.paused {
			p.paused = false
			client.ResumeFetchPartitions(topicPartitionsToMap([]TopicPartition{tp}))
		}
	}

	return p, client, nil
}

// Release stops consuming directly assigned partitions.
func (k *KgoBroker) Release(tps ...TopicPartition) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.client == nil || k.group {
		return
	}

	for _, tp := range tps {
		if p, ok := k.partitions[tp]; ok {
			p.signal()
			delete(k.partitions, tp)
		}
	}
	k.client.RemoveConsumePartitions(topicPartitionsToMap(tps))
}

func (k *KgoBroker) Commit(ctx context.Context, positions map[TopicPartition]int64) error {
	if len(positions) == 0 {
		return nil
	}

	k.mu.Lock()
	client, group := k.client, k.group
	closed := k.closed
	k.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if client != nil && group {
		return k.commitGroup(ctx, client, positions)
	}

	if k.config.GroupID == "" {
		return ErrNoGroup
	}

	client, err := k.adminClient()
	if err != nil {
		return err
	}

	return k.commitSimple(ctx, client, positions)
}

func (k *KgoBroker) commitGroup(ctx context.Context, client *kgo.Client, positions map[TopicPartition]int64) error {
	offsets := make(map[string]map[int32]kgo.EpochOffset)
	for tp, pos := range positions {
		if offsets[tp.Topic] == nil {
			offsets[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		offsets[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: pos}
	}

	var commitErr error
	client.CommitOffsetsSync(
		ctx, offsets,
		func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
			if err != nil {
				commitErr = err
				return
			}
			commitErr = commitResponseError(resp)
		},
	)

	return classify("commit", commitErr)
}

// commitSimple commits outside of group membership, which brokers accept
// for an empty group when the generation is -1.
func (k *KgoBroker) commitSimple(ctx context.Context, client *kgo.Client, positions map[TopicPartition]int64) error {
	req := kmsg.NewPtrOffsetCommitRequest()
	req.Group = k.config.GroupID
	req.Generation = -1

	byTopic := make(map[string]*kmsg.OffsetCommitRequestTopic)
	for tp, pos := range positions {
		rt, ok := byTopic[tp.Topic]
		if !ok {
			t := kmsg.NewOffsetCommitRequestTopic()
			t.Topic = tp.Topic
			rt = &t
			byTopic[tp.Topic] = rt
		}

		rp := kmsg.NewOffsetCommitRequestTopicPartition()
		rp.Partition = tp.Partition
		rp.Offset = pos
		rp.LeaderEpoch = -1
		rt.Partitions = append(rt.Partitions, rp)
	}
	for _, rt := range byTopic {
		req.Topics = append(req.Topics, *rt)
	}

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return classify("commit", err)
	}

	return classify("commit", commitResponseError(resp))
}

func commitResponseError(resp *kmsg.OffsetCommitResponse) error {
	if resp == nil {
		return nil
	}

	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return fmt.Errorf("%s-%d: %w", t.Topic, p.Partition, err)
			}
		}
	}

	return nil
}

func (k *KgoBroker) CommittedOffset(ctx context.Context, tp TopicPartition) (int64, bool, error) {
	if k.config.GroupID == "" {
		return 0, false, nil
	}

	client, err := k.adminClient()
	if err != nil {
		return 0, false, err
	}

	req := kmsg.NewPtrOffsetFetchRequest()
	req.Group = k.config.GroupID
	rt := kmsg.NewOffsetFetchRequestTopic()
	rt.Topic = tp.Topic
	rt.Partitions = []int32{tp.Partition}
	req.Topics = append(req.Topics, rt)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return 0, false, classify("offset fetch", err)
	}
	// a group that never committed does not exist yet
	if err := kerr.ErrorForCode(resp.ErrorCode); err != nil {
		if errors.Is(err, kerr.GroupIDNotFound) {
			return 0, false, nil
		}
		return 0, false, classify("offset fetch", err)
	}

	for _, t := range resp.Topics {
		if t.Topic != tp.Topic {
			continue
		}
		for _, p := range t.Partitions {
			if p.Partition != tp.Partition {
				continue
			}
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				if errors.Is(err, kerr.GroupIDNotFound) {
					return 0, false, nil
				}
				return 0, false, classify("offset fetch", err)
			}
			if p.Offset < 0 {
				return 0, false, nil
			}
			return p.Offset, true, nil
		}
	}

	return 0, false, nil
}

func (k *KgoBroker) ListOffset(ctx context.Context, tp TopicPartition, reset OffsetReset) (int64, error) {
	client, err := k.adminClient()
	if err != nil {
		return 0, err
	}

	req := kmsg.NewPtrListOffsetsRequest()
	rt := kmsg.NewListOffsetsRequestTopic()
	rt.Topic = tp.Topic
	rp := kmsg.NewListOffsetsRequestTopicPartition()
	rp.Partition = tp.Partition
	rp.CurrentLeaderEpoch = -1
	rp.Timestamp = -2
	if reset == OffsetResetLatest {
		rp.Timestamp = -1
	}
	rt.Partitions = append(rt.Partitions, rp)
	req.Topics = append(req.Topics, rt)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return 0, classify("list offsets", err)
	}

	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if t.Topic != tp.Topic || p.Partition != tp.Partition {
				continue
			}
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return 0, classify("list offsets", err)
			}
			return p.Offset, nil
		}
	}

	return 0, NewTransientError("list offsets", fmt.Errorf("%s missing from response", tp))
}

// PartitionsFor returns every partition of topic as reported by metadata.
func (k *KgoBroker) PartitionsFor(ctx context.Context, topic string) ([]TopicPartition, error) {
	client, err := k.adminClient()
	if err != nil {
		return nil, err
	}

	req := kmsg.NewPtrMetadataRequest()
	rt := kmsg.NewMetadataRequestTopic()
	rt.Topic = kmsg.StringPtr(topic)
	req.Topics = append(req.Topics, rt)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return nil, classify("metadata", err)
	}

	var tps []TopicPartition
	for _, t := range resp.Topics {
		if t.Topic == nil || *t.Topic != topic {
			continue
		}
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			return nil, classify("metadata", err)
		}
		for _, p := range t.Partitions {
			tps = append(tps, TopicPartition{Topic: topic, Partition: p.Partition})
		}
	}

	return SortTopicPartitions(tps), nil
}

func (k *KgoBroker) Assignment() []TopicPartition {
	k.mu.Lock()
	defer k.mu.Unlock()

	tps := make([]TopicPartition, 0, len(k.partitions))
	for tp := range k.partitions {
		tps = append(tps, tp)
	}

	return SortTopicPartitions(tps)
}

func (k *KgoBroker) Produce(ctx context.Context, record Record) error {
	client, err := k.adminClient()
	if err != nil {
		return err
	}

	r := &kgo.Record{
		Topic:   record.Topic,
		Key:     record.Key,
		Value:   record.Value,
		Headers: convertToKgoHeaders(record.Headers),
	}
	return client.ProduceSync(ctx, r).FirstErr()
}

func (k *KgoBroker) Close() {
	k.closeOnce.Do(
		func() {
			k.mu.Lock()
			client := k.client
			cancel := k.pollCancel
			done := k.pollDone
			k.closed = true
			k.mu.Unlock()

			if client == nil {
				return
			}

			cancel()
			client.Close()
			<-done

			k.mu.Lock()
			for tp, p := range k.partitions {
				p.signal()
				delete(k.partitions, tp)
			}
			k.mu.Unlock()
		},
	)
}

// classify wraps retriable protocol errors as transient and maps rebalance
// codes to ErrRebalanceInProgress.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if IsRebalanceInProgress(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrRebalanceInProgress, err)
	}

	if IsTransient(err) {
		return NewTransientError(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func convertRecord(r *kgo.Record) Record {
	return Record{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		Key:         r.Key,
		Value:       r.Value,
		Headers:     convertFromKgoHeaders(r.Headers),
		Timestamp:   r.Timestamp,
		LeaderEpoch: r.LeaderEpoch,
	}
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}

func topicPartitionsToMap(tps []TopicPartition) map[string][]int32 {
	m := make(map[string][]int32)
	for _, tp := range tps {
		m[tp.Topic] = append(m[tp.Topic], tp.Partition)
	}
	return m
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return SortTopicPartitions(tps)
}
