package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/twmb/franz-go/pkg/kerr"
)

var (
	_ Broker   = (*SaramaBroker)(nil)
	_ Producer = (*SaramaBroker)(nil)
)

type SaramaBrokerConfig struct {
	BootstrapServers []string
	GroupID          string
	ClientID         string
	Version          sarama.KafkaVersion

	// BufferSize bounds the records sarama holds per partition.
	BufferSize int

	// Tune adjusts the generated sarama config before the client is built.
	Tune func(*sarama.Config)

	Logger logger.Logger
}

type SaramaOption func(*SaramaBrokerConfig)

func WithSaramaBootstrapServers(servers ...string) SaramaOption {
	return func(cfg *SaramaBrokerConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithSaramaGroupID(id string) SaramaOption {
	return func(cfg *SaramaBrokerConfig) {
		cfg.GroupID = id
	}
}

func WithSaramaVersion(v sarama.KafkaVersion) SaramaOption {
	return func(cfg *SaramaBrokerConfig) {
		cfg.Version = v
	}
}

func WithSaramaBuffer(n int) SaramaOption {
	return func(cfg *SaramaBrokerConfig) {
		if n > 0 {
			cfg.BufferSize = n
		}
	}
}

func WithSaramaConfig(tune func(*sarama.Config)) SaramaOption {
	return func(cfg *SaramaBrokerConfig) {
		cfg.Tune = tune
	}
}

func WithSaramaLogger(l logger.Logger) SaramaOption {
	return func(cfg *SaramaBrokerConfig) {
		cfg.Logger = l.With("client", "sarama")
	}
}

type saramaPartition struct {
	pc   sarama.PartitionConsumer
	next int64
}

// SaramaBroker implements Broker for explicitly assigned partitions on
// IBM/sarama. Commits are simple (generation -1) commits against the
// configured group. Subscribe is not supported.
type SaramaBroker struct {
	config SaramaBrokerConfig
	logger logger.Logger

	client   sarama.Client
	consumer sarama.Consumer

	mu         sync.Mutex
	partitions map[TopicPartition]*saramaPartition
	producer   sarama.SyncProducer
	closed     bool
	closeOnce  sync.Once
}

func NewSaramaBroker(opts ...SaramaOption) (*SaramaBroker, error) {
	cfg := SaramaBrokerConfig{
		BootstrapServers: []string{"localhost:9092"},
		ClientID:         "go-consumer",
		Version:          sarama.V2_1_0_0,
		BufferSize:       256,
		Logger:           logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = cfg.Version
	sc.ChannelBufferSize = cfg.BufferSize
	sc.Consumer.Return.Errors = true
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if cfg.Tune != nil {
		cfg.Tune(sc)
	}

	client, err := sarama.NewClient(cfg.BootstrapServers, sc)
	if err != nil {
		return nil, fmt.Errorf("create sarama client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create sarama consumer: %w", err)
	}

	return &SaramaBroker{
		config:     cfg,
		logger:     cfg.Logger,
		client:     client,
		consumer:   consumer,
		partitions: make(map[TopicPartition]*saramaPartition),
	}, nil
}

func (s *SaramaBroker) Subscribe([]string, RebalanceListener) error {
	return fmt.Errorf("sarama subscribe: %w", ErrUnsupported)
}

// partitionConsumer returns the sarama consumer positioned at from,
// reopening it when the caller seeks.
func (s *SaramaBroker) partitionConsumer(tp TopicPartition, from int64) (*saramaPartition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if sp, ok := s.partitions[tp]; ok {
		if sp.next == from {
			return sp, nil
		}

		sp.pc.AsyncClose()
		delete(s.partitions, tp)
	}

	pc, err := s.consumer.ConsumePartition(tp.Topic, tp.Partition, from)
	if err != nil {
		return nil, classifySarama("consume partition", err)
	}

	sp := &saramaPartition{pc: pc, next: from}
	s.partitions[tp] = sp
	s.logger.Debug("Consuming partition", "partition", tp.String(), "offset", from)

	return sp, nil
}

func (s *SaramaBroker) Fetch(ctx context.Context, tp TopicPartition, from int64, maxWait time.Duration) (
	[]Record, error,
) {
	sp, err := s.partitionConsumer(tp, from)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	var records []Record
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case cerr, ok := <-sp.pc.Errors():
		if !ok {
			return nil, ErrNotAssigned
		}
		return nil, classifySarama("fetch", cerr.Err)
	case msg, ok := <-sp.pc.Messages():
		if !ok {
			return nil, ErrNotAssigned
		}
		records = append(records, convertSaramaMessage(msg))
	}

drain:
	for len(records) < s.config.BufferSize {
		select {
		case msg, ok := <-sp.pc.Messages():
			if !ok {
				break drain
			}
			records = append(records, convertSaramaMessage(msg))
		default:
			break drain
		}
	}

	s.mu.Lock()
	sp.next = records[len(records)-1].Offset + 1
	s.mu.Unlock()

	return records, nil
}

// Release closes the partition consumers for tps.
func (s *SaramaBroker) Release(tps ...TopicPartition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tp := range tps {
		if sp, ok := s.partitions[tp]; ok {
			sp.pc.AsyncClose()
			delete(s.partitions, tp)
		}
	}
}

func (s *SaramaBroker) Commit(_ context.Context, positions map[TopicPartition]int64) error {
	if len(positions) == 0 {
		return nil
	}
	if s.config.GroupID == "" {
		return ErrNoGroup
	}

	coordinator, err := s.client.Coordinator(s.config.GroupID)
	if err != nil {
		return classifySarama("find coordinator", err)
	}

	req := &sarama.OffsetCommitRequest{
		Version:                 2,
		ConsumerGroup:           s.config.GroupID,
		ConsumerGroupGeneration: -1,
		RetentionTime:           -1,
	}
	for tp, pos := range positions {
		req.AddBlock(tp.Topic, tp.Partition, pos, 0, "")
	}

	resp, err := coordinator.CommitOffset(req)
	if err != nil {
		_ = s.client.RefreshCoordinator(s.config.GroupID)
		return classifySarama("commit", err)
	}

	for topic, partitions := range resp.Errors {
		for partition, kerror := range partitions {
			if kerror == sarama.ErrNoError {
				continue
			}
			if kerror == sarama.ErrNotCoordinatorForConsumer {
				_ = s.client.RefreshCoordinator(s.config.GroupID)
			}
			return classifySarama("commit", fmt.Errorf("%s-%d: %w", topic, partition, kerror))
		}
	}

	return nil
}

func (s *SaramaBroker) CommittedOffset(_ context.Context, tp TopicPartition) (int64, bool, error) {
	if s.config.GroupID == "" {
		return 0, false, nil
	}

	coordinator, err := s.client.Coordinator(s.config.GroupID)
	if err != nil {
		return 0, false, classifySarama("find coordinator", err)
	}

	req := sarama.NewOffsetFetchRequest(
		s.config.Version, s.config.GroupID, map[string][]int32{tp.Topic: {tp.Partition}},
	)
	resp, err := coordinator.FetchOffset(req)
	if err != nil {
		return 0, false, classifySarama("offset fetch", err)
	}
	if resp.Err != sarama.ErrNoError {
		return 0, false, classifySarama("offset fetch", resp.Err)
	}

	block := resp.GetBlock(tp.Topic, tp.Partition)
	if block == nil {
		return 0, false, nil
	}
	if block.Err != sarama.ErrNoError {
		return 0, false, classifySarama("offset fetch", block.Err)
	}
	if block.Offset < 0 {
		return 0, false, nil
	}

	return block.Offset, true, nil
}

func (s *SaramaBroker) ListOffset(_ context.Context, tp TopicPartition, reset OffsetReset) (int64, error) {
	at := sarama.OffsetOldest
	if reset == OffsetResetLatest {
		at = sarama.OffsetNewest
	}

	offset, err := s.client.GetOffset(tp.Topic, tp.Partition, at)
	if err != nil {
		return 0, classifySarama("list offsets", err)
	}

	return offset, nil
}

func (s *SaramaBroker) Assignment() []TopicPartition {
	s.mu.Lock()
	defer s.mu.Unlock()

	tps := make([]TopicPartition, 0, len(s.partitions))
	for tp := range s.partitions {
		tps = append(tps, tp)
	}

	return SortTopicPartitions(tps)
}

func (s *SaramaBroker) Produce(_ context.Context, record Record) error {
	s.mu.Lock()
	if s.producer == nil {
		p, err := sarama.NewSyncProducerFromClient(s.client)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("create sarama producer: %w", err)
		}
		s.producer = p
	}
	producer := s.producer
	s.mu.Unlock()

	headers := make([]sarama.RecordHeader, len(record.Headers))
	for i, h := range record.Headers {
		headers[i] = sarama.RecordHeader{Key: []byte(h.Key), Value: h.Value}
	}

	_, _, err := producer.SendMessage(
		&sarama.ProducerMessage{
			Topic:   record.Topic,
			Key:     sarama.ByteEncoder(record.Key),
			Value:   sarama.ByteEncoder(record.Value),
			Headers: headers,
		},
	)
	return err
}

func (s *SaramaBroker) Close() {
	s.closeOnce.Do(
		func() {
			s.mu.Lock()
			s.closed = true
			for tp, sp := range s.partitions {
				if err := sp.pc.Close(); err != nil {
					s.logger.Warn("Closing partition consumer", "partition", tp.String(), "error", err)
				}
				delete(s.partitions, tp)
			}
			producer := s.producer
			s.mu.Unlock()

			if producer != nil {
				_ = producer.Close()
			}
			_ = s.consumer.Close()
			_ = s.client.Close()
		},
	)
}

// classifySarama maps sarama's protocol errors onto the shared kerr codes so
// IsTransient applies the same rules to both clients.
func classifySarama(op string, err error) error {
	var kerror sarama.KError
	if errors.As(err, &kerror) {
		if mapped := kerr.ErrorForCode(int16(kerror)); mapped != nil {
			err = fmt.Errorf("%w: %w", err, mapped)
		}
	}

	if errors.Is(err, sarama.ErrOutOfBrokers) || errors.Is(err, sarama.ErrNotConnected) {
		return NewTransientError(op, err)
	}

	return classify(op, err)
}

func convertSaramaMessage(msg *sarama.ConsumerMessage) Record {
	headers := make([]Header, 0, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		headers = append(headers, Header{Key: string(h.Key), Value: h.Value})
	}

	return Record{
		Key:         msg.Key,
		Value:       msg.Value,
		Headers:     headers,
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		LeaderEpoch: -1,
		Timestamp:   msg.Timestamp,
	}
}

// saramaLogger adapts logger.Logger to sarama.StdLogger.
type saramaLogger struct {
	l logger.Logger
}

var _ sarama.StdLogger = (*saramaLogger)(nil)

// NewSaramaLogger returns a sarama.StdLogger writing at debug level to l,
// suitable for assigning to sarama.Logger.
func NewSaramaLogger(l logger.Logger) sarama.StdLogger {
	return &saramaLogger{l: l.With("client", "sarama")}
}

func (s *saramaLogger) Print(v ...any) {
	s.l.Debug(fmt.Sprint(v...))
}

func (s *saramaLogger) Printf(format string, v ...any) {
	s.l.Debug(fmt.Sprintf(format, v...))
}

func (s *saramaLogger) Println(v ...any) {
	s.l.Debug(fmt.Sprint(v...))
}
