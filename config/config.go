package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables; nested keys are joined
// with EnvDelimiter, e.g. GOCONSUMER__BROKER__GROUP_ID.
const (
	EnvPrefix    = "GOCONSUMER__"
	EnvDelimiter = "__"
)

const (
	ClientFranz  = "franz"
	ClientSarama = "sarama"

	ModePlain       = "plain"
	ModeCommittable = "committable"
	ModePartitioned = "partitioned"

	SemanticsAtLeastOnce = "at-least-once"
	SemanticsAtMostOnce  = "at-most-once"

	// SemanticsExternalStore keeps offsets in a pipeline.OffsetStore
	// instead of the broker
	SemanticsExternalStore = "external-store"

	OnErrorFail = "fail"
	OnErrorSkip = "skip"
)

type BrokerConfig struct {
	Client            string        `koanf:"client"` // franz|sarama
	Brokers           []string      `koanf:"brokers"`
	GroupID           string        `koanf:"group_id"`
	ClientID          string        `koanf:"client_id"`
	OffsetReset       string        `koanf:"offset_reset"` // earliest|latest
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	SaramaVersion     string        `koanf:"sarama_version"`
}

type PartitionConfig struct {
	Topic     string `koanf:"topic"`
	Partition int32  `koanf:"partition"`
	// Offset is the explicit start offset; unset resumes from the committed one
	Offset *int64 `koanf:"offset"`
}

type SubscriptionConfig struct {
	Topics []string          `koanf:"topics"`
	Assign []PartitionConfig `koanf:"assign"`
}

type EngineConfig struct {
	Mode         string        `koanf:"mode"` // plain|committable|partitioned
	BufferSize   int           `koanf:"buffer_size"`
	FetchMaxWait time.Duration `koanf:"fetch_max_wait"`
	FetchRetries int           `koanf:"fetch_retries"`
	FetchBackoff time.Duration `koanf:"fetch_backoff"`
	Decoder      DecoderConfig `koanf:"decoder"`
}

// DecoderConfig names the formats record keys and values are decoded with:
// string, bytes, json or protobuf:<message full name>. Empty leaves the raw
// bytes.
type DecoderConfig struct {
	Key   string `koanf:"key"`
	Value string `koanf:"value"`
}

func (d DecoderConfig) IsZero() bool {
	return d.Key == "" && d.Value == ""
}

type CommitterConfig struct {
	MaxBatch     int           `koanf:"max_batch"`
	MaxInterval  time.Duration `koanf:"max_interval"`
	MaxRetries   int           `koanf:"max_retries"`
	FinalRetries int           `koanf:"final_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

type ControlConfig struct {
	StopTimeout time.Duration `koanf:"stop_timeout"`
}

type SupervisorConfig struct {
	MinBackoff  time.Duration `koanf:"min_backoff"`
	MaxBackoff  time.Duration `koanf:"max_backoff"`
	Jitter      float64       `koanf:"jitter"`
	ResetAfter  time.Duration `koanf:"reset_after"`
	MaxRestarts int           `koanf:"max_restarts"`
}

type PipelineConfig struct {
	Semantics      string        `koanf:"semantics"` // at-least-once|at-most-once|external-store
	HandlerTimeout time.Duration `koanf:"handler_timeout"`
	MaxPartitions  int           `koanf:"max_partitions"`
	// OnError decides what happens to a record whose handler keeps failing
	OnError      string        `koanf:"on_error"` // fail|skip
	MaxAttempts  int           `koanf:"max_attempts"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type Config struct {
	Broker       BrokerConfig       `koanf:"broker"`
	Subscription SubscriptionConfig `koanf:"subscription"`
	Engine       EngineConfig       `koanf:"engine"`
	Committer    CommitterConfig    `koanf:"committer"`
	Control      ControlConfig      `koanf:"control"`
	Supervisor   SupervisorConfig   `koanf:"supervisor"`
	Pipeline     PipelineConfig     `koanf:"pipeline"`
	Log          LogConfig          `koanf:"log"`
	Metrics      MetricsConfig      `koanf:"metrics"`
}

// Load merges the YAML file at path, if present, with environment
// variables, applies defaults and validates the result. An empty path loads
// from the environment only.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("%w: schema_version %q (want v1)", ErrInvalid, sv)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), strings.ToLower(EnvDelimiter), ".")
}

// listKeys are comma separated when read from the environment.
var listKeys = map[string]bool{
	"broker.brokers":      true,
	"subscription.topics": true,
}

func envValue(k, v string) (string, interface{}) {
	key := envKey(k)
	if !listKeys[key] {
		return key, v
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return key, out
}

func applyDefaults(c *Config) {
	if c.Broker.Client == "" {
		c.Broker.Client = ClientFranz
	}
	if len(c.Broker.Brokers) == 0 {
		c.Broker.Brokers = []string{"localhost:9092"}
	}
	if c.Broker.OffsetReset == "" {
		c.Broker.OffsetReset = "earliest"
	}
	if c.Broker.SessionTimeout == 0 {
		c.Broker.SessionTimeout = 45 * time.Second
	}
	if c.Broker.HeartbeatInterval == 0 {
		c.Broker.HeartbeatInterval = 3 * time.Second
	}

	if c.Engine.Mode == "" {
		c.Engine.Mode = ModeCommittable
	}
	if c.Engine.BufferSize == 0 {
		c.Engine.BufferSize = 256
	}
	if c.Engine.FetchMaxWait == 0 {
		c.Engine.FetchMaxWait = 500 * time.Millisecond
	}
	if c.Engine.FetchRetries == 0 {
		c.Engine.FetchRetries = 5
	}
	if c.Engine.FetchBackoff == 0 {
		c.Engine.FetchBackoff = time.Second
	}

	if c.Committer.MaxBatch == 0 {
		c.Committer.MaxBatch = 1000
	}
	if c.Committer.MaxInterval == 0 {
		c.Committer.MaxInterval = 5 * time.Second
	}
	if c.Committer.MaxRetries == 0 {
		c.Committer.MaxRetries = 5
	}
	if c.Committer.FinalRetries == 0 {
		c.Committer.FinalRetries = 5
	}
	if c.Committer.RetryBackoff == 0 {
		c.Committer.RetryBackoff = 100 * time.Millisecond
	}

	if c.Control.StopTimeout == 0 {
		c.Control.StopTimeout = 30 * time.Second
	}

	if c.Supervisor.MinBackoff == 0 {
		c.Supervisor.MinBackoff = time.Second
	}
	if c.Supervisor.MaxBackoff == 0 {
		c.Supervisor.MaxBackoff = 30 * time.Second
	}
	if c.Supervisor.Jitter == 0 {
		c.Supervisor.Jitter = 0.2
	}
	if c.Supervisor.ResetAfter == 0 {
		c.Supervisor.ResetAfter = time.Minute
	}

	if c.Pipeline.Semantics == "" {
		c.Pipeline.Semantics = SemanticsAtLeastOnce
	}
	if c.Pipeline.HandlerTimeout == 0 {
		c.Pipeline.HandlerTimeout = 30 * time.Second
	}
	if c.Pipeline.MaxPartitions == 0 {
		c.Pipeline.MaxPartitions = 100
	}
	if c.Pipeline.OnError == "" {
		c.Pipeline.OnError = OnErrorFail
	}
	if c.Pipeline.MaxAttempts == 0 {
		c.Pipeline.MaxAttempts = 1
	}
	if c.Pipeline.RetryBackoff == 0 {
		c.Pipeline.RetryBackoff = time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}
