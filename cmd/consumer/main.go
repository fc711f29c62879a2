package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	consumer "github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/pipeline"
	"github.com/hugolhafner/go-consumer/plugins/zaplogger"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	// well-known types for engine.decoder protobuf:<name>
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

type arguments struct {
	Config   string           `help:"Path to the YAML config file." type:"path" short:"c" env:"GOCONSUMER_CONFIG"`
	LogLevel string           `help:"Overrides log.level (debug, info, warn, error)." name:"log-level"`
	Metrics  bool             `help:"Serve Prometheus metrics regardless of metrics.enabled."`
	Version  kong.VersionFlag `help:"Print the version and exit."`
}

func main() {
	var args arguments
	kong.Parse(
		&args,
		kong.Name("consumer"),
		kong.Description("Consumes Kafka records and logs them, committing offsets as configured."),
		kong.Vars{"version": consumer.Version},
	)

	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, "consumer:", err)
		os.Exit(1)
	}
}

func run(args arguments) error {
	cfg, err := config.Load(args.Config)
	if err != nil {
		return err
	}
	if args.LogLevel != "" {
		cfg.Log.Level = args.LogLevel
	}
	if args.Metrics {
		cfg.Metrics.Enabled = true
	}

	l, zl, err := zaplogger.NewProduction(logger.ParseLevel(cfg.Log.Level), cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, shutdownTelemetry, err := setupTelemetry(ctx, cfg.Metrics, l)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	// lives across restarts so an external-store run resumes where the last
	// one stopped
	store := pipeline.NewMemoryStore()

	subscribe, err := cfg.Subscribe(store)
	if err != nil {
		return err
	}

	app := consumer.NewApplication(
		cfg.Brokers(l),
		subscribe,
		cfg.BuildPipeline(store, logRecord(l), cfg.PipelineOptions(l, tel)...),
		consumer.WithLogger(l),
		consumer.WithEngineOptions(cfg.EngineOptions(l, tel)...),
		consumer.WithSupervisorOptions(cfg.SupervisorOptions(l, tel)...),
	)

	l.Info(
		"Starting consumer",
		"client", cfg.Broker.Client,
		"brokers", cfg.Broker.Brokers,
		"mode", cfg.Engine.Mode,
		"semantics", cfg.Pipeline.Semantics,
	)

	err = app.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Error("Consumer stopped with error", "error", err)
		return err
	}

	l.Info("Consumer stopped")
	return nil
}

func logRecord(l logger.Logger) pipeline.Handler {
	return func(ctx context.Context, r kafka.Record) error {
		kv := []any{
			"topic", r.Topic,
			"partition", r.Partition,
			"offset", r.Offset,
			"bytes", len(r.Value),
		}

		// engine.decoder set: log what it decoded
		if key, value, ok := pipeline.Decoded(ctx); ok {
			kv = append(kv, "key", printable(key), "value", printable(value))
		} else {
			kv = append(kv, "key", string(r.Key))
		}

		l.Info("Record", kv...)
		return nil
	}
}

func printable(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case proto.Message:
		return prototext.Format(v)
	default:
		return v
	}
}
