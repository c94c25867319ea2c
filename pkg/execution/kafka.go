package execution

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/plugin/kprom"
)

// KafkaEnqueuer produces executions to a Kafka topic, keyed by execution ID.
type KafkaEnqueuer struct {
	client *kgo.Client
	topic  string
	logger log.Logger
}

func NewKafkaEnqueuer(cfg KafkaConfig, logger log.Logger, reg prometheus.Registerer) (*KafkaEnqueuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := kprom.NewMetrics("cqlflow_executions",
		kprom.Registerer(reg),
		kprom.FetchAndProduceDetail(kprom.Batches, kprom.Records, kprom.CompressedBytes, kprom.UncompressedBytes))

	opts := []kgo.Opt{
		kgo.ClientID(cfg.ClientID),
		kgo.SeedBrokers(strings.Split(cfg.Address, ",")...),
		kgo.DialTimeout(cfg.DialTimeout),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(cfg.WriteTimeout),
		kgo.ProduceRequestTimeout(cfg.WriteTimeout),
		kgo.WithLogger(newKafkaLogger(logger)),
		kgo.WithHooks(metrics),
	}
	if cfg.SASLUsername != "" && cfg.SASLPassword.String() != "" {
		opts = append(opts, kgo.SASL(plain.Plain(func(_ context.Context) (plain.Auth, error) {
			return plain.Auth{
				User: cfg.SASLUsername,
				Pass: cfg.SASLPassword.String(),
			}, nil
		})))
	}
	if cfg.AutoCreateTopicEnabled {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating kafka client")
	}
	return &KafkaEnqueuer{
		client: client,
		topic:  cfg.Topic,
		logger: log.With(logger, "component", "executions"),
	}, nil
}

func (k *KafkaEnqueuer) Enqueue(ctx context.Context, e *Execution) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	rec := &kgo.Record{
		Key:   []byte(e.ID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "namespace", Value: []byte(e.Namespace)},
			{Key: "flow", Value: []byte(e.FlowID)},
			{Key: "revision", Value: []byte(strconv.Itoa(e.FlowRevision))},
		},
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return err
	}
	level.Debug(k.logger).Log("msg", "execution produced", "execution", e.ID, "topic", k.topic, "partition", rec.Partition, "offset", rec.Offset)
	return nil
}

func (k *KafkaEnqueuer) Close() {
	k.client.Close()
}

// kafkaLogger wraps a log.Logger to implement the kgo.Logger interface.
type kafkaLogger struct {
	logger log.Logger
}

func newKafkaLogger(l log.Logger) *kafkaLogger {
	return &kafkaLogger{
		logger: log.With(l, "component", "kafka_client"),
	}
}

// Level reports Info so kgo never builds its debug messages.
func (l *kafkaLogger) Level() kgo.LogLevel {
	return kgo.LogLevelInfo
}

func (l *kafkaLogger) Log(lev kgo.LogLevel, msg string, keyvals ...any) {
	keyvals = append([]any{"msg", msg}, keyvals...)
	switch lev {
	case kgo.LogLevelDebug:
		level.Debug(l.logger).Log(keyvals...)
	case kgo.LogLevelInfo:
		level.Info(l.logger).Log(keyvals...)
	case kgo.LogLevelWarn:
		level.Warn(l.logger).Log(keyvals...)
	case kgo.LogLevelError:
		level.Error(l.logger).Log(keyvals...)
	}
}
