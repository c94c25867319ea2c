package execution

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EnqueuerLog   = "log"
	EnqueuerKafka = "kafka"
)

var ErrMissingKafkaAddress = errors.New("the kafka address has not been configured")

// Config selects where created executions are sent.
type Config struct {
	Enqueuer string      `yaml:"enqueuer"`
	Kafka    KafkaConfig `yaml:"kafka"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&cfg.Enqueuer, "execution.enqueuer", EnqueuerLog, fmt.Sprintf("Where created executions are sent. Supported values: %s, %s.", EnqueuerLog, EnqueuerKafka))
	cfg.Kafka.RegisterFlagsWithPrefix("execution.kafka.", f)
}

func (cfg *Config) Validate() error {
	switch cfg.Enqueuer {
	case EnqueuerLog:
		return nil
	case EnqueuerKafka:
		return cfg.Kafka.Validate()
	default:
		return fmt.Errorf("unsupported execution enqueuer %q", cfg.Enqueuer)
	}
}

// KafkaConfig configures the Kafka producer of executions.
type KafkaConfig struct {
	Address      string        `yaml:"address"`
	Topic        string        `yaml:"topic"`
	ClientID     string        `yaml:"client_id"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	SASLUsername string         `yaml:"sasl_username"`
	SASLPassword flagext.Secret `yaml:"sasl_password"`

	AutoCreateTopicEnabled bool `yaml:"auto_create_topic_enabled"`
}

func (cfg *KafkaConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Address, prefix+"address", "localhost:9092", "Comma separated list of Kafka seed brokers.")
	f.StringVar(&cfg.Topic, prefix+"topic", "cqlflow-executions", "Topic executions are written to.")
	f.StringVar(&cfg.ClientID, prefix+"client-id", "cqlflow", "The Kafka client ID.")
	f.DurationVar(&cfg.DialTimeout, prefix+"dial-timeout", 2*time.Second, "The maximum time allowed to open a connection to a Kafka broker.")
	f.DurationVar(&cfg.WriteTimeout, prefix+"write-timeout", 10*time.Second, "How long to wait for an incoming write request to be successfully committed to the Kafka backend.")
	f.StringVar(&cfg.SASLUsername, prefix+"sasl-username", "", "The SASL username for authentication to Kafka using the PLAIN mechanism. Both username and password must be set.")
	f.Var(&cfg.SASLPassword, prefix+"sasl-password", "The SASL password for authentication to Kafka using the PLAIN mechanism. Both username and password must be set.")
	f.BoolVar(&cfg.AutoCreateTopicEnabled, prefix+"auto-create-topic-enabled", true, "Enable auto-creation of the executions topic if it doesn't exist.")
}

func (cfg *KafkaConfig) Validate() error {
	if cfg.Address == "" {
		return ErrMissingKafkaAddress
	}
	if cfg.Topic == "" {
		return errors.New("the kafka topic has not been configured")
	}
	if (cfg.SASLUsername == "") != (cfg.SASLPassword.String() == "") {
		return errors.New("both sasl username and password must be set")
	}
	return nil
}

// NewEnqueuer builds the configured enqueuer. The returned closer releases
// its resources.
func NewEnqueuer(cfg Config, logger log.Logger, reg prometheus.Registerer) (Enqueuer, func(), error) {
	switch cfg.Enqueuer {
	case EnqueuerLog:
		return NewLogEnqueuer(logger), func() {}, nil
	case EnqueuerKafka:
		k, err := NewKafkaEnqueuer(cfg.Kafka, logger, reg)
		if err != nil {
			return nil, nil, err
		}
		return k, k.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported execution enqueuer %q", cfg.Enqueuer)
	}
}
