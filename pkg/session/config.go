package session

import (
	"github.com/go-kit/log"
)

// Config selects exactly one connection variant.
type Config struct {
	Cassandra *CassandraConfig `yaml:"cassandra"`
	ScyllaDB  *ScyllaDBConfig  `yaml:"scylladb"`
	AstraDB   *AstraDBConfig   `yaml:"astradb"`
}

func (cfg *Config) variants() int {
	n := 0
	if cfg.Cassandra != nil {
		n++
	}
	if cfg.ScyllaDB != nil {
		n++
	}
	if cfg.AstraDB != nil {
		n++
	}
	return n
}

// Validate checks the configuration without network I/O.
func (cfg *Config) Validate() error {
	if cfg.variants() != 1 {
		return configErrorf("exactly one of cassandra, scylladb or astradb must be configured")
	}
	switch {
	case cfg.Cassandra != nil:
		return cfg.Cassandra.Validate()
	case cfg.ScyllaDB != nil:
		return cfg.ScyllaDB.Validate()
	default:
		return cfg.AstraDB.Validate()
	}
}

// NewProvider returns the provider of the configured variant.
func NewProvider(cfg Config, m *Metrics, logger log.Logger) (Provider, error) {
	if cfg.variants() != 1 {
		return nil, configErrorf("exactly one of cassandra, scylladb or astradb must be configured")
	}
	switch {
	case cfg.Cassandra != nil:
		return newCassandraProvider(CassandraProvider, *cfg.Cassandra, m, logger), nil
	case cfg.ScyllaDB != nil:
		return newCassandraProvider(ScyllaDBProvider, cfg.ScyllaDB.CassandraConfig, m, logger), nil
	default:
		return newAstraProvider(*cfg.AstraDB, m, logger), nil
	}
}
