package cqlflow

import (
	"flag"
	"fmt"

	dslog "github.com/grafana/dskit/log"
	"github.com/pkg/errors"

	"github.com/grafana/cqlflow/pkg/compression"
	"github.com/grafana/cqlflow/pkg/execution"
	"github.com/grafana/cqlflow/pkg/query"
	"github.com/grafana/cqlflow/pkg/storage/bucket"
	"github.com/grafana/cqlflow/pkg/trigger"
)

// Config is the root config for cqlflow.
type Config struct {
	LogLevel  dslog.Level `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"`

	Server           ServerConfig     `yaml:"server"`
	WorkingDirectory string           `yaml:"working_directory"`
	Storage          StorageConfig    `yaml:"storage"`
	Execution        execution.Config `yaml:"execution"`

	Queries  []query.Config   `yaml:"queries"`
	Triggers []trigger.Config `yaml:"triggers"`
}

// RegisterFlags registers flag.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	_ = c.LogLevel.Set("info")
	f.Var(&c.LogLevel, "log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
	f.StringVar(&c.LogFormat, "log.format", "logfmt", "Output log messages in the given format. Valid formats: [logfmt, json]")
	f.StringVar(&c.WorkingDirectory, "working-directory", "", "Directory for temporary result files. Defaults to the system temporary directory.")

	c.Server.RegisterFlags(f)
	c.Storage.RegisterFlags(f)
	c.Execution.RegisterFlags(f)
}

// Validate the config and returns an error if the validation
// doesn't pass
func (c *Config) Validate() error {
	if c.LogFormat != "logfmt" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if err := c.Storage.Validate(); err != nil {
		return errors.Wrap(err, "invalid storage config")
	}
	if err := c.Execution.Validate(); err != nil {
		return errors.Wrap(err, "invalid execution config")
	}

	ids := map[string]struct{}{}
	checkID := func(id string) error {
		if _, ok := ids[id]; ok {
			return fmt.Errorf("duplicate task id %q", id)
		}
		ids[id] = struct{}{}
		return nil
	}
	for i := range c.Queries {
		if err := c.Queries[i].Validate(); err != nil {
			return errors.Wrap(err, "invalid query config")
		}
		if err := checkID(c.Queries[i].ID); err != nil {
			return err
		}
	}
	for i := range c.Triggers {
		if err := c.Triggers[i].Validate(); err != nil {
			return errors.Wrap(err, "invalid trigger config")
		}
		if err := checkID(c.Triggers[i].ID); err != nil {
			return err
		}
	}
	return nil
}

type ServerConfig struct {
	HTTPListenAddress string `yaml:"http_listen_address"`
	HTTPListenPort    int    `yaml:"http_listen_port"`
}

func (c *ServerConfig) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, "server.http-listen-address", "", "HTTP server listen address.")
	f.IntVar(&c.HTTPListenPort, "server.http-listen-port", 8080, "HTTP server listen port.")
}

// StorageConfig is where stored results are kept.
type StorageConfig struct {
	bucket.Config `yaml:",inline"`

	Compression compression.Codec `yaml:"compression"`
	// KeyPrefix is prepended to the object key of every stored result.
	KeyPrefix string `yaml:"key_prefix"`
}

func (c *StorageConfig) RegisterFlags(f *flag.FlagSet) {
	c.Config.RegisterFlagsWithPrefix("storage.", f)
	f.Var(&c.Compression, "storage.compression", fmt.Sprintf("Compression of stored result files. Supported values: %s.", compression.SupportedCodecs()))
	f.StringVar(&c.KeyPrefix, "storage.key-prefix", "results", "Prefix of the object key of stored results.")
}
