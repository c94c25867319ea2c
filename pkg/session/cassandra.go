package session

import (
	"context"
	"flag"
	"net"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/gocql/gocql"
	"github.com/grafana/dskit/crypto/tls"
	"github.com/grafana/dskit/flagext"
)

const (
	// DefaultPort is the native protocol port.
	DefaultPort = 9042

	CassandraProvider = "cassandra"
	ScyllaDBProvider  = "scylladb"
)

// Endpoint is a contact point of the cluster.
type Endpoint struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
}

func (e *Endpoint) UnmarshalYAML(unmarshal func(interface{}) error) error {
	e.Port = DefaultPort
	type plain Endpoint
	return unmarshal((*plain)(e))
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port))
}

// CassandraConfig connects to a Cassandra compatible cluster through a list
// of contact points.
type CassandraConfig struct {
	Endpoints                []Endpoint       `yaml:"endpoints"`
	LocalDatacenter          string           `yaml:"local_datacenter"`
	Keyspace                 string           `yaml:"keyspace"`
	Consistency              string           `yaml:"consistency"`
	Username                 string           `yaml:"username"`
	Password                 flagext.Secret   `yaml:"password"`
	DisableInitialHostLookup bool             `yaml:"disable_initial_host_lookup"`
	Timeout                  time.Duration    `yaml:"timeout"`
	ConnectTimeout           time.Duration    `yaml:"connect_timeout"`
	NumConnections           int              `yaml:"num_connections"`
	TLSEnabled               bool             `yaml:"tls_enabled"`
	TLS                      tls.ClientConfig `yaml:",inline"`
}

// RegisterFlags adds the flags required to config this to the given FlagSet
func (cfg *CassandraConfig) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("cassandra.", f)
}

func (cfg *CassandraConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.LocalDatacenter, prefix+"local-datacenter", "", "Datacenter whose hosts are preferred. If empty, hosts are picked round robin across datacenters.")
	f.StringVar(&cfg.Keyspace, prefix+"keyspace", "", "Keyspace to use in Cassandra.")
	f.StringVar(&cfg.Consistency, prefix+"consistency", "LOCAL_ONE", "Consistency level for Cassandra.")
	f.StringVar(&cfg.Username, prefix+"username", "", "Username to use when connecting to cassandra.")
	f.Var(&cfg.Password, prefix+"password", "Password to use when connecting to cassandra.")
	f.BoolVar(&cfg.DisableInitialHostLookup, prefix+"disable-initial-host-lookup", false, "Instruct the cassandra driver to not attempt to get host info from the system.peers table.")
	f.DurationVar(&cfg.Timeout, prefix+"timeout", 2*time.Second, "Timeout when connecting to cassandra.")
	f.DurationVar(&cfg.ConnectTimeout, prefix+"connect-timeout", 5*time.Second, "Initial connection timeout, used during initial dial to server.")
	f.IntVar(&cfg.NumConnections, prefix+"num-connections", 2, "Number of TCP connections per host.")
	f.BoolVar(&cfg.TLSEnabled, prefix+"tls-enabled", false, "Use TLS when connecting to cassandra instances.")
	cfg.TLS.RegisterFlagsWithPrefix(prefix, f)
}

func (cfg *CassandraConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	flagext.DefaultValues(cfg)
	type plain CassandraConfig
	return unmarshal((*plain)(cfg))
}

// Validate checks the configuration without network I/O.
func (cfg *CassandraConfig) Validate() error {
	if len(cfg.Endpoints) == 0 {
		return configErrorf("at least one endpoint is required")
	}
	for _, e := range cfg.Endpoints {
		if e.Hostname == "" {
			return configErrorf("endpoint hostname is required")
		}
	}
	if _, err := gocql.ParseConsistencyWrapper(cfg.Consistency); err != nil {
		return &ConfigurationError{Msg: "invalid consistency", Err: err}
	}
	return nil
}

func (cfg CassandraConfig) render(r Renderer) (CassandraConfig, error) {
	cfg.Endpoints = append([]Endpoint(nil), cfg.Endpoints...)
	fields := []*string{&cfg.LocalDatacenter, &cfg.Keyspace, &cfg.Username}
	for i := range cfg.Endpoints {
		fields = append(fields, &cfg.Endpoints[i].Hostname)
	}
	if err := renderAll(r, fields...); err != nil {
		return cfg, err
	}
	password := cfg.Password.String()
	if err := renderAll(r, &password); err != nil {
		return cfg, err
	}
	cfg.Password = flagext.SecretWithValue(password)
	return cfg, nil
}

// clusterConfig builds the driver configuration.
func (cfg *CassandraConfig) clusterConfig() (*gocql.ClusterConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	consistency, _ := gocql.ParseConsistencyWrapper(cfg.Consistency)

	hosts := make([]string, len(cfg.Endpoints))
	for i, e := range cfg.Endpoints {
		hosts[i] = e.String()
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = consistency
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.ConnectTimeout
	if cfg.NumConnections > 0 {
		cluster.NumConns = cfg.NumConnections
	}
	cfg.setClusterConfig(cluster)

	if cfg.TLSEnabled {
		tlsConfig, err := cfg.TLS.GetTLSConfig()
		if err != nil {
			return nil, err
		}
		cluster.SslOpts = &gocql.SslOptions{
			Config:                 tlsConfig,
			EnableHostVerification: !cfg.TLS.InsecureSkipVerify,
		}
	}
	return cluster, nil
}

// apply config settings to a cassandra ClusterConfig
func (cfg *CassandraConfig) setClusterConfig(cluster *gocql.ClusterConfig) {
	cluster.DisableInitialHostLookup = cfg.DisableInitialHostLookup

	if cfg.LocalDatacenter != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.LocalDatacenter))
	} else {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password.String(),
		}
	}
}

// ScyllaDBConfig connects to a ScyllaDB cluster. It accepts the same options
// as CassandraConfig.
type ScyllaDBConfig struct {
	CassandraConfig `yaml:",inline"`
}

// RegisterFlags adds the flags required to config this to the given FlagSet
func (cfg *ScyllaDBConfig) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("scylladb.", f)
}

type cassandraProvider struct {
	name    string
	cfg     CassandraConfig
	metrics *Metrics
	logger  log.Logger
}

func newCassandraProvider(name string, cfg CassandraConfig, m *Metrics, logger log.Logger) *cassandraProvider {
	return &cassandraProvider{
		name:    name,
		cfg:     cfg,
		metrics: m,
		logger:  log.With(logger, "provider", name),
	}
}

func (p *cassandraProvider) Name() string {
	return p.name
}

func (p *cassandraProvider) Connect(ctx context.Context, r Renderer) (Session, error) {
	cfg, err := p.cfg.render(r)
	if err != nil {
		return nil, err
	}
	cluster, err := cfg.clusterConfig()
	if err != nil {
		if _, ok := err.(*ConfigurationError); ok {
			return nil, err
		}
		return nil, &SessionError{Provider: p.name, Err: err}
	}
	return openSession(ctx, p.name, cluster, p.metrics, p.logger)
}
