package session

import (
	"context"
	"encoding/base64"
	"flag"
	"net"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

const AstraDBProvider = "astradb"

// AstraDBConfig connects to DataStax Astra DB, either with a secure connect
// bundle or through a CQL proxy.
type AstraDBConfig struct {
	// SecureBundle is the base64 encoded secure connect bundle.
	SecureBundle   flagext.Secret `yaml:"secure_bundle"`
	ProxyAddress   *Endpoint      `yaml:"proxy_address"`
	Keyspace       string         `yaml:"keyspace"`
	ClientID       string         `yaml:"client_id"`
	ClientSecret   flagext.Secret `yaml:"client_secret"`
	Consistency    string         `yaml:"consistency"`
	Timeout        time.Duration  `yaml:"timeout"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
}

// RegisterFlags adds the flags required to config this to the given FlagSet
func (cfg *AstraDBConfig) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("astradb.", f)
}

func (cfg *AstraDBConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Var(&cfg.SecureBundle, prefix+"secure-bundle", "Base64 encoded secure connect bundle of the database.")
	f.StringVar(&cfg.Keyspace, prefix+"keyspace", "", "Keyspace to use in Astra DB.")
	f.StringVar(&cfg.ClientID, prefix+"client-id", "", "Client ID of the Astra DB application token.")
	f.Var(&cfg.ClientSecret, prefix+"client-secret", "Client secret of the Astra DB application token.")
	f.StringVar(&cfg.Consistency, prefix+"consistency", "LOCAL_QUORUM", "Consistency level for Astra DB.")
	f.DurationVar(&cfg.Timeout, prefix+"timeout", 10*time.Second, "Request timeout.")
	f.DurationVar(&cfg.ConnectTimeout, prefix+"connect-timeout", 10*time.Second, "Initial connection timeout, used during initial dial to server.")
}

func (cfg *AstraDBConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	flagext.DefaultValues(cfg)
	type plain AstraDBConfig
	return unmarshal((*plain)(cfg))
}

// Validate checks the configuration without network I/O.
func (cfg *AstraDBConfig) Validate() error {
	hasBundle := cfg.SecureBundle.String() != ""
	hasProxy := cfg.ProxyAddress != nil
	if hasBundle == hasProxy {
		return configErrorf("please use only one of secure_bundle or proxy_address")
	}
	if hasProxy && cfg.ProxyAddress.Hostname == "" {
		return configErrorf("proxy_address hostname is required")
	}
	if cfg.Keyspace == "" {
		return configErrorf("keyspace is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret.String() == "" {
		return configErrorf("client_id and client_secret are required")
	}
	if _, err := gocql.ParseConsistencyWrapper(cfg.Consistency); err != nil {
		return &ConfigurationError{Msg: "invalid consistency", Err: err}
	}
	return nil
}

func (cfg AstraDBConfig) render(r Renderer) (AstraDBConfig, error) {
	bundle, secret := cfg.SecureBundle.String(), cfg.ClientSecret.String()
	fields := []*string{&bundle, &secret, &cfg.Keyspace, &cfg.ClientID}
	if cfg.ProxyAddress != nil {
		proxy := *cfg.ProxyAddress
		cfg.ProxyAddress = &proxy
		fields = append(fields, &cfg.ProxyAddress.Hostname)
	}
	if err := renderAll(r, fields...); err != nil {
		return cfg, err
	}
	cfg.SecureBundle = flagext.SecretWithValue(bundle)
	cfg.ClientSecret = flagext.SecretWithValue(secret)
	return cfg, nil
}

type astraProvider struct {
	cfg     AstraDBConfig
	metrics *Metrics
	logger  log.Logger
}

func newAstraProvider(cfg AstraDBConfig, m *Metrics, logger log.Logger) *astraProvider {
	return &astraProvider{
		cfg:     cfg,
		metrics: m,
		logger:  log.With(logger, "provider", AstraDBProvider),
	}
}

func (p *astraProvider) Name() string {
	return AstraDBProvider
}

func (p *astraProvider) Connect(ctx context.Context, r Renderer) (Session, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	cfg, err := p.cfg.render(r)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer, localDC, err := p.dialer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	consistency, _ := gocql.ParseConsistencyWrapper(cfg.Consistency)

	cluster := gocql.NewCluster(dialer.address)
	cluster.HostDialer = dialer
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = consistency
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Authenticator = gocql.PasswordAuthenticator{
		Username: cfg.ClientID,
		Password: cfg.ClientSecret.String(),
	}
	if localDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(localDC))
	} else {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	}
	return openSession(ctx, AstraDBProvider, cluster, p.metrics, p.logger)
}

// dialer resolves how hosts are reached: through the SNI proxy announced by
// the bundle's metadata service, or through the configured CQL proxy.
func (p *astraProvider) dialer(ctx context.Context, cfg AstraDBConfig) (*sniDialer, string, error) {
	if cfg.ProxyAddress != nil {
		return newSNIDialer(cfg.ProxyAddress.String(), nil, nil, cfg.ConnectTimeout), "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(cfg.SecureBundle.String())
	if err != nil {
		return nil, "", &ConfigurationError{Msg: "decoding secure_bundle", Err: err}
	}
	b, err := parseBundle(raw)
	if err != nil {
		return nil, "", &ConfigurationError{Msg: "reading secure_bundle", Err: err}
	}
	tlsConfig, err := b.tlsConfig()
	if err != nil {
		return nil, "", &ConfigurationError{Msg: "reading secure_bundle certificates", Err: err}
	}

	meta, err := fetchMetadata(ctx, b.metadataURL(), tlsConfig, cfg.ConnectTimeout)
	if err != nil {
		return nil, "", &SessionError{Provider: AstraDBProvider, Err: errors.Wrap(err, "fetching metadata")}
	}
	proxyHost, _, err := net.SplitHostPort(meta.ContactInfo.SNIProxyAddress)
	if err != nil {
		return nil, "", &SessionError{Provider: AstraDBProvider, Err: errors.Wrap(err, "invalid sni proxy address")}
	}
	level.Debug(p.logger).Log(
		"msg", "resolved astra metadata",
		"sni_proxy", meta.ContactInfo.SNIProxyAddress,
		"contact_points", strconv.Itoa(len(meta.ContactInfo.ContactPoints)),
		"local_dc", meta.ContactInfo.LocalDC,
	)

	dialer := newSNIDialer(
		meta.ContactInfo.SNIProxyAddress,
		sniTLSConfig(tlsConfig, proxyHost),
		meta.ContactInfo.ContactPoints,
		cfg.ConnectTimeout,
	)
	return dialer, meta.ContactInfo.LocalDC, nil
}
