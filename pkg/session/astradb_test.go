package session

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/gocql/gocql"
	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestAstraDBConfig_Validate(t *testing.T) {
	valid := func() AstraDBConfig {
		return AstraDBConfig{
			ProxyAddress: &Endpoint{Hostname: "proxy", Port: 9042},
			Keyspace:     "cqlflow",
			ClientID:     "client",
			ClientSecret: flagext.SecretWithValue("secret"),
			Consistency:  "LOCAL_QUORUM",
		}
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	for name, mutate := range map[string]func(*AstraDBConfig){
		"bundle and proxy":    func(c *AstraDBConfig) { c.SecureBundle = flagext.SecretWithValue("UEsFBg==") },
		"neither":             func(c *AstraDBConfig) { c.ProxyAddress = nil },
		"empty proxy host":    func(c *AstraDBConfig) { c.ProxyAddress = &Endpoint{Port: 9042} },
		"no keyspace":         func(c *AstraDBConfig) { c.Keyspace = "" },
		"no client id":        func(c *AstraDBConfig) { c.ClientID = "" },
		"no client secret":    func(c *AstraDBConfig) { c.ClientSecret = flagext.Secret{} },
		"invalid consistency": func(c *AstraDBConfig) { c.Consistency = "SOME" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)

			// Rejected before any network I/O.
			p := newAstraProvider(cfg, nil, log.NewNopLogger())
			_, err := p.Connect(context.Background(), replacer{})
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestAstraDBConfig_YAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(`
astradb:
  proxy_address:
    hostname: localhost
  keyspace: cqlflow
  client_id: "{{client}}"
  client_secret: secret
`), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, &Endpoint{Hostname: "localhost", Port: 9042}, cfg.AstraDB.ProxyAddress)
	assert.Equal(t, "LOCAL_QUORUM", cfg.AstraDB.Consistency)

	rendered, err := cfg.AstraDB.render(replacer{"client": "token-id"})
	require.NoError(t, err)
	assert.Equal(t, "token-id", rendered.ClientID)
	assert.Equal(t, "{{client}}", cfg.AstraDB.ClientID)
}

func TestAstraDB_InvalidBundle(t *testing.T) {
	cfg := AstraDBConfig{
		SecureBundle: flagext.SecretWithValue("not base64!"),
		Keyspace:     "cqlflow",
		ClientID:     "client",
		ClientSecret: flagext.SecretWithValue("secret"),
		Consistency:  "ONE",
	}
	_, err := newAstraProvider(cfg, nil, log.NewNopLogger()).Connect(context.Background(), replacer{})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	cfg.SecureBundle = flagext.SecretWithValue(base64.StdEncoding.EncodeToString([]byte("not a zip")))
	_, err = newAstraProvider(cfg, nil, log.NewNopLogger()).Connect(context.Background(), replacer{})
	require.ErrorAs(t, err, &cfgErr)
}

// astraServer fakes the metadata service and the SNI proxy on one TLS
// listener, recording the SNI names of incoming handshakes.
type astraServer struct {
	*httptest.Server

	mtx         sync.Mutex
	serverNames []string
	proxy       string
}

func newAstraServer(t *testing.T) *astraServer {
	s := &astraServer{}
	s.Server = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metadata" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"version":1,"region":"eu-west-1","contact_info":{"type":"sni_proxy","local_dc":"dc-1","contact_points":["id-1","id-2"],"sni_proxy_address":%q}}`, s.proxy)
	}))
	s.TLS = &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			s.serverNames = append(s.serverNames, hello.ServerName)
			return nil, nil
		},
	}
	s.StartTLS()
	t.Cleanup(s.Close)
	s.proxy = s.Listener.Addr().String()
	return s
}

func (s *astraServer) names() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]string(nil), s.serverNames...)
}

func clientKeyPair(t *testing.T) (certPEM, keyPEM []byte) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

func makeBundle(t *testing.T, s *httptest.Server) []byte {
	host, port, err := net.SplitHostPort(s.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	cert, key := clientKeyPair(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string][]byte{
		"config.json": []byte(fmt.Sprintf(`{"host":%q,"port":%d,"keyspace":"cqlflow","localDC":"dc-1"}`, host, p)),
		"ca.crt":      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.Certificate().Raw}),
		"cert":        cert,
		"key":         key,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseBundle(t *testing.T) {
	s := newAstraServer(t)
	b, err := parseBundle(makeBundle(t, s.Server))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", b.Host)
	assert.Equal(t, "cqlflow", b.Keyspace)
	assert.Equal(t, "dc-1", b.LocalDC)
	assert.Equal(t, "https://"+s.Listener.Addr().String()+"/metadata", b.metadataURL())

	cfg, err := b.tlsConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("config.json")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = parseBundle(buf.Bytes())
	assert.EqualError(t, err, "bundle is missing ca.crt")
}

func TestFetchMetadataAndDial(t *testing.T) {
	s := newAstraServer(t)
	b, err := parseBundle(makeBundle(t, s.Server))
	require.NoError(t, err)
	tlsConfig, err := b.tlsConfig()
	require.NoError(t, err)

	ctx := context.Background()
	meta, err := fetchMetadata(ctx, b.metadataURL(), tlsConfig, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dc-1", meta.ContactInfo.LocalDC)
	assert.Equal(t, []string{"id-1", "id-2"}, meta.ContactInfo.ContactPoints)
	assert.Equal(t, s.proxy, meta.ContactInfo.SNIProxyAddress)

	d := newSNIDialer(meta.ContactInfo.SNIProxyAddress, sniTLSConfig(tlsConfig, "127.0.0.1"), meta.ContactInfo.ContactPoints, 5*time.Second)
	for i := 0; i < 3; i++ {
		dialed, err := d.DialHost(ctx, &gocql.HostInfo{})
		require.NoError(t, err)
		assert.True(t, dialed.DisableCoalesce)
		require.NoError(t, dialed.Conn.Close())
	}
	// IP literals are not sent as SNI, so the metadata request has none.
	assert.Equal(t, []string{"", "id-1", "id-2", "id-1"}, s.names())

	// A certificate issued for another name is rejected.
	d = newSNIDialer(s.proxy, sniTLSConfig(tlsConfig, "db.example.org"), []string{"id-1"}, 5*time.Second)
	_, err = d.DialHost(ctx, &gocql.HostInfo{})
	assert.Error(t, err)
}

func TestFetchMetadata_Error(t *testing.T) {
	s := newAstraServer(t)
	b, err := parseBundle(makeBundle(t, s.Server))
	require.NoError(t, err)
	tlsConfig, err := b.tlsConfig()
	require.NoError(t, err)

	_, err = fetchMetadata(context.Background(), "https://"+s.Listener.Addr().String()+"/other", tlsConfig, 5*time.Second)
	assert.EqualError(t, err, "metadata service returned 404 Not Found")
}

func TestSNIDialer_Plain(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	d := newSNIDialer(l.Addr().String(), nil, nil, time.Second)
	dialed, err := d.DialHost(context.Background(), &gocql.HostInfo{})
	require.NoError(t, err)
	assert.False(t, dialed.DisableCoalesce)
	require.NoError(t, dialed.Conn.Close())
	assert.Equal(t, "", d.serverName(&gocql.HostInfo{}))
}
