package session

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bundle is the content of an Astra DB secure connect bundle.
type bundle struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Keyspace string `json:"keyspace"`
	LocalDC  string `json:"localDC"`

	ca   []byte
	cert []byte
	key  []byte
}

func parseBundle(raw []byte) (*bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	files := map[string][]byte{}
	for _, f := range zr.File {
		switch f.Name {
		case "config.json", "ca.crt", "cert", "key":
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", f.Name)
		}
		files[f.Name] = b
	}
	for _, name := range []string{"config.json", "ca.crt", "cert", "key"} {
		if _, ok := files[name]; !ok {
			return nil, fmt.Errorf("bundle is missing %s", name)
		}
	}

	b := &bundle{ca: files["ca.crt"], cert: files["cert"], key: files["key"]}
	if err := json.Unmarshal(files["config.json"], b); err != nil {
		return nil, errors.Wrap(err, "decoding config.json")
	}
	if b.Host == "" || b.Port == 0 {
		return nil, errors.New("config.json has no metadata service host and port")
	}
	return b, nil
}

// tlsConfig returns the mutual TLS configuration of the bundle.
func (b *bundle) tlsConfig() (*tls.Config, error) {
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(b.ca) {
		return nil, errors.New("no certificate found in ca.crt")
	}
	cert, err := tls.X509KeyPair(b.cert, b.key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:      roots,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (b *bundle) metadataURL() string {
	return "https://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port)) + "/metadata"
}

// metadata is the answer of the Astra DB metadata service.
type metadata struct {
	Version     int    `json:"version"`
	Region      string `json:"region"`
	ContactInfo struct {
		Type            string   `json:"type"`
		LocalDC         string   `json:"local_dc"`
		ContactPoints   []string `json:"contact_points"`
		SNIProxyAddress string   `json:"sni_proxy_address"`
	} `json:"contact_info"`
}

func fetchMetadata(ctx context.Context, url string, tlsConfig *tls.Config, timeout time.Duration) (*metadata, error) {
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig.Clone()},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata service returned %s", resp.Status)
	}
	var meta metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, errors.Wrap(err, "decoding metadata")
	}
	if meta.ContactInfo.SNIProxyAddress == "" {
		return nil, errors.New("metadata has no sni proxy address")
	}
	return &meta, nil
}
