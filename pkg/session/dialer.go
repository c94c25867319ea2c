package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/atomic"
)

// sniDialer routes every host connection through a single proxy. With TLS
// the host is selected through SNI: its host ID, or a contact point for the
// initial connection when the host ID is not known yet.
type sniDialer struct {
	address       string
	tlsConfig     *tls.Config
	contactPoints []string
	dialer        net.Dialer
	next          atomic.Uint32
}

func newSNIDialer(address string, tlsConfig *tls.Config, contactPoints []string, timeout time.Duration) *sniDialer {
	return &sniDialer{
		address:       address,
		tlsConfig:     tlsConfig,
		contactPoints: contactPoints,
		dialer:        net.Dialer{Timeout: timeout},
	}
}

func (d *sniDialer) DialHost(ctx context.Context, host *gocql.HostInfo) (*gocql.DialedHost, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, err
	}
	if d.tlsConfig == nil {
		return &gocql.DialedHost{Conn: conn}, nil
	}

	cfg := d.tlsConfig.Clone()
	cfg.ServerName = d.serverName(host)
	tconn := tls.Client(conn, cfg)
	if err := tconn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &gocql.DialedHost{Conn: tconn, DisableCoalesce: true}, nil
}

func (d *sniDialer) serverName(host *gocql.HostInfo) string {
	if host != nil {
		if id := host.HostID(); id != "" {
			return id
		}
	}
	if len(d.contactPoints) == 0 {
		return ""
	}
	i := d.next.Inc() - 1
	return d.contactPoints[int(i)%len(d.contactPoints)]
}

// sniTLSConfig returns a copy of base that verifies the proxy certificate
// against verifyHost. The SNI name is a host ID, not a name the certificate
// is issued for, so the default verification cannot be used.
func sniTLSConfig(base *tls.Config, verifyHost string) *tls.Config {
	cfg := base.Clone()
	roots := base.RootCAs
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("proxy presented no certificate")
		}
		opts := x509.VerifyOptions{
			DNSName:       verifyHost,
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
	return cfg
}
