package certificate

import (
	"context"
	"crypto/tls"
	stdx509 "crypto/x509"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/aau-network-security/phishdetect/domain"
	"github.com/aau-network-security/phishdetect/features"
	"github.com/google/certificate-transparency-go/asn1"
	"github.com/google/certificate-transparency-go/x509"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	DefaultConfig = Config{
		Timeout: 5 * time.Second,
		Port:    "443",
	}

	NoCertificateErr = errors.New("server presented no certificate")
	NotTLSErr        = errors.New("connection is not a tls connection")

	dv = asn1.ObjectIdentifier{2, 23, 140, 1, 2, 1}
	ov = asn1.ObjectIdentifier{2, 23, 140, 1, 2, 2}
	ev = asn1.ObjectIdentifier{2, 23, 140, 1, 1}
)

type Config struct {
	Timeout time.Duration `yaml:"timeout"`
	Port    string        `yaml:"port"`

	// trusted roots, system roots when nil
	RootCAs *stdx509.CertPool `yaml:"-"`
}

// Inspector performs a TLS handshake with the host of a URL and reports on
// the presented leaf certificate
type Inspector struct {
	conf Config
	now  func() time.Time
}

func (i *Inspector) Inspect(ctx context.Context, u *url.URL) features.Outcome[features.TLS] {
	res, err := i.inspect(ctx, u)
	if err != nil {
		log.Debug().Str("host", u.Hostname()).Msgf("certificate inspection failed: %s", err)
		return features.Degraded(features.DegradedTLS(), errors.Wrapf(features.ErrSourceUnavailable, "tls: %s", err))
	}
	return features.Ok(res)
}

func (i *Inspector) inspect(ctx context.Context, u *url.URL) (features.TLS, error) {
	host := domain.Normalize(u.Hostname())
	if host == "" {
		return features.TLS{}, errors.New("url has no host")
	}

	ctx, cancel := context.WithTimeout(ctx, i.conf.Timeout)
	defer cancel()

	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: i.conf.Timeout},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    i.conf.RootCAs,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, i.conf.Port))
	if err != nil {
		return features.TLS{}, errors.Wrap(err, "tls handshake")
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return features.TLS{}, NotTLSErr
	}
	peers := tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return features.TLS{}, NoCertificateErr
	}

	return i.describe(peers[0]), nil
}

// describe re-parses the leaf with the certificate-transparency parser, which
// tolerates more malformed certificates. A parse failure only affects the
// validity period.
func (i *Inspector) describe(leaf *stdx509.Certificate) features.TLS {
	res := features.TLS{
		HasSSL:    true,
		DaysValid: features.Sentinel,
		Issuer:    issuerName(leaf.Issuer.CommonName, leaf.Issuer.Organization),
	}

	cert, err := x509.ParseCertificate(leaf.Raw)
	if err != nil && x509.IsFatal(err) {
		log.Debug().Msgf("failed to parse certificate: %s", err)
		return res
	}
	if cert == nil || cert.NotAfter.IsZero() {
		return res
	}

	res.DaysValid = int(math.Floor(cert.NotAfter.Sub(i.now()).Hours() / 24))
	res.ValidationLevel = validationLevel(cert)
	return res
}

func issuerName(cn string, orgs []string) *string {
	if cn != "" {
		return &cn
	}
	if len(orgs) > 0 && orgs[0] != "" {
		o := orgs[0]
		return &o
	}
	return nil
}

func validationLevel(c *x509.Certificate) string {
	for _, pi := range c.PolicyIdentifiers {
		switch {
		case pi.Equal(dv):
			return "DV"
		case pi.Equal(ov):
			return "OV"
		case pi.Equal(ev):
			return "EV"
		}
	}
	return ""
}

func (i *Inspector) WithClock(now func() time.Time) *Inspector {
	i.now = now
	return i
}

func New(conf Config) *Inspector {
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultConfig.Timeout
	}
	if conf.Port == "" {
		conf.Port = DefaultConfig.Port
	}
	return &Inspector{
		conf: conf,
		now:  time.Now,
	}
}
