package certificate

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aau-network-security/phishdetect/features"
)

func tlsServer(t *testing.T) (*httptest.Server, *url.URL, string) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server url: %s", err)
	}
	_, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("failed to split host and port: %s", err)
	}
	return srv, u, port
}

func TestInspect(t *testing.T) {
	srv, u, port := tlsServer(t)
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	now := srv.Certificate().NotAfter.Add(-45*24*time.Hour - time.Minute)
	i := New(Config{Port: port, RootCAs: pool, Timeout: time.Second}).WithClock(func() time.Time { return now })

	o := i.Inspect(context.Background(), u)
	if o.IsDegraded() {
		t.Fatalf("unexpected degraded outcome: %s", o.Cause)
	}
	if !o.Value.HasSSL {
		t.Fatalf("expected has_ssl to be true")
	}
	if o.Value.DaysValid != 45 {
		t.Fatalf("expected 45 days valid, but got %d", o.Value.DaysValid)
	}
	if o.Value.Issuer == nil || *o.Value.Issuer != "Acme Co" {
		t.Fatalf("expected issuer Acme Co, but got %v", o.Value.Issuer)
	}
}

func TestInspectUntrusted(t *testing.T) {
	srv, u, port := tlsServer(t)
	defer srv.Close()

	i := New(Config{Port: port, Timeout: time.Second})
	o := i.Inspect(context.Background(), u)
	if !o.IsDegraded() {
		t.Fatalf("expected degraded outcome")
	}
	if o.Value.HasSSL || o.Value.Issuer != nil || o.Value.DaysValid != features.Sentinel {
		t.Fatalf("expected sentinel tuple, but got %+v", o.Value)
	}
	if !errors.Is(o.Cause, features.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, but got %s", o.Cause)
	}
}

func TestInspectClosedPort(t *testing.T) {
	srv, u, port := tlsServer(t)
	srv.Close()

	i := New(Config{Port: port, Timeout: 500 * time.Millisecond})
	o := i.Inspect(context.Background(), u)
	if !o.IsDegraded() {
		t.Fatalf("expected degraded outcome")
	}
}

func TestIssuerName(t *testing.T) {
	tests := []struct {
		name     string
		cn       string
		orgs     []string
		expected string
	}{
		{"common name", "R3", []string{"Let's Encrypt"}, "R3"},
		{"organization", "", []string{"Acme Co"}, "Acme Co"},
		{"nothing", "", nil, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual := issuerName(test.cn, test.orgs)
			if test.expected == "" {
				if actual != nil {
					t.Fatalf("expected nil issuer, but got %s", *actual)
				}
				return
			}
			if actual == nil || *actual != test.expected {
				t.Fatalf("expected %s, but got %v", test.expected, actual)
			}
		})
	}
}
