package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aau-network-security/phishdetect/features"
)

const loginPage = `<html><body>
<a href="https://other.com/x">other</a>
<a href="/relative">relative</a>
<a>no href</a>
<form action="/login">
  <input type="text" name="user">
  <input type="PASSWORD" name="pass">
</form>
<iframe src="https://ads.com"></iframe>
<iframe src="https://ads.com/2"></iframe>
<div style="color: red; DISPLAY : None">hidden</div>
</body></html>`

func testConfig() Config {
	conf := DefaultConfig
	conf.BackoffMin = time.Millisecond
	conf.BackoffMax = 5 * time.Millisecond
	conf.Timeout = 2 * time.Second
	return conf
}

func TestAnalyze(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(loginPage))
	if err != nil {
		t.Fatalf("failed to parse document: %s", err)
	}

	tests := []struct {
		name     string
		host     string
		expected features.Content
	}{
		{
			name: "foreign host",
			host: "example.com",
			expected: features.Content{
				NumExternalLinks: 3,
				HasForm:          true,
				HasPasswordField: true,
				NumIframes:       2,
				HasHiddenElement: true,
			},
		},
		{
			name: "same host as link",
			host: "other.com",
			expected: features.Content{
				NumExternalLinks: 2,
				HasForm:          true,
				HasPasswordField: true,
				NumIframes:       2,
				HasHiddenElement: true,
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual := Analyze(doc, test.host)
			if actual != test.expected {
				t.Fatalf("expected %+v, but got %+v", test.expected, actual)
			}
		})
	}
}

func TestAnalyzeEmptyPage(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	actual := Analyze(doc, "example.com")
	if actual != (features.Content{}) {
		t.Fatalf("expected zero features, but got %+v", actual)
	}
}

func TestFetch(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		fmt.Fprint(w, loginPage)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/login")
	o := New(testConfig()).Fetch(context.Background(), u)
	if o.IsDegraded() {
		t.Fatalf("unexpected degraded outcome: %s", o.Cause)
	}
	if !o.Value.HasPasswordField || o.Value.NumIframes != 2 {
		t.Fatalf("unexpected features: %+v", o.Value)
	}
	if ua := agent.Load().(string); ua != "phishing-detector/1.0" {
		t.Fatalf("expected user agent phishing-detector/1.0, but got %s", ua)
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "<html><form></form></html>")
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	o := New(testConfig()).Fetch(context.Background(), u)
	if o.IsDegraded() {
		t.Fatalf("unexpected degraded outcome: %s", o.Cause)
	}
	if !o.Value.HasForm {
		t.Fatalf("expected form to be detected")
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 requests, but got %d", n)
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		expectedHits int32
	}{
		{"not found is not retried", http.StatusNotFound, 1},
		{"no content", http.StatusNoContent, 1},
		{"retries exhausted", http.StatusBadGateway, 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(test.status)
			}))
			defer srv.Close()

			u, _ := url.Parse(srv.URL)
			o := New(testConfig()).Fetch(context.Background(), u)
			if !o.IsDegraded() {
				t.Fatalf("expected degraded outcome")
			}
			if o.Value != features.DegradedContent() {
				t.Fatalf("expected sentinel tuple, but got %+v", o.Value)
			}
			if !errors.Is(o.Cause, features.ErrSourceUnavailable) {
				t.Fatalf("expected source unavailable, but got %s", o.Cause)
			}
			if n := atomic.LoadInt32(&hits); n != test.expectedHits {
				t.Fatalf("expected %d requests, but got %d", test.expectedHits, n)
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	conf := testConfig()
	conf.Retries = 0
	u, _ := url.Parse(addr)
	o := New(conf).Fetch(context.Background(), u)
	if !o.IsDegraded() {
		t.Fatalf("expected degraded outcome")
	}
}
