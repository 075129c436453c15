package content

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aau-network-security/phishdetect/features"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	DefaultConfig = Config{
		Timeout:      5 * time.Second,
		Retries:      3,
		BackoffMin:   500 * time.Millisecond,
		BackoffMax:   4 * time.Second,
		UserAgent:    "phishing-detector/1.0",
		MaxBodyBytes: 5 << 20,
	}

	hiddenStyleRe = regexp.MustCompile(`(?i)display\s*:\s*none`)

	retryStatus = map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
)

type StatusErr struct {
	Code int
}

func (err StatusErr) Error() string {
	return fmt.Sprintf("unexpected status code: %d", err.Code)
}

type Config struct {
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	BackoffMin   time.Duration `yaml:"backoff-min"`
	BackoffMax   time.Duration `yaml:"backoff-max"`
	UserAgent    string        `yaml:"user-agent"`
	MaxBodyBytes int64         `yaml:"max-body-bytes"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = DefaultConfig.BackoffMin
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultConfig.UserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultConfig.MaxBodyBytes
	}
}

// retries connection errors and the transient status codes only
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return retryStatus[resp.StatusCode], nil
}

// adapts zerolog to the leveled logger expected by retryablehttp
type leveledLogger struct {
	l zerolog.Logger
}

func (ll *leveledLogger) event(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		ev = ev.Interface(fmt.Sprintf("%v", kv[i]), kv[i+1])
	}
	ev.Msg(msg)
}

func (ll *leveledLogger) Error(msg string, kv ...interface{}) {
	ll.event(ll.l.Debug(), msg, kv)
}

func (ll *leveledLogger) Info(msg string, kv ...interface{}) {
	ll.event(ll.l.Debug(), msg, kv)
}

func (ll *leveledLogger) Debug(msg string, kv ...interface{}) {
	ll.event(ll.l.Debug(), msg, kv)
}

func (ll *leveledLogger) Warn(msg string, kv ...interface{}) {
	ll.event(ll.l.Debug(), msg, kv)
}

// Fetcher retrieves a page and derives structural signals from its HTML
type Fetcher struct {
	client *retryablehttp.Client
	conf   Config
}

func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) features.Outcome[features.Content] {
	res, err := f.fetch(ctx, u)
	if err != nil {
		log.Debug().Str("url", u.String()).Msgf("content fetch failed: %s", err)
		return features.Degraded(features.DegradedContent(), errors.Wrapf(features.ErrSourceUnavailable, "content: %s", err))
	}
	return features.Ok(res)
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (features.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, f.conf.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return features.Content{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.conf.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return features.Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return features.Content{}, StatusErr{resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.conf.MaxBodyBytes))
	if err != nil {
		return features.Content{}, errors.Wrap(err, "parse html")
	}

	return Analyze(doc, u.Host), nil
}

func linkHost(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return u.Host
}

// Analyze extracts content features from a parsed document. Anchors count as
// external when their host differs from requestHost, which includes relative
// links.
func Analyze(doc *goquery.Document, requestHost string) features.Content {
	var res features.Content

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if linkHost(href) != requestHost {
			res.NumExternalLinks++
		}
	})

	res.HasForm = doc.Find("form").Length() > 0

	doc.Find("input").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ, _ := s.Attr("type")
		if strings.EqualFold(strings.TrimSpace(typ), "password") {
			res.HasPasswordField = true
			return false
		}
		return true
	})

	res.NumIframes = doc.Find("iframe").Length()

	doc.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if hiddenStyleRe.MatchString(style) {
			res.HasHiddenElement = true
			return false
		}
		return true
	})

	return res
}

func New(conf Config) *Fetcher {
	conf.defaults()

	client := retryablehttp.NewClient()
	client.RetryMax = conf.Retries
	client.RetryWaitMin = conf.BackoffMin
	client.RetryWaitMax = conf.BackoffMax
	client.CheckRetry = checkRetry
	client.Logger = &leveledLogger{l: log.Logger.With().Str("component", "content").Logger()}
	client.HTTPClient = &http.Client{
		Timeout: conf.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				// page content is inspected regardless of certificate state
				InsecureSkipVerify: true,
			},
			TLSHandshakeTimeout: conf.Timeout,
			MaxIdleConnsPerHost: 4,
		},
	}

	return &Fetcher{
		client: client,
		conf:   conf,
	}
}
