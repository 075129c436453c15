package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aau-network-security/phishdetect/generic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var DefaultConfig = Config{
	Timeout: 30 * time.Second,
	Retries: 2,
}

var (
	ErrUnsupportedScheme = errors.New("unsupported download scheme")
)

type StatusErr struct {
	URL    string
	Status int
}

func (err StatusErr) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", err.URL, err.Status)
}

type Config struct {
	BaseURL string        `yaml:"base-url"`
	Files   []string      `yaml:"files"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

func (c Config) Enabled() bool {
	return c.BaseURL != "" && len(c.Files) > 0
}

// ParseFiles splits a comma separated list of file names
func ParseFiles(s string) []string {
	var res []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			res = append(res, f)
		}
	}
	return res
}

type Result struct {
	File      string
	Path      string
	Skipped   bool
	Extracted []string
	Err       error
}

type Client interface {
	Login(user, pass string) error
	Retr(string) (io.ReadCloser, error)
	Quit() error
}

type client struct {
	c *ftp.ServerConn
}

func (c *client) Login(user, pass string) error {
	return c.c.Login(user, pass)
}

func (c *client) Retr(s string) (io.ReadCloser, error) {
	return c.c.Retr(s)
}

func (c *client) Quit() error {
	return c.c.Quit()
}

type DialFunc func(ctx context.Context, addr string, timeout time.Duration) (Client, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (Client, error) {
	c, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &client{c}, nil
}

type Downloader struct {
	conf      Config
	dir       string
	http      *retryablehttp.Client
	dial      DialFunc
	retryWait time.Duration
}

func (d *Downloader) WithDialFunc(f DialFunc) *Downloader {
	d.dial = f
	return d
}

// FetchMissing downloads every configured file that is not yet present in
// the directory. Failures are reported per file and never abort the others.
func (d *Downloader) FetchMissing(ctx context.Context) []Result {
	if !d.conf.Enabled() {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		log.Error().Msgf("failed to create model directory: %s", err)
		return nil
	}

	var res []Result
	for _, f := range d.conf.Files {
		r := d.fetch(ctx, f)
		switch {
		case r.Err != nil:
			log.Error().Str("file", f).Msgf("failed to download: %s", r.Err)
		case r.Skipped:
			log.Debug().Str("file", f).Msg("already present")
		default:
			log.Info().Str("file", f).Str("path", r.Path).Msg("downloaded")
		}
		res = append(res, r)
	}
	return res
}

func (d *Downloader) fetch(ctx context.Context, name string) Result {
	r := Result{File: name}
	if name != filepath.Base(name) || name == "." || name == ".." {
		r.Err = fmt.Errorf("invalid file name '%s'", name)
		return r
	}

	target := filepath.Join(d.dir, name)
	r.Path = target
	if _, err := os.Stat(target); err == nil {
		r.Skipped = true
		return r
	}

	u, err := url.Parse(strings.TrimRight(d.conf.BaseURL, "/") + "/" + name)
	if err != nil {
		r.Err = err
		return r
	}

	var get func(context.Context, *url.URL, io.Writer) error
	switch u.Scheme {
	case "http", "https":
		get = d.getHTTP
	case "ftp":
		get = d.getFTP
	default:
		r.Err = errors.Wrap(ErrUnsupportedScheme, u.Scheme)
		return r
	}

	if err := writeFile(target, func(w io.Writer) error { return get(ctx, u, w) }); err != nil {
		r.Err = err
		return r
	}

	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		extracted, err := Extract(target, d.dir)
		if err != nil {
			r.Err = errors.Wrap(err, "extract archive")
			return r
		}
		r.Extracted = extracted
	}
	return r
}

// writeFile writes to a temporary file which is only moved to path when
// the download completed
func writeFile(p string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".part*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (d *Downloader) getHTTP(ctx context.Context, u *url.URL, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, d.conf.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusErr{u.String(), resp.StatusCode}
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func ftpCredentials(u *url.URL) (string, string) {
	if u.User == nil {
		return "anonymous", "anonymous"
	}
	pass, _ := u.User.Password()
	return u.User.Username(), pass
}

func (d *Downloader) getFTP(ctx context.Context, u *url.URL, w io.Writer) error {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}
	user, pass := ftpCredentials(u)

	// the writer may hold a partial file after a failed attempt
	seeker, _ := w.(io.Seeker)
	truncater, _ := w.(interface{ Truncate(int64) error })

	attempt := func() error {
		if seeker != nil && truncater != nil {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if err := truncater.Truncate(0); err != nil {
				return err
			}
		}

		c, err := d.dial(ctx, host, d.conf.Timeout)
		if err != nil {
			return errors.Wrap(err, "dial ftp server")
		}
		defer c.Quit()

		if err := c.Login(user, pass); err != nil {
			return errors.Wrap(err, "ftp login")
		}
		rc, err := c.Retr(path.Clean(u.Path))
		if err != nil {
			return errors.Wrap(err, "ftp retrieve")
		}
		defer rc.Close()

		_, err = io.Copy(w, rc)
		return err
	}
	return generic.RetryWithWait(attempt, d.conf.Retries, d.retryWait)
}

func New(conf Config, dir string) *Downloader {
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultConfig.Timeout
	}
	if conf.Retries < 0 {
		conf.Retries = 0
	}

	c := retryablehttp.NewClient()
	c.RetryMax = conf.Retries
	c.Logger = nil

	return &Downloader{
		conf:      conf,
		dir:       dir,
		http:      c,
		dial:      dialFTP,
		retryWait: time.Second,
	}
}
