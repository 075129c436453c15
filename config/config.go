package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/aau-network-security/phishdetect/classifier"
	"github.com/aau-network-security/phishdetect/collectors/certificate"
	"github.com/aau-network-security/phishdetect/collectors/content"
	"github.com/aau-network-security/phishdetect/collectors/whois"
	"github.com/aau-network-security/phishdetect/download"
	"github.com/aau-network-security/phishdetect/store"
	"github.com/aau-network-security/phishdetect/verdict"
	"gopkg.in/yaml.v2"
)

const (
	SentryDsn    = "SENTRY_DSN"
	DbPass       = "PHISHDETECT_DB_PASS"
	InfluxToken  = "PHISHDETECT_INFLUX_TOKEN"
	ModelBaseURL = "MODEL_BASE_URL"
	ModelFiles   = "MODEL_FILES"
	APIKey       = "API_KEY"
)

type ConfigErr struct {
	errs []string
}

func (ce *ConfigErr) Add(s string) {
	ce.errs = append(ce.errs, s)
}

func (ce *ConfigErr) Error() string {
	return "config err: " + strings.Join(ce.errs, ",")
}

func (ce *ConfigErr) IsError() bool {
	return len(ce.errs) > 0
}

func NewConfigErr() ConfigErr {
	return ConfigErr{
		errs: []string{},
	}
}

type Model struct {
	Dir            string          `yaml:"dir"`
	ReloadInterval time.Duration   `yaml:"reload-interval"` // 0 disables hot reload
	Download       download.Config `yaml:"download"`
}

type Classifier struct {
	Params   classifier.Params `yaml:",inline"`
	TestSize float64           `yaml:"test-size"`
	Folds    int               `yaml:"folds"`
}

type Decision struct {
	Threshold float64  `yaml:"threshold"`
	Trusted   []string `yaml:"trusted"`
}

type Sources struct {
	Domain      bool `yaml:"domain"`
	Content     bool `yaml:"content"`
	Certificate bool `yaml:"certificate"`
}

type API struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read-timeout"`
	WriteTimeout time.Duration `yaml:"write-timeout"`
	MaxBodyBytes int64         `yaml:"max-body-bytes"`
	APIKey       string        `yaml:"api-key"` // empty disables the key check
}

func (a API) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type Config struct {
	Log         Log                `yaml:"log"`
	Sentry      Sentry             `yaml:"sentry"`
	Model       Model              `yaml:"model"`
	Classifier  Classifier         `yaml:"classifier"`
	Decision    Decision           `yaml:"decision"`
	Sources     Sources            `yaml:"sources"`
	Domain      whois.Opts         `yaml:"domain"`
	Content     content.Config     `yaml:"content"`
	Certificate certificate.Config `yaml:"certificate"`
	API         API                `yaml:"api"`
	Store       store.Config       `yaml:"store"`
	InfluxDB    store.InfluxOpts   `yaml:"influxdb"`
}

func Default() Config {
	return Config{
		Log: Log{
			Level: "info",
		},
		Model: Model{
			Dir:      "models",
			Download: download.DefaultConfig,
		},
		Classifier: Classifier{
			Params:   classifier.DefaultParams,
			TestSize: classifier.DefaultTestSize,
		},
		Decision: Decision{
			Threshold: verdict.DefaultThreshold,
			Trusted:   verdict.DefaultTrusted,
		},
		Sources: Sources{
			Domain:      true,
			Content:     true,
			Certificate: true,
		},
		Domain:      whois.DefaultOpts,
		Content:     content.DefaultConfig,
		Certificate: certificate.DefaultConfig,
		API: API{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodyBytes: 1 << 16,
		},
		Store: store.DefaultConfig,
	}
}

func (c *Config) IsValid() error {
	ce := NewConfigErr()

	if err := c.Log.IsValid(); err != nil {
		ce.Add(err.Error())
	}
	if err := c.Sentry.IsValid(); err != nil {
		ce.Add(err.Error())
	}
	if c.Model.Dir == "" {
		ce.Add("model dir cannot be empty")
	}
	if c.Model.ReloadInterval < 0 {
		ce.Add("model reload-interval cannot be negative")
	}
	if c.Classifier.TestSize < 0 || c.Classifier.TestSize >= 1 {
		ce.Add("classifier test-size must be in [0, 1)")
	}
	if c.Classifier.Folds == 1 || c.Classifier.Folds < 0 {
		ce.Add("classifier folds must be 0 or at least 2")
	}
	if c.Decision.Threshold < 0 || c.Decision.Threshold > 1 {
		ce.Add("decision threshold must be in [0, 1]")
	}
	if err := c.Domain.Policy.IsValid(); err != nil {
		ce.Add(err.Error())
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		ce.Add(fmt.Sprintf("invalid api port %d", c.API.Port))
	}
	if err := c.Store.IsValid(); err != nil {
		ce.Add(err.Error())
	}
	if err := c.InfluxDB.IsValid(); err != nil {
		ce.Add(err.Error())
	}

	if ce.IsError() {
		return &ce
	}
	return nil
}

// reads secrets and overrides from the environment, secrets are cleared once read
func (c *Config) readEnv() {
	if dsn := os.Getenv(SentryDsn); dsn != "" {
		c.Sentry.Dsn = dsn
	}
	if pass := os.Getenv(DbPass); pass != "" {
		c.Store.Password = pass
	}
	if token := os.Getenv(InfluxToken); token != "" {
		c.InfluxDB.AuthToken = token
	}
	if base := os.Getenv(ModelBaseURL); base != "" {
		c.Model.Download.BaseURL = base
	}
	if files := os.Getenv(ModelFiles); files != "" {
		c.Model.Download.Files = download.ParseFiles(files)
	}
	if key := os.Getenv(APIKey); key != "" {
		c.API.APIKey = key
	}

	for _, env := range []string{SentryDsn, DbPass, InfluxToken, APIKey} {
		os.Setenv(env, "")
	}
}

func Parse(raw []byte) (Config, error) {
	conf := Default()
	if err := yaml.Unmarshal(raw, &conf); err != nil {
		return conf, err
	}
	conf.readEnv()
	return conf, nil
}

// ReadConfig reads the file at path on top of the defaults. An empty path
// yields the defaults with the environment applied.
func ReadConfig(path string) (Config, error) {
	if path == "" {
		return Parse(nil)
	}
	f, err := ioutil.ReadFile(path)
	if err != nil {
		return Default(), err
	}
	return Parse(f)
}
