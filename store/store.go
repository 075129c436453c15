package store

import (
	"fmt"
	"strings"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"
)

var DefaultConfig = Config{
	Host:      "localhost",
	Port:      5432,
	DBName:    "phishdetect",
	BatchSize: 500,
}

type MissingOptsErr struct {
	Section string
	Missing []string
}

func (err MissingOptsErr) Error() string {
	return fmt.Sprintf("missing %s options: %s", err.Section, strings.Join(err.Missing, ", "))
}

type Config struct {
	Enabled   bool   `yaml:"enabled"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	DBName    string `yaml:"dbname"`
	Debug     bool   `yaml:"debug"`
	BatchSize int    `yaml:"batch-size"`

	d *gorm.DB
}

func (c *Config) Open() (*gorm.DB, error) {
	var err error
	if c.d == nil {
		c.d, err = gorm.Open("postgres", c.DSN())
	}
	return c.d, err
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func (c *Config) IsValid() error {
	if !c.Enabled {
		return nil
	}
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Port == 0 {
		missing = append(missing, "port")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.DBName == "" {
		missing = append(missing, "dbname")
	}
	if len(missing) > 0 {
		return MissingOptsErr{"store", missing}
	}
	return nil
}
