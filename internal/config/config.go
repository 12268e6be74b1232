// Package config holds the listener's connection parameters and the demo
// document server's configuration file.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the demo document server configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Domain    string            `yaml:"domain" env:"DSSERVER_DOMAIN"`
	License   License           `yaml:"license"`
	Users     []User            `yaml:"users"`
	Classes   map[string]string `yaml:"classes"` // class name -> display label
	Mock      MockConfig        `yaml:"mock"`
	Broadcast BroadcastConfig   `yaml:"broadcast"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" env:"DSSERVER_HOST"`
	Port           int           `yaml:"port" env:"DSSERVER_PORT"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LoginTimeout   time.Duration `yaml:"login_timeout" env:"DSSERVER_LOGIN_TIMEOUT"`
}

// License gates logins. A zero Expires never expires; zero Seats means
// no limit on concurrent sessions.
type License struct {
	Holder  string    `yaml:"holder"`
	Expires time.Time `yaml:"expires"`
	Seats   int       `yaml:"seats" env:"DSSERVER_LICENSE_SEATS"`
}

// User is a directory entry. PasswordHash is a bcrypt hash. An empty
// Domain means the server's default domain.
type User struct {
	Name         string `yaml:"name"`
	Domain       string `yaml:"domain"`
	PasswordHash string `yaml:"password_hash"`
	Disabled     bool   `yaml:"disabled"`
}

type MockConfig struct {
	Enabled  bool          `yaml:"enabled" env:"DSSERVER_MOCK"`
	Interval time.Duration `yaml:"interval" env:"DSSERVER_MOCK_INTERVAL"`
}

type BroadcastConfig struct {
	MaxConnections int           `yaml:"max_connections" env:"DSSERVER_MAX_CONNECTIONS"`
	SendBuffer     int           `yaml:"send_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used for any field the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         1099,
			LoginTimeout: 10 * time.Second,
		},
		Domain:  "DocuShare",
		Classes: defaultClasses(),
		Mock: MockConfig{
			Interval: 2 * time.Second,
		},
		Broadcast: BroadcastConfig{
			SendBuffer:   64,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func defaultClasses() map[string]string {
	return map[string]string{
		"Document":   "Document",
		"Collection": "Collection",
		"Version":    "Version",
		"Rendition":  "Rendition",
	}
}

// Load reads the YAML file at path over the defaults, then applies
// DSSERVER_* environment overrides. A classes section in the file replaces
// the default classes rather than merging with them.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.Classes = nil
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Classes == nil {
		cfg.Classes = defaultClasses()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the server cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Domain == "" {
		return fmt.Errorf("domain must not be empty")
	}
	if c.License.Seats < 0 {
		return fmt.Errorf("license.seats must not be negative")
	}
	if c.Broadcast.SendBuffer <= 0 {
		return fmt.Errorf("broadcast.send_buffer must be positive")
	}
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Name == "" {
			return fmt.Errorf("users[%d]: name must not be empty", i)
		}
		if u.PasswordHash == "" {
			return fmt.Errorf("users[%d] %s: password_hash must not be empty", i, u.Name)
		}
		key := c.UserDomain(u) + "\\" + u.Name
		if seen[key] {
			return fmt.Errorf("users[%d]: duplicate user %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

// UserDomain returns the domain u belongs to.
func (c *Config) UserDomain(u User) string {
	if u.Domain != "" {
		return u.Domain
	}
	return c.Domain
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
