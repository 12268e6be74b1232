package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "dsserver.yaml", `
server:
  port: 9099
  host: "127.0.0.1"
domain: Acme
license:
  holder: Acme Corp
  expires: 2030-01-01T00:00:00Z
  seats: 5
users:
  - name: alice
    password_hash: "$2a$04$abcdefghijklmnopqrstuv"
  - name: bob
    domain: Partners
    password_hash: "$2a$04$abcdefghijklmnopqrstuv"
classes:
  Document: Doc
mock:
  enabled: true
  interval: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9099 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Domain != "Acme" {
		t.Errorf("Domain = %q, want Acme", cfg.Domain)
	}
	if cfg.License.Seats != 5 {
		t.Errorf("Seats = %d, want 5", cfg.License.Seats)
	}
	if want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC); !cfg.License.Expires.Equal(want) {
		t.Errorf("Expires = %v, want %v", cfg.License.Expires, want)
	}
	if len(cfg.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(cfg.Users))
	}
	if got := cfg.UserDomain(cfg.Users[0]); got != "Acme" {
		t.Errorf("alice domain = %q, want default Acme", got)
	}
	if got := cfg.UserDomain(cfg.Users[1]); got != "Partners" {
		t.Errorf("bob domain = %q, want Partners", got)
	}
	if !cfg.Mock.Enabled || cfg.Mock.Interval != 500*time.Millisecond {
		t.Errorf("mock = %+v", cfg.Mock)
	}
	// Defaults survive for keys the file omits.
	if cfg.Server.LoginTimeout != 10*time.Second {
		t.Errorf("LoginTimeout = %v, want default 10s", cfg.Server.LoginTimeout)
	}
	if cfg.Broadcast.SendBuffer != 64 {
		t.Errorf("SendBuffer = %d, want default 64", cfg.Broadcast.SendBuffer)
	}
	if cfg.Addr() != "127.0.0.1:9099" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "dsserver.yaml", "server:\n  port: 9099\n")
	t.Setenv("DSSERVER_PORT", "7070")
	t.Setenv("DSSERVER_DOMAIN", "EnvDomain")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Domain != "EnvDomain" {
		t.Errorf("Domain = %q, want EnvDomain", cfg.Domain)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"empty domain", func(c *Config) { c.Domain = "" }},
		{"negative seats", func(c *Config) { c.License.Seats = -1 }},
		{"zero send buffer", func(c *Config) { c.Broadcast.SendBuffer = 0 }},
		{"user without name", func(c *Config) { c.Users = []User{{PasswordHash: "x"}} }},
		{"user without hash", func(c *Config) { c.Users = []User{{Name: "alice"}} }},
		{"duplicate user", func(c *Config) {
			c.Users = []User{{Name: "alice", PasswordHash: "x"}, {Name: "alice", Domain: "DocuShare", PasswordHash: "y"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadClassesReplaceDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "a.yaml", "classes:\n  Document: Doc\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Classes) != 1 || cfg.Classes["Document"] != "Doc" {
		t.Errorf("Classes = %v, want only Document: Doc", cfg.Classes)
	}

	cfg, err = Load(writeFile(t, "b.yaml", "domain: Acme\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Classes) != len(defaultClasses()) {
		t.Errorf("Classes = %v, want defaults", cfg.Classes)
	}
}
