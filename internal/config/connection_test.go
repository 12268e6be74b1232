package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/docfeed/dslisten/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsDefaults(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	var stderr bytes.Buffer
	opts, err := ParseArgs("dslisten", []string{"-u", "admin", "-p", "secret"}, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stderr.String())

	assert.Equal(t, Connection{
		Host:     "localhost",
		Port:     1099,
		Domain:   "DocuShare",
		Username: "admin",
		Password: "secret",
	}, opts.Connection)
	assert.Equal(t, event.AllEvents, opts.Filter)
	assert.False(t, opts.Watch)
	assert.Equal(t, "ws://localhost:1099/ws", opts.URL())
}

func TestParseArgsAllFlags(t *testing.T) {
	opts, err := ParseArgs("dslisten", []string{
		"-u", "alice", "-p", "pw", "-h", "docs.example.com", "-port", "2099", "-d", "Acme",
		"-filter", "LINK_CHANGED,LOGIN_FAILED", "-watch", "-no-color", "-debug",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "docs.example.com:2099", opts.Addr())
	assert.Equal(t, "Acme", opts.Domain)
	assert.Equal(t, event.MaskOf(event.LinkChanged, event.LoginFailed), opts.Filter)
	assert.True(t, opts.Watch)
	assert.True(t, opts.NoColor)
	assert.True(t, opts.Debug)
}

func TestParseArgsUsageErrors(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing username", []string{"-p", "pw"}, "missing required option: -u"},
		{"missing password", []string{"-u", "admin"}, "missing required option: -p"},
		{"malformed port", []string{"-u", "admin", "-p", "pw", "-port", "rmi"}, "invalid value"},
		{"port out of range", []string{"-u", "admin", "-p", "pw", "-port", "0"}, "port must be between"},
		{"unknown flag", []string{"-u", "admin", "-p", "pw", "-x"}, "flag provided but not defined"},
		{"bad filter", []string{"-u", "admin", "-p", "pw", "-filter", "NOPE"}, "invalid -filter"},
		{"positional", []string{"-u", "admin", "-p", "pw", "extra"}, "unexpected argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			_, err := ParseArgs("dslisten", tt.args, &stderr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUsage), "error %v should wrap ErrUsage", err)
			assert.Contains(t, stderr.String(), tt.want)
			assert.Contains(t, stderr.String(), "usage: dslisten -u <username> -p <password>")
		})
	}
}

func TestParseArgsPasswordFromEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "from-env")

	opts, err := ParseArgs("dslisten", []string{"-u", "admin"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "from-env", opts.Password)

	opts, err = ParseArgs("dslisten", []string{"-u", "admin", "-p", "flag"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "flag", opts.Password, "explicit flag wins over env")
}

func TestParseArgsConfigFile(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	path := writeFile(t, "dslisten.yaml", `
host: docs.internal
port: 4099
domain: Acme
username: svc-listener
password: from-file
filter: OBJECT_CREATED
`)

	opts, err := ParseArgs("dslisten", []string{"-config", path, "-h", "override.internal"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "override.internal", opts.Host, "flag overrides file")
	assert.Equal(t, 4099, opts.Port)
	assert.Equal(t, "Acme", opts.Domain)
	assert.Equal(t, "svc-listener", opts.Username)
	assert.Equal(t, "from-file", opts.Password)
	assert.Equal(t, event.MaskOf(event.ObjectCreated), opts.Filter)
}

func TestParseArgsConfigFileUnknownKey(t *testing.T) {
	path := writeFile(t, "dslisten.yaml", "hostname: typo\n")
	var stderr bytes.Buffer
	_, err := ParseArgs("dslisten", []string{"-config", path, "-u", "a", "-p", "b"}, &stderr)
	require.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, stderr.String(), "cannot read config")
}
