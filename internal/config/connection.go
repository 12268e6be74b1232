package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/protocol"
	"gopkg.in/yaml.v3"
)

// PasswordEnv supplies the password when -p is not given.
const PasswordEnv = "DSLISTEN_PASSWORD"

// ErrUsage is returned when the command line cannot be turned into a
// Connection. Usage text has already been written when it is returned.
var ErrUsage = errors.New("invalid usage")

// Connection identifies the server and the credentials to log in with.
// It is a plain value: copy it, never mutate a shared one.
type Connection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Domain   string `yaml:"domain"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DefaultConnection returns the defaults for everything except credentials.
func DefaultConnection() Connection {
	return Connection{
		Host:   "localhost",
		Port:   1099,
		Domain: "DocuShare",
	}
}

// Addr returns host:port.
func (c Connection) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the WebSocket URL of the event feed.
func (c Connection) URL() string {
	return "ws://" + c.Addr() + protocol.Path
}

// Options is everything the listener command line controls.
type Options struct {
	Connection
	Filter  event.Mask
	Watch   bool
	NoColor bool
	Debug   bool
}

// connectionFile is the optional YAML defaults file.
type connectionFile struct {
	Connection `yaml:",inline"`
	Filter     string `yaml:"filter"`
}

// LoadConnectionFile reads connection defaults from a YAML file. Unknown
// keys are rejected so that typos do not silently fall back to defaults.
func LoadConnectionFile(path string) (Connection, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Connection{}, "", err
	}
	var f connectionFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Connection{}, "", fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Connection, f.Filter, nil
}

// ParseArgs parses the listener command line. Precedence, lowest first:
// built-in defaults, the -config file, DSLISTEN_PASSWORD, explicit flags.
func ParseArgs(prog string, args []string, stderr io.Writer) (Options, error) {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := DefaultConnection()
	username := fs.String("u", "", "Username to login as (required)")
	password := fs.String("p", "", "User password (required, or set "+PasswordEnv+")")
	host := fs.String("h", def.Host, "Document server host")
	port := fs.Int("port", def.Port, "Document server port")
	domain := fs.String("d", def.Domain, "User domain")
	configPath := fs.String("config", "", "YAML file with connection defaults")
	filter := fs.String("filter", "", "Comma-separated event kinds to subscribe to (default all)")
	watch := fs.Bool("watch", false, "Full-screen live view instead of plain output")
	noColor := fs.Bool("no-color", false, "Disable styled output")
	debug := fs.Bool("debug", false, "Verbose diagnostics on stderr")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s -u <username> -p <password> [-h <host>] [-port <rmiport>] [-d <domain>]\n", prog)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	fail := func(format string, a ...any) (Options, error) {
		msg := fmt.Sprintf(format, a...)
		fmt.Fprintln(fs.Output(), msg)
		fs.Usage()
		return Options{}, fmt.Errorf("%w: %s", ErrUsage, msg)
	}
	if fs.NArg() > 0 {
		return fail("unexpected argument %q", fs.Arg(0))
	}

	opts := Options{Connection: def}
	filterSpec := ""
	if *configPath != "" {
		fc, fileFilter, err := LoadConnectionFile(*configPath)
		if err != nil {
			return fail("cannot read config: %v", err)
		}
		opts.Connection = merge(opts.Connection, fc)
		filterSpec = fileFilter
	}
	if opts.Password == "" {
		opts.Password = os.Getenv(PasswordEnv)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "u":
			opts.Username = *username
		case "p":
			opts.Password = *password
		case "h":
			opts.Host = *host
		case "port":
			opts.Port = *port
		case "d":
			opts.Domain = *domain
		case "filter":
			filterSpec = *filter
		}
	})
	opts.Watch = *watch
	opts.NoColor = *noColor
	opts.Debug = *debug

	if opts.Username == "" {
		return fail("missing required option: -u")
	}
	if opts.Password == "" {
		return fail("missing required option: -p")
	}
	if opts.Host == "" {
		return fail("host must not be empty")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return fail("port must be between 1 and 65535, got %d", opts.Port)
	}
	mask, err := event.ParseMask(filterSpec)
	if err != nil {
		return fail("invalid -filter: %v", err)
	}
	opts.Filter = mask
	return opts, nil
}

// merge overlays the non-zero fields of over onto base.
func merge(base, over Connection) Connection {
	if over.Host != "" {
		base.Host = over.Host
	}
	if over.Port != 0 {
		base.Port = over.Port
	}
	if over.Domain != "" {
		base.Domain = over.Domain
	}
	if over.Username != "" {
		base.Username = over.Username
	}
	if over.Password != "" {
		base.Password = over.Password
	}
	return base
}
