// Package config loads eventstreamd's configuration from an INI file
// (section "General") with CLI flags layered on top as overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/ini.v1"
)

// Config is the full set of server-tunable settings.
type Config struct {
	SocketFile  string `default:"/var/run/eventstreamd.sock"`
	SocketMode  uint32 `default:"384"` // 0600 octal
	SocketOwner string
	SocketGroup string

	SSLCertificateFile string
	SSLKeyFile         string

	HTTPPort int `default:"8888"`

	PingInterval time.Duration `default:"20s"`

	Debug bool
}

// WithSSL reports whether both halves of a TLS key pair are configured.
func (c *Config) WithSSL() bool {
	return c.SSLCertificateFile != "" && c.SSLKeyFile != ""
}

// New returns a Config populated with its defaults, as if no file and no
// flags had been supplied.
func New() (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads filename's "General" section over the defaults. A missing
// key falls back to whatever New already populated; SocketMode, if
// present, is parsed as an octal string (e.g. "600").
func Load(filename string) (*Config, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}

	f, err := ini.Load(filename)
	if err != nil {
		return nil, err
	}
	section := f.Section("General")

	if key := section.Key("SocketFile"); key.String() != "" {
		c.SocketFile = key.String()
	}
	if key := section.Key("SocketMode"); key.String() != "" {
		mode, err := strconv.ParseUint(key.String(), 8, 32)
		if err != nil {
			return nil, err
		}
		c.SocketMode = uint32(mode)
	}
	c.SocketOwner = section.Key("SocketOwner").String()
	c.SocketGroup = section.Key("SocketGroup").String()
	c.SSLCertificateFile = section.Key("SSLCertificateFile").String()
	c.SSLKeyFile = section.Key("SSLKeyFile").String()
	if key := section.Key("HTTPPort"); key.String() != "" {
		port, err := key.Int()
		if err != nil {
			return nil, err
		}
		c.HTTPPort = port
	}

	return c, nil
}

// LoadDefault loads the standard system-wide config file, falling back to
// plain defaults if it does not exist -- read_default_config's behavior.
func LoadDefault(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return New()
	}
	return Load(filename)
}
