// Package common holds the options and helpers shared by the nodepool subcommands.
package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/influxtsdb/nodepool/logger"
	"github.com/influxtsdb/nodepool/pool"
	"go.uber.org/zap"
)

// Options represents the command line options that can be parsed.
type Options struct {
	ConfigPath string
	Username   string
	Password   string
	APIKey     string
	Secret     string
	SkipTLS    bool
	LogLevel   string
}

// LoadConfig returns the pool config from the config file, if any, with the
// credential flags applied on top.
func (o *Options) LoadConfig() (pool.Config, error) {
	c := pool.NewConfig()
	if o.ConfigPath != "" {
		if _, err := toml.DecodeFile(o.ConfigPath, &c); err != nil {
			return c, fmt.Errorf("parse config: %s", err)
		}
	}

	if o.Username != "" {
		c.Auth.Username = o.Username
	}
	if o.Password != "" {
		c.Auth.Password = o.Password
	}
	if o.Secret != "" {
		c.Auth.JWTSecret = o.Secret
	}
	if o.APIKey != "" {
		if i := strings.Index(o.APIKey, ":"); i >= 0 {
			c.Auth.APIKeyID, c.Auth.APIKey = o.APIKey[:i], o.APIKey[i+1:]
		} else {
			c.Auth.APIKey = o.APIKey
		}
	}
	if o.SkipTLS {
		c.Connection.HTTPSInsecureTLS = true
	}
	return c, c.Validate()
}

// Logger returns a logger writing to w at the requested level, or a no-op
// logger when no level was requested.
func (o *Options) Logger(w io.Writer) (*zap.Logger, error) {
	if o.LogLevel == "" {
		return zap.NewNop(), nil
	}
	c := logger.NewConfig()
	if err := c.Level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return c.New(w)
}

// OperationExitedError wraps the error returned by a subcommand.
func OperationExitedError(err error) error {
	if err != nil {
		return fmt.Errorf("operation exited with error: %s", err)
	}
	return nil
}
