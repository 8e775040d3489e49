package pool

import (
	"net/url"

	"github.com/influxtsdb/nodepool/connection"
	"github.com/influxtsdb/nodepool/pkg/httputil"
)

const (
	// DefaultWeightScale is the total weight shared by the nodes of a pool.
	DefaultWeightScale = 1000

	// DefaultDecayPolicy is the decay applied to nodes marked dead.
	DefaultDecayPolicy = DecayLog
)

// Config represents the configuration of a pool.
type Config struct {
	WeightScale int               `toml:"weight-scale"`
	DecayPolicy string            `toml:"decay-policy"`
	Auth        AuthConfig        `toml:"auth"`
	Nodes       []NodeConfig      `toml:"nodes"`
	Connection  connection.Config `toml:"connection"`
}

// AuthConfig holds the credentials shared by nodes that have none.
type AuthConfig struct {
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	APIKeyID  string `toml:"api-key-id"`
	APIKey    string `toml:"api-key"`
	JWTSecret string `toml:"jwt-secret"`
}

// NodeConfig describes a statically configured node.
type NodeConfig struct {
	ID    string                 `toml:"id"`
	URL   string                 `toml:"url"`
	Roles map[string]interface{} `toml:"roles"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		WeightScale: DefaultWeightScale,
		DecayPolicy: DefaultDecayPolicy,
		Connection:  connection.NewConfig(),
	}
}

// Validate returns an error if the Config is invalid.
func (c Config) Validate() error {
	if c.WeightScale <= 0 {
		return connection.NewConfigurationError("weight-scale must be positive")
	}
	if _, err := DecayByName(c.DecayPolicy); err != nil {
		return err
	}
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	_, err := c.Descriptors()
	return err
}

// Descriptors converts the configured nodes into descriptors.
func (c Config) Descriptors() ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		d, err := FromURL(n.URL)
		if err != nil {
			return nil, err
		}
		d.ID = n.ID
		if d.Roles, err = connection.ParseRoles(n.Roles); err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// auth returns the configured credentials, or nil if there are none.
func (c AuthConfig) auth() *httputil.Auth {
	a := &httputil.Auth{
		Username: c.Username,
		Password: c.Password,
		APIKeyID: c.APIKeyID,
		APIKey:   c.APIKey,
		Secret:   c.JWTSecret,
	}
	if a.IsZero() {
		return nil
	}
	return a
}

// urlAuth returns the credentials embedded in u, or nil if u carries no
// username and password.
func urlAuth(u *url.URL) *httputil.Auth {
	if u.User == nil {
		return nil
	}
	password, _ := u.User.Password()
	if u.User.Username() == "" || password == "" {
		return nil
	}
	return &httputil.Auth{Username: u.User.Username(), Password: password}
}
