package pool

import (
	"crypto/tls"
	"net/http"
	"net/url"

	"github.com/influxtsdb/nodepool/connection"
	"github.com/influxtsdb/nodepool/pkg/httputil"
	"github.com/pkg/errors"
)

// Descriptor describes a node to add to the pool. Only URL is required.
type Descriptor struct {
	// ID is the cluster-assigned identity of the node. It defaults to the
	// node url without credentials.
	ID  string
	URL *url.URL

	// Roles overrides the default roles of the node.
	Roles map[connection.Role]bool

	// Auth is used instead of the pool's shared credentials.
	Auth *httputil.Auth

	TLS       *tls.Config
	Headers   http.Header
	Transport connection.TransportFactory
}

// FromURL returns a descriptor for a bare node url.
func FromURL(rawurl string) (Descriptor, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return Descriptor{}, connection.NewConfigurationError("Invalid node url: '%s'", httputil.StripAuth(rawurl))
	}
	return FromDescriptor(Descriptor{URL: u})
}

// FromDescriptor validates d and returns a copy that is safe to keep, with
// its url normalized.
func FromDescriptor(d Descriptor) (Descriptor, error) {
	if d.URL == nil {
		return Descriptor{}, connection.NewConfigurationError("missing node url")
	}
	u := connection.NormalizeURL(d.URL)
	if u.Scheme != "http" && u.Scheme != "https" {
		return Descriptor{}, connection.NewConfigurationError("Invalid protocol: '%s:'", d.URL.Scheme)
	}
	d.URL = u
	d.Headers = d.Headers.Clone()
	return d, nil
}

// FromList returns one descriptor per node url.
func FromList(rawurls []string) ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(rawurls))
	for _, rawurl := range rawurls {
		d, err := FromURL(rawurl)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d", len(descriptors))
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// href returns the node url without credentials, the identity a node
// gets when it has no id of its own.
func (d *Descriptor) href() string {
	return httputil.StripAuth(d.URL.String())
}

// id returns the identity the node will be registered under.
func (d *Descriptor) id() string {
	if d.ID != "" {
		return d.ID
	}
	return d.href()
}
