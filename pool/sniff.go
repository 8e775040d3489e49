package pool

import (
	"net/url"
	"sort"
	"strings"

	"github.com/influxtsdb/nodepool/connection"
	"github.com/pkg/errors"
)

// SniffPath is the discovery endpoint whose response NodesToHost translates.
const SniffPath = "/_nodes/_all/http"

// NodesResponse is the body of a discovery response.
type NodesResponse struct {
	Nodes map[string]NodeInfo `json:"nodes"`
}

// NodeInfo describes a node in a discovery response.
type NodeInfo struct {
	HTTP struct {
		PublishAddress string `json:"publish_address"`
	} `json:"http"`
	Roles []string `json:"roles"`
}

// NodesToHost translates the nodes of a discovery response into descriptors,
// ordered by node id. A publish address is either ip:port or hostname/ip:port;
// in the latter form the hostname is used. protocol, such as "http:" or
// "https", is prepended to addresses that have none.
func NodesToHost(nodes map[string]NodeInfo, protocol string) ([]Descriptor, error) {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	scheme := strings.TrimSuffix(strings.TrimSuffix(protocol, "//"), ":")
	if scheme == "" {
		scheme = "http"
	}

	descriptors := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		node := nodes[id]
		address, err := publishAddress(node.HTTP.PublishAddress)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", id)
		}
		if !strings.HasPrefix(address, "http") {
			address = scheme + "://" + address
		}

		u, err := url.Parse(address)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", id)
		}

		roles := connection.DefaultRoles()
		for _, r := range node.Roles {
			roles[connection.Role(r)] = true
		}

		d, err := FromDescriptor(Descriptor{ID: id, URL: u, Roles: roles})
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", id)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// publishAddress returns host:port for an address of the form ip:port or
// hostname/ip:port.
func publishAddress(address string) (string, error) {
	i := strings.Index(address, "/")
	if i < 0 || strings.Contains(address, "://") {
		return address, nil
	}
	hostname, ipPort := address[:i], address[i+1:]
	j := strings.LastIndex(ipPort, ":")
	if j < 0 || j == len(ipPort)-1 {
		return "", errors.Errorf("missing port in publish address %q", address)
	}
	port := ipPort[j+1:]
	for _, c := range port {
		if c < '0' || c > '9' {
			return "", errors.Errorf("invalid port in publish address %q", address)
		}
	}
	return hostname + ":" + port, nil
}
