package httputil

import (
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/influxtsdb/nodepool/pkg/jwtutil"
)

const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
	AuthTypeJWT    = "jwt"
	JWTExpiration  = 5 * time.Minute
)

// Auth holds the credentials applied to every request of a node.
type Auth struct {
	Username string
	Password string
	APIKeyID string
	APIKey   string
	Secret   string
}

// Type returns the authorization scheme the credentials select. An api key
// takes precedence over a jwt secret, which takes precedence over basic auth.
func (a *Auth) Type() string {
	switch {
	case a == nil:
		return AuthTypeNone
	case a.APIKey != "":
		return AuthTypeAPIKey
	case a.Secret != "" && a.Username != "":
		return AuthTypeJWT
	case a.Username != "" && a.Password != "":
		return AuthTypeBasic
	default:
		return AuthTypeNone
	}
}

// IsZero returns true if no credential is set.
func (a *Auth) IsZero() bool {
	return a == nil || (a.Username == "" && a.Password == "" && a.APIKey == "" && a.Secret == "")
}

// StaticAuthorization returns the authorization header value for credentials
// that do not change between requests. It returns an empty string for jwt
// credentials, which are signed per request by SetHeaderAuth.
func StaticAuthorization(a *Auth) string {
	switch a.Type() {
	case AuthTypeAPIKey:
		if a.APIKeyID != "" {
			return "ApiKey " + base64.StdEncoding.EncodeToString([]byte(a.APIKeyID+":"+a.APIKey))
		}
		return "ApiKey " + a.APIKey
	case AuthTypeBasic:
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.Username+":"+a.Password))
	}
	return ""
}

// SetHeaderAuth sets the user agent and, when the request does not carry one
// yet, the authorization header derived from a.
func SetHeaderAuth(req *http.Request, a *Auth, userAgent string) error {
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if req.Header.Get("Authorization") != "" {
		return nil
	}
	switch a.Type() {
	case AuthTypeJWT:
		signed, err := jwtutil.SignedString(a.Username, a.Secret, JWTExpiration)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+signed)
	case AuthTypeAPIKey, AuthTypeBasic:
		req.Header.Set("Authorization", StaticAuthorization(a))
	}
	return nil
}

// TransportConfig describes the keep-alive agent of a single node.
type TransportConfig struct {
	KeepAlive       bool
	KeepAliveTime   time.Duration
	DialTimeout     time.Duration
	MaxIdleConns    int
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
	TLS             *tls.Config
}

// NewTransport returns a keep-alive transport bound by c. Compression is
// disabled so that callers decide whether responses get decoded.
func NewTransport(c TransportConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   c.DialTimeout,
		KeepAlive: c.KeepAliveTime,
	}).DialContext
	transport.DisableCompression = true
	transport.DisableKeepAlives = !c.KeepAlive
	transport.MaxIdleConns = c.MaxIdleConns
	transport.MaxIdleConnsPerHost = c.MaxIdleConns
	transport.IdleConnTimeout = c.IdleConnTimeout
	if c.KeepAlive {
		transport.MaxConnsPerHost = c.MaxConnsPerHost
	} else {
		transport.MaxConnsPerHost = 0
	}
	if c.TLS != nil {
		transport.TLSClientConfig = c.TLS.Clone()
	}
	return transport
}

// CloseIdleConnections closes the idle connections of rt if it supports it.
func CloseIdleConnections(rt http.RoundTripper) {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if tr, ok := rt.(closeIdler); ok {
		tr.CloseIdleConnections()
	}
}

// StripAuth removes the userinfo section of a raw url.
func StripAuth(rawurl string) string {
	scheme := strings.Index(rawurl, "//")
	if scheme == -1 {
		return rawurl
	}
	rest := rawurl[scheme+2:]
	end := strings.IndexAny(rest, "/?#")
	if end == -1 {
		end = len(rest)
	}
	at := strings.LastIndex(rest[:end], "@")
	if at == -1 {
		return rawurl
	}
	return rawurl[:scheme+2] + rest[at+1:]
}
