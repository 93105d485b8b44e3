package transport

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AuthStrategy selects how credentials travel to the server.
type AuthStrategy string

const (
	// AuthNone sends no credentials; the endpoint is used as given.
	AuthNone AuthStrategy = "none"

	// AuthQuery embeds token and clientID in the URI query.
	AuthQuery AuthStrategy = "query"

	// AuthHeader sends the token as a Bearer Authorization header and the
	// clientID in the query.
	AuthHeader AuthStrategy = "header"

	// AuthHandshake sends the clientID in the query and the token in a
	// login envelope, the first frame on the open connection.
	AuthHandshake AuthStrategy = "handshake"
)

// ParseAuthStrategy parses a strategy name. The empty string means AuthNone.
func ParseAuthStrategy(s string) (AuthStrategy, error) {
	switch a := AuthStrategy(strings.ToLower(s)); a {
	case "":
		return AuthNone, nil
	case AuthNone, AuthQuery, AuthHeader, AuthHandshake:
		return a, nil
	}
	return "", fmt.Errorf("unknown auth strategy %q", s)
}

// Credentials identify the client to the server.
type Credentials struct {
	Token    string
	ClientID string
}

// String renders the credentials with the token replaced by its fingerprint.
func (c Credentials) String() string {
	return fmt.Sprintf("clientID=%s token=%s", c.ClientID, Fingerprint(c.Token))
}

// Params describe one connection attempt.
type Params struct {
	// Endpoint is a ws:// or wss:// URI.
	Endpoint string

	Auth        AuthStrategy
	Credentials Credentials
}

// URL returns the URI to dial for these parameters.
func (p Params) URL() (string, error) {
	return BuildURL(p.Endpoint, p.Auth, p.Credentials)
}

// Header returns the handshake headers for these parameters.
func (p Params) Header() http.Header {
	h := http.Header{}
	if p.Auth == AuthHeader && p.Credentials.Token != "" {
		h.Set("Authorization", "Bearer "+p.Credentials.Token)
	}
	return h
}

// Fingerprint returns a short BLAKE2b digest of a secret, safe for logs.
func Fingerprint(secret string) string {
	if secret == "" {
		return "<none>"
	}
	sum := blake2b.Sum256([]byte(secret))
	return "b2:" + hex.EncodeToString(sum[:4])
}

// BuildURL derives the URI to dial from an endpoint and auth strategy.
//
// For AuthQuery the result is endpoint + "?token=<t>&clientID=<id>" with
// both values percent-encoded, token first. An existing query is kept and
// the new parameters appended after it. AuthHeader and AuthHandshake add
// only clientID. AuthNone returns the endpoint unchanged.
func BuildURL(endpoint string, auth AuthStrategy, creds Credentials) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("%w: scheme %q is not ws or wss", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	var extra []string
	switch auth {
	case "", AuthNone:
		return endpoint, nil
	case AuthQuery:
		extra = append(extra,
			"token="+escape(creds.Token),
			"clientID="+escape(creds.ClientID))
	case AuthHeader, AuthHandshake:
		if creds.ClientID != "" {
			extra = append(extra, "clientID="+escape(creds.ClientID))
		}
	default:
		return "", fmt.Errorf("unknown auth strategy %q", auth)
	}
	if len(extra) == 0 {
		return endpoint, nil
	}

	if u.Path == "" {
		u.Path = "/"
	}
	query := strings.Join(extra, "&")
	if u.RawQuery != "" {
		query = u.RawQuery + "&" + query
	}
	u.RawQuery = query
	return u.String(), nil
}

// escape percent-encodes s the way browsers' encodeURIComponent does for
// the characters that matter in a query (space becomes %20, not +).
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// RedactSecret replaces every occurrence of secret in s, raw or
// percent-encoded, with its fingerprint.
func RedactSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	fp := Fingerprint(secret)
	forms := []string{secret, escape(secret), url.QueryEscape(secret), url.PathEscape(secret)}
	sort.Slice(forms, func(i, j int) bool { return len(forms[i]) > len(forms[j]) })
	pairs := make([]string, 0, 2*len(forms))
	for _, f := range forms {
		pairs = append(pairs, f, fp)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// RedactURL replaces the token query parameter with its fingerprint.
// Parameter order is preserved. Unparseable input is returned as "<invalid url>".
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	if u.RawQuery == "" {
		return u.String()
	}

	parts := strings.Split(u.RawQuery, "&")
	for i, p := range parts {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key != "token" {
			continue
		}
		token, err := url.QueryUnescape(value)
		if err != nil {
			token = value
		}
		parts[i] = key + "=" + Fingerprint(token)
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
