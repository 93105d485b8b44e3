package discovery

import (
	"errors"
	"time"

	"github.com/zhycit/postoffice-go/pkg/transport"
)

const (
	// ServiceType is the DNS-SD service type of post office servers.
	ServiceType = "_postoffice._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when an entry carries no port.
	DefaultPort = 7502

	// BrowseTimeout is the default timeout for finding a server.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyPath    = "path"
	TXTKeyAuth    = "auth"
	TXTKeyTLS     = "tls"
	TXTKeyCodec   = "codec"
	TXTKeyVersion = "ver"
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNoAddress           = errors.New("service has no address")
	ErrBrowserStopped      = errors.New("browser stopped")
)

// ServerInfo is what a server announces in its TXT records.
type ServerInfo struct {
	Path    string
	Auth    transport.AuthStrategy
	TLS     bool
	Codec   string
	Version string
}

// Service is a discovered post office server.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	ServerInfo
}

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// Timeout bounds Find. Default: 10 seconds.
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Timeout: BrowseTimeout}
}
