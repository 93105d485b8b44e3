package discovery

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Browser finds post office servers.
type Browser interface {
	// Browse reports servers as they appear. The channel is closed when
	// ctx is done or the browser is stopped.
	Browse(ctx context.Context) (<-chan *Service, error)

	// Find returns the first server with the given instance name, or the
	// first server at all when name is empty.
	Find(ctx context.Context, name string) (*Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// Endpoint returns the WebSocket URL of the service. The first address
// is preferred over the host name.
func (s *Service) Endpoint() (string, error) {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	if host == "" {
		return "", ErrNoAddress
	}

	port := int(s.Port)
	if port == 0 {
		port = DefaultPort
	}

	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}

	path := s.Path
	if path == "" {
		path = "/"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String(), nil
}

// newService builds a Service from the parts of an mDNS entry. It
// returns nil if the TXT records are invalid.
func newService(instance, host string, port int, text []string, ipv4, ipv6 []net.IP) *Service {
	info, err := DecodeServerTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(ipv4)+len(ipv6))
	for _, ip := range ipv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range ipv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
		ServerInfo:   *info,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops gone from addresses.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// aggregator folds per-interface entries into one Service per instance.
type aggregator struct {
	services map[string]*Service
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*Service)}
}

// add records svc and returns true if the instance is new.
func (a *aggregator) add(svc *Service) bool {
	if existing, found := a.services[svc.InstanceName]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return false
	}
	a.services[svc.InstanceName] = svc
	return true
}

// remove drops addresses of instance and forgets it once none remain.
func (a *aggregator) remove(instance string, addrs []string) {
	existing, found := a.services[instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, addrs)
	if len(existing.Addresses) == 0 {
		delete(a.services, instance)
	}
}
