// Package discovery finds post office servers on the local network with
// mDNS/DNS-SD.
//
// Servers advertise the _postoffice._tcp service in the "local" domain.
// The instance name is a user-facing server name; TXT records describe
// how to reach the WebSocket endpoint:
//
//   - path: the WebSocket path (default "/")
//   - auth: the authentication strategy (none, query, header, handshake)
//   - tls: "1" when the endpoint requires wss://
//   - codec: the preferred envelope codec (json or cbor)
//   - ver: server version (informational)
//
// A Service found by browsing converts to a session endpoint with
// Endpoint. Addresses seen on several interfaces are merged into one
// Service per instance.
package discovery
