// Package transport manages the WebSocket connection of a post office
// session.
//
// The transport layer handles:
//   - Dialing through a pluggable Dialer (gorilla/websocket or nhooyr.io/websocket)
//   - Attaching credentials per AuthStrategy (query, header, in-band)
//   - The connection state machine (Idle, Connecting, Open, Closing, Closed, Failed)
//   - Ordered, single-threaded delivery of handler notifications
//   - Optional WebSocket ping/pong keep-alive
//
// # State Machine
//
//	Idle ──Connect──▶ Connecting ──dial ok──▶ Open ──Close/peer close──▶ Closing ──▶ Closed
//	                      │                    │
//	                      └──dial error──▶ Failed ◀──read/write error──┘
//	                                          │
//	                                          └──────────▶ Closed
//
// A Connection is single-use: once Closed it stays Closed. Reconnecting
// means creating a new Connection (see package connection).
//
// # Dispatch
//
// State changes, inbound frames and errors are queued in order and
// delivered by one dispatcher goroutine per connection. Handlers may call
// Send and Close from inside a callback.
package transport
