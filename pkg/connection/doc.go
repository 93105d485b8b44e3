// Package connection keeps a post office session alive across transport
// failures.
//
// A session.Client wraps a single-use connection, so reconnecting means
// building a fresh client. The Manager does this in a loop: it asks a
// Factory for a new client, opens it, waits for it to close and starts
// over after a backoff delay.
//
// # Reconnection Strategy
//
// Delays grow exponentially:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 1s once a client reaches the open state
//
// Each delay is randomized by up to 25% in either direction so that a
// fleet of clients does not hit a restarted server in lockstep.
//
// Closing the Manager closes the current client and stops the loop.
package connection
