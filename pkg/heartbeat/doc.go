// Package heartbeat emits a payload on a fixed interval for as long as it
// is running.
//
// The first tick fires immediately on Start. Each following tick is armed
// only after the previous send has returned, so ticks never overlap and
// the interval is measured from the completion of the previous tick.
// Stop cancels the pending tick and waits for an in-flight send; no send
// starts after Stop returns.
package heartbeat
