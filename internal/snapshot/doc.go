// Package snapshot provides durable per-session key/value storage for
// client state that must survive a restart, such as the dedupe gate's
// seen-event snapshot. Failures are surfaced as errors so callers can
// decide whether to degrade to in-memory operation.
package snapshot
