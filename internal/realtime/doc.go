// Package realtime consumes the per-identity server-sent event stream,
// normalizes incoming notification payloads, patches the shared read
// cache, and dispatches type-specific invalidations. Each payload passes
// the dedupe gate first, so a logical event is applied at most once.
package realtime
