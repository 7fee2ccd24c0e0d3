// Package dedupe provides at-most-once admission of event identifiers
// within a time window, with a bounded store that is mirrored to durable
// per-session storage so duplicates are still caught after a restart.
package dedupe
