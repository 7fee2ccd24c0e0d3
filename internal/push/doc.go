// Package push bridges out-of-band messages from the background
// notifier into navigation intents. Only NAVIGATE_TO messages are acted
// on; everything else is ignored silently. Registration is idempotent
// and teardown removes the listener so remounts never double-fire.
package push
