// Package throttle implements the anti-brute-force delay applied to
// invalid login attempts: one step per consecutive failure, clamped at
// a configured ceiling, expressed as a cancellable context-aware wait.
package throttle
