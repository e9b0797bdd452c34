// Package game implements the per-channel raid battle engine: the session
// registry, the phase state machine, the support vote aggregator, and the
// outcome calculation. Each session guards its own state with its own lock
// so concurrent channels never contend with each other.
package game
