// Package state keeps per-user conversation sessions for the dialog engine.
// Sessions live in process memory only; a restart starts every user from scratch.
package state
