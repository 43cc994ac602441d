// Package pantry is the user-facing item workflow: registering users,
// saving and listing items, and per-user notification settings. Every save
// is followed by the immediate-notification check.
package pantry
