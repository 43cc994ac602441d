// Package logx is pantrybot's structured logging.
//
// Logger is a small value type over zerolog. Console output is the
// human-readable writer with a short caller; file output is JSON lines.
// Service owns the sinks so a config reload can swap them in place.
package logx
