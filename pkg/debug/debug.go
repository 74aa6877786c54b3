// Package debug provides global debug logging flags
package debug

import "github.com/teslashibe/go-jellyfish/internal/log"

// Enabled controls whether debug logging is active
var Enabled bool

// Tracking controls whether per-frame slot logs are shown (admissions, expiries, drops).
// Use --debug-tracking flag to enable these very verbose logs
var Tracking bool

// Log emits a message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Component("debug").Info(msg, args...)
	}
}

// TrackLog emits a message only if tracking debug mode is enabled
func TrackLog(msg string, args ...any) {
	if Tracking {
		log.Component("tracking").Info(msg, args...)
	}
}
