// Package monitoring carries the process-wide diagnostic logger.
package monitoring

import "log"

// Logf is the diagnostic logger used across the daemon and tools. It
// defaults to log.Printf; tests and embedders may redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
