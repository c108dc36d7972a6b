package dash

import "log"

// Logf is the package diagnostic logger. It defaults to log.Printf; the
// terminal console swaps it out so log lines do not tear the screen.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf is used for per-frame chatter. Off unless SetDebug(true).
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug routes Debugf through Logf when enabled.
func SetDebug(enabled bool) {
	if !enabled {
		Debugf = func(string, ...interface{}) {}
		return
	}
	Debugf = func(format string, v ...interface{}) {
		Logf("[DEBUG] "+format, v...)
	}
}
