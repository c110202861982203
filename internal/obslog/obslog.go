// Package obslog wraps zap to give every component a logger tagged with
// its own name, the way a larger service splits "component" out as a
// structured field instead of prefixing message strings by hand.
package obslog

import "go.uber.org/zap"

var base *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// SetDevelopment swaps the process-wide base logger for zap's human-readable
// development config; cmd/indexer calls this when -dev is set.
func SetDevelopment() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	base = l
}

// For returns a sugared logger tagged with component.
func For(component string) *zap.SugaredLogger {
	return base.With(zap.String("component", component)).Sugar()
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	_ = base.Sync()
}
