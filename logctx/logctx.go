// Package logctx provides per-worker prefixed loggers over the standard
// library log package.
package logctx

import (
	"log"
	"os"
)

// New returns a logger prefixed with "[name] ", with date/time stripped.
func New(name string) *log.Logger {
	return log.New(os.Stderr, "["+name+"] ", 0)
}
