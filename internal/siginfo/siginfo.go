// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package siginfo installs a handler for the BSD style SIGINFO signal
// so a long running fill can report progress on demand.
package siginfo

import (
	"os"
	"os/signal"
	"syscall"
)

// SIGINFO isn't part of the stdlib, but it's 29 on most systems.
const SIGINFO = syscall.Signal(29)

// SetHandler runs f on every SIGINFO until the returned stop function
// is called.
func SetHandler(f func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, SIGINFO)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				f()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
