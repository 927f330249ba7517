//go:build !linux

package main

import "os"

// readInputEventsEpoll on non-Linux platforms falls back to one blocking
// reader goroutine per device. Button input only matters on the Linux bench
// targets, but the daemon itself should still build and run elsewhere.
func readInputEventsEpoll(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	for _, f := range files {
		go readInputEvents(f, events, readErr)
	}
	select {}
}
