//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// readInputEventsEpoll reads from multiple input devices using a single
// epoll-driven goroutine instead of one blocking-read goroutine per device.
// The kernel wakes us only when at least one device has an event ready.
//
// A device that hangs up (unplugged remote, removed evdev node) is dropped
// from the epoll set; the reader keeps serving the remaining devices and only
// fails once no devices are left.
func readInputEventsEpoll(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	// fd -> file, for identification and for dropping dead devices.
	fdToFile := make(map[int]*os.File)

	for _, f := range files {
		fd := int(f.Fd())
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
			return
		}
		fdToFile[fd] = f
	}

	dropDevice := func(fd int) {
		_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if f := fdToFile[fd]; f != nil {
			_ = f.Close()
		}
		delete(fdToFile, fd)
	}

	// Reusable buffers; each wakeup drains up to maxReady descriptors.
	const maxReady = 32
	ready := make([]unix.EpollEvent, maxReady)
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf)

	for {
		n, err := unix.EpollWait(epfd, ready, -1)
		if err != nil {
			// Interrupted system call (e.g. on SIGINT) is not fatal.
			if err == syscall.EINTR {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(ready[i].Fd)
			f := fdToFile[fd]
			if f == nil {
				continue
			}

			if ready[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				dropDevice(fd)
				if len(fdToFile) == 0 {
					readErr <- fmt.Errorf("all input devices gone (last: %s)", f.Name())
					return
				}
				continue
			}

			if _, err := f.Read(buf); err != nil {
				dropDevice(fd)
				if len(fdToFile) == 0 {
					readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
					return
				}
				continue
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				// Skip malformed events
				continue
			}

			events <- ev
		}
	}
}
