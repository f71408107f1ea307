//go:build linux

package slink

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollReadable blocks up to timeout waiting for fd to become readable,
// using unix.Poll directly rather than net.Conn's deadline machinery, so
// the Connection Loop's 500ms/1ms readiness checks never themselves
// block the full I/O timeout on an idle socket. This mirrors the
// teacher repo's collector_linux.go / collector_darwin.go split: the
// platform-specific half of one concern (here, readiness polling
// instead of netlink syscalls) lives in its own GOOS file.
func pollReadable(conn fder, timeout time.Duration) (bool, error) {
	sc, ok := conn.(syscallConner)
	if !ok {
		return pollReadableFallback(conn, timeout)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return pollReadableFallback(conn, timeout)
	}

	var ready bool
	var pollErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err != nil {
			pollErr = err
			return
		}
		ready = n > 0 && fds[0].Revents&unix.POLLIN != 0
	})
	if ctrlErr != nil {
		return false, ctrlErr
	}
	return ready, pollErr
}
