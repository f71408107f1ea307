//go:build !linux

package slink

import "time"

// pollReadable on non-Linux platforms falls back to a short read
// deadline with no peek, since unix.Poll's fast path is
// Linux-specific. This keeps the Connection Loop portable without
// requiring cgo or platform-specific syscalls on every OS, the same
// tradeoff the teacher repo makes by leaving collector_darwin.go a
// stub rather than a full re-implementation.
func pollReadable(conn fder, timeout time.Duration) (bool, error) {
	return pollReadableFallback(conn, timeout)
}
