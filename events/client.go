package events

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net"
)

// Watch connects to a Broadcaster's socket and invokes onNotify for
// each line received until ctx is cancelled, the same
// connect-then-scan-newlines shape as the teacher repo's
// eventsocket.MustRun, generalized to return an error instead of being
// fatal-only.
func Watch(ctx context.Context, socket string, onNotify func(Notification)) error {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s := bufio.NewScanner(conn)
	for s.Scan() {
		var n Notification
		if err := json.Unmarshal(s.Bytes(), &n); err != nil {
			log.Println("events: could not unmarshal notification:", err)
			continue
		}
		onNotify(n)
	}
	return s.Err()
}
