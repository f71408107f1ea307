// Command slinktool is a minimal SeedLink client driving the
// Connection Loop in a tight loop, archiving delivered packets and
// exposing Prometheus metrics, in the same glue-code shape as the
// teacher repo's main.go: flag parsing, flagx environment overrides,
// rtx.Must for startup fatals, and a Prometheus exporter on its own
// port.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	slink "github.com/iris-edu/goslink"
	"github.com/iris-edu/goslink/archive"
	"github.com/iris-edu/goslink/events"
	"github.com/iris-edu/goslink/streamtable"
)

var (
	server      = flag.String("server", "localhost:18000", "SeedLink server address (host:port)")
	stationID   = flag.String("station", "", "NET_STA to subscribe to; empty means uni-station mode")
	selectors   = flag.String("selectors", "", "space-separated selector list")
	stateFile   = flag.String("statefile", "", "path to a state file to recover from and save to")
	outputDir   = flag.String("output", ".", "directory for the archived packet event log")
	eventSocket = flag.String("eventsocket", "", "Unix-domain socket path for lifecycle notifications; empty disables it")
	promAddr    = flag.String("prom", ":9090", "Prometheus metrics export address and port")
	bufSize     = flag.Int("bufsize", 16*1024, "initial per-packet receive buffer size")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	promSrv := prometheusx.MustStartPrometheus(*promAddr)
	defer promSrv.Shutdown(ctx)

	client := slink.New("slinktool", "1.0")
	rtx.Must(client.SetAddress(*server), "invalid -server %q", *server)
	client.SetMetrics(slink.NewMetrics("slinktool"))

	if *stationID == "" {
		rtx.Must(client.SetUniParams(*selectors, streamtable.UnsetSequence, ""), "could not configure uni-station mode")
	} else {
		rtx.Must(client.AddStream(*stationID, *selectors, streamtable.UnsetSequence, ""), "could not subscribe to %q", *stationID)
	}

	if *stateFile != "" {
		rtx.Must(client.RecoverState(*stateFile), "could not recover state from %q", *stateFile)
	}

	const archiveRotate = 10 * time.Minute
	arc, err := archive.NewArchiver(*outputDir, 3, archiveRotate)
	rtx.Must(err, "could not start archiver")
	defer arc.Close()

	// One "cycle" has no natural boundary in a packet stream the way it
	// does in the teacher's poll-then-scan loop, so EndCycle is driven
	// off the same rotation interval: any station that archived nothing
	// in the last cycle gets its file closed.
	endCycle := time.NewTicker(archiveRotate)
	defer endCycle.Stop()
	go func() {
		for {
			select {
			case <-endCycle.C:
				arc.EndCycle()
			case <-ctx.Done():
				return
			}
		}
	}()

	if *eventSocket != "" {
		b := events.NewBroadcaster(*eventSocket)
		rtx.Must(b.Listen(), "could not listen on %q", *eventSocket)
		go func() {
			if err := b.Serve(); err != nil {
				log.Println("events broadcaster stopped:", err)
			}
		}()
		defer b.Close()
		client.SetHandler(b)
	}

	buf := make([]byte, *bufSize)
	for ctx.Err() == nil {
		var info slink.PacketInfo
		switch client.Collect(&info, buf) {
		case slink.Packet:
			if err := arc.Record(archive.Event{
				StationID:  info.StationID,
				Seq:        info.Seq,
				Format:     info.PayloadFormat.String(),
				PayloadLen: info.PayloadLen,
				Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
			}); err != nil {
				log.Println("archive:", err)
			}
		case slink.TooLarge:
			buf = make([]byte, info.PayloadLen)
		case slink.Terminate:
			if *stateFile != "" {
				if err := client.SaveState(*stateFile); err != nil {
					log.Println("save state:", err)
				}
			}
			return
		}
	}

	if *stateFile != "" {
		rtx.Must(client.SaveState(*stateFile), "could not save state to %q", *stateFile)
	}
}
