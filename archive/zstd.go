// Package archive provides a metadata-only packet event log: as each
// packet is delivered by the Connection Loop, a small JSON-lines
// record describing it (station, sequence, format, length, arrival
// time) is appended to a zstd-compressed, time-rotated file. Payload
// bytes themselves are never archived, matching the spec's data-plane
// Non-goals; the archive exists purely for after-the-fact bookkeeping
// (what arrived, when, for which station).
package archive

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
)

// Variables to allow whitebox mocking for testing.
var (
	osPipe      = os.Pipe
	zstdCommand = "zstd"
)

type waitingWriteCloser struct {
	io.WriteCloser
	wg *sync.WaitGroup
}

func (w waitingWriteCloser) Close() error {
	if err := w.WriteCloser.Close(); err != nil {
		return err
	}
	w.wg.Wait()
	return nil
}

// newZstdWriter returns a WriteCloser that pipes all writes through an
// external zstd process into filename. Close blocks until zstd has
// finished flushing to disk.
func newZstdWriter(filename string) (io.WriteCloser, error) {
	var wg sync.WaitGroup
	wg.Add(1)

	pipeR, pipeW, err := osPipe()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(zstdCommand)
	cmd.Stdin = pipeR
	cmd.Stdout = f

	go func() {
		if err := cmd.Run(); err != nil {
			log.Println("zstd error writing", filename, err)
		}
		pipeR.Close()
		wg.Done()
	}()

	return waitingWriteCloser{pipeW, &wg}, nil
}

// errZstdUnavailable is used by callers that want a clearer error than
// exec.Command's "file not found" when zstd isn't on PATH.
func errZstdUnavailable() error {
	if _, err := exec.LookPath(zstdCommand); err != nil {
		return fmt.Errorf("archive: %q not found on PATH: %w", zstdCommand, err)
	}
	return nil
}
