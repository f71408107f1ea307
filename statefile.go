package slink

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/iris-edu/goslink/streamtable"
)

// SaveState writes the Stream Table's (station_id, last_seq, last_time)
// projection to path, one line per subscription, in the table's
// iteration order. -1 denotes streamtable.UnsetSequence.
//
// I/O here uses plain bufio.Writer over an *os.File, the same idiom the
// teacher repo uses throughout (loader, eventsocket) rather than
// introducing a new one for this one feature.
func (c *SLCD) SaveState(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: cannot open state file for writing: %v", ErrConfig, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range c.streams.Iter() {
		seqField := "-1"
		if e.LastSeq != streamtable.UnsetSequence {
			seqField = strconv.FormatUint(e.LastSeq, 10)
		}
		line := fmt.Sprintf("%s %s", e.StationID, seqField)
		if e.LastTime != "" {
			line += " " + e.LastTime
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("%w: cannot write state file: %v", ErrConfig, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: cannot flush state file: %v", ErrConfig, err)
	}
	c.log.Log(LogInfo, 2, "saved connection state to "+path)
	return nil
}

// RecoverState reads path and applies each entry's sequence/timestamp
// to the matching Stream Table subscription (which must already exist
// via AddStream/SetUniParams). Both the current line format
// (NET_STA seq [iso-timestamp]) and the legacy format
// (NET STA seq [comma-timestamp]) are accepted; legacy timestamps are
// normalized to ISO-8601 on the way in, so a subsequent SaveState
// always rewrites in the new form.
//
// A missing file is not an error: it returns nil so a first-run caller
// can proceed with fresh subscriptions.
func (c *SLCD) RecoverState(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.log.Log(LogInfo, 1, "no state file found at "+path)
			return nil
		}
		return fmt.Errorf("%w: cannot open state file: %v", ErrConfig, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		stationID, seq, ts, err := parseStateLine(sc.Text())
		if err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("state file line %d: %v", lineNo, err))
			continue
		}
		if stationID == "" {
			continue // blank line
		}
		if err := c.streams.Update(stationID, seq, ts); err != nil {
			// Not fatal: the state file may reference a station no
			// longer in this session's subscription set.
			c.log.Log(LogInfo, 1, fmt.Sprintf("state file entry %q not in current subscriptions", stationID))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: error reading state file: %v", ErrConfig, err)
	}
	c.log.Log(LogInfo, 2, "recovered connection state from "+path)
	return nil
}

// parseStateLine accepts "NET_STA seq [ts]" or legacy "NET STA seq [ts]".
func parseStateLine(line string) (stationID string, seq uint64, ts string, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", 0, "", nil
	}
	fields := strings.Fields(line)
	switch {
	case len(fields) >= 2 && strings.Contains(fields[0], "_"):
		stationID = fields[0]
		seq, err = parseSeqField(fields[1])
		if len(fields) >= 3 {
			ts, err = normalizeTimestampField(fields[2])
		}
	case len(fields) >= 3:
		stationID = fields[0] + "_" + fields[1]
		seq, err = parseSeqField(fields[2])
		if len(fields) >= 4 {
			ts, err = normalizeTimestampField(strings.Join(fields[3:], ","))
		}
	default:
		return "", 0, "", fmt.Errorf("could not parse line %q", line)
	}
	return stationID, seq, ts, err
}

func parseSeqField(s string) (uint64, error) {
	if s == "-1" {
		return streamtable.UnsetSequence, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad sequence field %q: %w", s, err)
	}
	return n, nil
}

func normalizeTimestampField(s string) (string, error) {
	return streamtable.NormalizeTimestamp(s)
}
