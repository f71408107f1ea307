// Package streamtable implements the SeedLink Stream Table: an ordered
// set of subscriptions keyed by NET_STA id, supporting insertion in
// priority order and glob-match dispatch of incoming packet updates.
//
// The table is a plain slice kept sorted by (priority, station id)
// rather than a pointer-linked list or a map: external iteration
// order matters (it is the order written to the state file), and the
// teacher repo's preference throughout is for simple owned containers
// (compare cache.Cache's plain maps) over intrusive linked structures.
package streamtable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iris-edu/goslink/internal/globmatch"
)

// UniStationID is the reserved station identifier for uni-station mode.
const UniStationID = "XX_UNI"

// Sentinel sequence numbers, per the wire protocol.
const (
	UnsetSequence   uint64 = 1<<64 - 1
	AllDataSequence uint64 = 1<<64 - 2
)

var (
	// ErrUniConflict is returned when attempting to mix uni-station mode
	// with explicit NET_STA entries.
	ErrUniConflict = errors.New("streamtable: cannot mix uni-station and explicit station entries")
	// ErrNoMatch indicates a packet's station id matched no subscription.
	ErrNoMatch = errors.New("streamtable: packet station id matched no subscription")
)

// Priority classes, lower sorts first.
const (
	PriorityExact = 1
	PriorityQuest = 2
	PriorityStar  = 3
)

// Entry is one Stream Table subscription.
type Entry struct {
	StationID string
	Selectors string // space-separated selector list, empty if none
	LastSeq   uint64
	LastTime  string // ISO-8601 UTC, empty if none yet
	Priority  int
}

// Table is the ordered subscription list.
type Table struct {
	entries []*Entry
	isUni   bool
}

// New returns an empty Stream Table.
func New() *Table {
	return &Table{}
}

func priorityOf(stationID string) int {
	switch {
	case strings.ContainsAny(stationID, "*"):
		return PriorityStar
	case strings.ContainsAny(stationID, "?["):
		return PriorityQuest
	default:
		return PriorityExact
	}
}

// Add inserts a new subscription for stationID in sorted position. seq
// and timestamp are stored as given (timestamp normalized to ISO-8601);
// pass UnsetSequence and "" for a subscription with no resume point.
func (t *Table) Add(stationID, selectors string, seq uint64, timestamp string) error {
	if t.isUni {
		return fmt.Errorf("%w: uni-station entry already present", ErrUniConflict)
	}
	ts, err := normalizeTimestamp(timestamp)
	if err != nil {
		return err
	}
	e := &Entry{
		StationID: stationID,
		Selectors: selectors,
		LastSeq:   seq,
		LastTime:  ts,
		Priority:  priorityOf(stationID),
	}
	t.insertSorted(e)
	return nil
}

// SetUni installs or replaces the singleton uni-station entry. It is an
// error if any non-uni entries already exist.
func (t *Table) SetUni(selectors string, seq uint64, timestamp string) error {
	for _, e := range t.entries {
		if e.StationID != UniStationID {
			return fmt.Errorf("%w: non-uni entries already present", ErrUniConflict)
		}
	}
	ts, err := normalizeTimestamp(timestamp)
	if err != nil {
		return err
	}
	t.entries = []*Entry{{
		StationID: UniStationID,
		Selectors: selectors,
		LastSeq:   seq,
		LastTime:  ts,
		Priority:  PriorityExact,
	}}
	t.isUni = true
	return nil
}

func (t *Table) insertSorted(e *Entry) {
	i := sort.Search(len(t.entries), func(i int) bool {
		o := t.entries[i]
		if o.Priority != e.Priority {
			return o.Priority > e.Priority
		}
		return o.StationID >= e.StationID
	})
	t.entries = append(t.entries, nil)
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
}

// Update scans the table and updates every entry whose pattern
// glob-matches packetStationID (the uni-station entry matches any
// packet). It is an error if zero entries match.
func (t *Table) Update(packetStationID string, seq uint64, timestamp string) error {
	ts, err := normalizeTimestamp(timestamp)
	if err != nil {
		return err
	}
	matched := false
	for _, e := range t.entries {
		if e.StationID == UniStationID || globmatch.Match(packetStationID, e.StationID) {
			e.LastSeq = seq
			e.LastTime = ts
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: %s", ErrNoMatch, packetStationID)
	}
	return nil
}

// Iter returns the entries in stored (priority, then station id) order.
// The returned slice must not be mutated by the caller.
func (t *Table) Iter() []*Entry {
	return t.entries
}

// Len reports the number of subscriptions.
func (t *Table) Len() int {
	return len(t.entries)
}

// IsUni reports whether the table holds the singleton uni-station entry.
func (t *Table) IsUni() bool {
	return t.isUni
}

// NormalizeTimestamp accepts either an already-ISO-8601 timestamp or the
// legacy comma-delimited form (YYYY,MM,DD,hh,mm,ss[,ffff]) and always
// returns ISO-8601 UTC with a trailing 'Z'. An empty input stays empty.
func NormalizeTimestamp(ts string) (string, error) {
	return normalizeTimestamp(ts)
}

func normalizeTimestamp(ts string) (string, error) {
	if ts == "" {
		return "", nil
	}
	if strings.Contains(ts, "-") || strings.Contains(ts, "T") {
		return canonicalizeISO(ts)
	}
	return commaToISO(ts)
}

func canonicalizeISO(ts string) (string, error) {
	ts = strings.TrimSuffix(ts, "Z")
	layouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return isoFormat(t), nil
		}
	}
	return "", fmt.Errorf("streamtable: unparseable ISO timestamp %q", ts)
}

func commaToISO(ts string) (string, error) {
	parts := strings.Split(ts, ",")
	if len(parts) < 6 {
		return "", fmt.Errorf("streamtable: unparseable comma timestamp %q", ts)
	}
	layout := "2006,1,2,15,4,5"
	raw := strings.Join(parts[:6], ",")
	t, err := time.Parse(layout, raw)
	if err != nil {
		return "", fmt.Errorf("streamtable: unparseable comma timestamp %q: %w", ts, err)
	}
	if len(parts) >= 7 {
		var frac int64
		fmt.Sscanf(parts[6], "%d", &frac)
		t = t.Add(time.Duration(frac) * 100 * time.Microsecond)
	}
	return isoFormat(t), nil
}

func isoFormat(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

// ToComma converts an ISO-8601 timestamp back to the legacy
// comma-delimited form, the inverse of commaToISO, used only by tests
// exercising the round-trip law in the spec's testable properties.
func ToComma(iso string) (string, error) {
	t, err := canonicalTime(iso)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d,%02d,%02d,%02d,%02d,%02d,%04d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/100000), nil
}

func canonicalTime(iso string) (time.Time, error) {
	ts := strings.TrimSuffix(iso, "Z")
	return time.Parse("2006-01-02T15:04:05.000", ts)
}
