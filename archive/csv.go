package archive

import (
	"io"

	"github.com/gocarina/gocsv"

	"github.com/iris-edu/goslink/streamtable"
)

// streamRow is the CSV projection of one Stream Table entry, the
// analog of the teacher's csvtool turning snapshot.Snapshot records
// into rows via struct tags gocsv reads by reflection.
type streamRow struct {
	StationID string `csv:"station_id"`
	Selectors string `csv:"selectors"`
	LastSeq   uint64 `csv:"last_seq"`
	LastTime  string `csv:"last_time"`
	Priority  int    `csv:"priority"`
}

// WriteStreamTableCSV writes the current Stream Table contents to w as
// CSV, one row per subscription, in table order.
func WriteStreamTableCSV(t *streamtable.Table, w io.Writer) error {
	entries := t.Iter()
	rows := make([]streamRow, len(entries))
	for i, e := range entries {
		rows[i] = streamRow{
			StationID: e.StationID,
			Selectors: e.Selectors,
			LastSeq:   e.LastSeq,
			LastTime:  e.LastTime,
			Priority:  e.Priority,
		}
	}
	return gocsv.Marshal(rows, w)
}
