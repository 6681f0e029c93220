package exec

import "github.com/kestrel-db/kestrel/tableheap"

// singleRowFeed is a fixed one-row Operator, used to drive Insert/Delete
// operators from a value the caller already has in hand (a server
// request body) instead of a scan.
type singleRowFeed struct {
	row  Row
	rid  tableheap.RID
	done bool
}

// NewRowFeed drives an InsertOperator with exactly one row.
func NewRowFeed(row Row) Operator {
	return &singleRowFeed{row: row}
}

// NewRIDFeed drives a Delete/Update operator against exactly one known
// rid, carrying the row already fetched for it (via FetchByRID) so the
// write operator can compute undo logs and index deltas without a scan.
func NewRIDFeed(row Row, rid tableheap.RID) Operator {
	return &singleRowFeed{row: row, rid: rid}
}

func (f *singleRowFeed) Init() error {
	f.done = false
	return nil
}

func (f *singleRowFeed) Next() (Row, tableheap.RID, bool, error) {
	if f.done {
		return nil, tableheap.RID{}, false, nil
	}
	f.done = true
	return f.row, f.rid, true, nil
}

// DecodeCount reads back the single-field count row Insert/Delete/Update
// operators return from their terminal Next call.
func DecodeCount(row Row) int {
	if len(row) != 1 || len(row[0]) < 4 {
		return 0
	}
	b := row[0]
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
}
