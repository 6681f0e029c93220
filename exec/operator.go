package exec

import "github.com/kestrel-db/kestrel/tableheap"

// Operator is the tuple-at-a-time iterator contract every executor in
// this package implements: Init resets iteration state, Next produces
// rows one at a time until it reports done.
type Operator interface {
	Init() error
	Next() (row Row, rid tableheap.RID, ok bool, err error)
}

// IndexHandle is the subset of a secondary index an operator needs to
// keep it in sync with its owning table. catalog.IndexInfo implements
// this over a hashindex.Table so exec never imports catalog directly.
type IndexHandle interface {
	// KeyColumns lists the row column positions that make up this
	// index's key, in order.
	KeyColumns() []int
	Insert(key Row, rid tableheap.RID) bool
	Delete(key Row, rid tableheap.RID) bool
}

// indexKey projects row down to the columns index cares about.
func indexKey(row Row, idx IndexHandle) Row {
	cols := idx.KeyColumns()
	key := make(Row, len(cols))
	for i, col := range cols {
		if col < len(row) {
			key[i] = row[col]
		}
	}
	return key
}
