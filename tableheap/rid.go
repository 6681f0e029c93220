// Package tableheap implements table storage as a singly-linked list of
// slotted pages, following.
package tableheap

import (
	"fmt"

	"github.com/kestrel-db/kestrel/diskio"
)

// RID (record id) locates a tuple: the page it lives on and its slot
// within that page.
type RID struct {
	PageID diskio.PageID
	Slot   uint32
}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}

// InvalidRID marks the absence of a record reference.
var InvalidRID = RID{PageID: diskio.InvalidPageID}

// TupleMeta is the visibility metadata bustub's MVCC layer stores
// alongside every tuple: the timestamp of its last writer and whether
// that write was a delete.
type TupleMeta struct {
	Ts        uint64
	IsDeleted bool
}

// Tuple is an opaque, already-serialized row. Encoding tuples into and
// out of bytes is the execution layer's job; the table heap only moves
// bytes around.
type Tuple []byte
