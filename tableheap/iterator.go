package tableheap

import "github.com/kestrel-db/kestrel/diskio"

// Iterator walks tuples in RID order, bounded by a snapshot of
// (last_page_id, last_page.num_tuples) taken at construction — tuples
// inserted after the iterator is made are not visited.
type Iterator struct {
	heap *TableHeap

	curPageID diskio.PageID
	curSlot   uint32

	endPageID diskio.PageID
	endSlot   uint32
}

// MakeIterator snapshots the heap's current extent and returns an
// iterator over it.
func (h *TableHeap) MakeIterator() *Iterator {
	h.mutex.Lock()
	lastPageID := h.lastPageID
	h.mutex.Unlock()

	numTuples := uint32(0)
	if guard, ok := h.pool.FetchPageRead(lastPageID); ok {
		numTuples = h.codec.NumTuples(guard.Data())
		guard.Drop()
	}

	return &Iterator{
		heap:      h,
		curPageID: h.firstPageID,
		curSlot:   0,
		endPageID: lastPageID,
		endSlot:   numTuples,
	}
}

// Valid reports whether Current would return a tuple.
func (it *Iterator) Valid() bool {
	if it.curPageID == it.endPageID {
		return it.curSlot < it.endSlot
	}
	return it.curPageID != diskio.InvalidPageID
}

// Current returns the RID the iterator is positioned at.
func (it *Iterator) Current() RID {
	return RID{PageID: it.curPageID, Slot: it.curSlot}
}

// Next advances the iterator by one slot, following next_page_id links
// once a page's tuples are exhausted.
func (it *Iterator) Next() {
	guard, ok := it.heap.pool.FetchPageRead(it.curPageID)
	if !ok {
		it.curPageID = diskio.InvalidPageID
		return
	}
	numTuples := it.heap.codec.NumTuples(guard.Data())
	nextPageID := diskio.PageID(it.heap.codec.NextPageID(guard.Data()))
	guard.Drop()

	it.curSlot++
	if it.curPageID == it.endPageID {
		return
	}
	if it.curSlot >= numTuples {
		it.curPageID = nextPageID
		it.curSlot = 0
	}
}
