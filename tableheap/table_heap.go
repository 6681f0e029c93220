package tableheap

import (
	"sync"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/pagecodec"
)

// TableHeap is a linked list of slotted table pages, grounded on
// original_source's TableHeap: InsertTuple appends to the last page
// under a short latch that protects only the last-page pointer, not
// the per-page slot allocation itself.
type TableHeap struct {
	pool *buffer.Manager

	mutex       sync.Mutex
	firstPageID diskio.PageID
	lastPageID  diskio.PageID

	codec pagecodec.TablePageCodec
}

// New allocates the heap's first page.
func New(pool *buffer.Manager) (*TableHeap, bool) {
	pageID, guard, ok := pool.NewPageGuarded()
	if !ok {
		return nil, false
	}
	codec := pagecodec.DefaultTablePageCodec()
	codec.Init(guard.Data())
	guard.Drop()

	return &TableHeap{
		pool:        pool,
		firstPageID: pageID,
		lastPageID:  pageID,
		codec:       codec,
	}, true
}

// Open attaches to an existing heap, e.g. after a restart.
func Open(pool *buffer.Manager, firstPageID, lastPageID diskio.PageID) *TableHeap {
	return &TableHeap{
		pool:        pool,
		firstPageID: firstPageID,
		lastPageID:  lastPageID,
		codec:       pagecodec.DefaultTablePageCodec(),
	}
}

func (h *TableHeap) FirstPageID() diskio.PageID { return h.firstPageID }
func (h *TableHeap) LastPageID() diskio.PageID {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.lastPageID
}

// InsertTuple appends tuple to the last page, allocating a new page
// when it doesn't fit. The last-page pointer is held only long enough
// to identify which page to write into; slot allocation inside that
// page happens under the page's own write latch.
func (h *TableHeap) InsertTuple(meta TupleMeta, tuple Tuple) (RID, bool) {
	h.mutex.Lock()
	lastPageID := h.lastPageID
	h.mutex.Unlock()

	guard, ok := h.pool.FetchPageWrite(lastPageID)
	if !ok {
		return InvalidRID, false
	}

	for !h.codec.FitsTuple(guard.Data(), len(tuple)) {
		if h.codec.NumTuples(guard.Data()) == 0 {
			guard.Drop()
			return InvalidRID, false // tuple too large to ever fit on an empty page
		}

		newPageID, newGuard, ok := h.pool.NewPageGuarded()
		if !ok {
			guard.Drop()
			return InvalidRID, false
		}
		h.codec.Init(newGuard.Data())
		h.codec.SetNextPageID(guard.Data(), int64(newPageID))
		guard.Drop()

		h.mutex.Lock()
		h.lastPageID = newPageID
		h.mutex.Unlock()

		lastPageID = newPageID
		guard = newGuard
	}

	slot := h.codec.InsertTuple(guard.Data(), meta.Ts, meta.IsDeleted, tuple)
	guard.Drop()

	return RID{PageID: lastPageID, Slot: slot}, true
}

// GetTuple returns rid's meta and tuple bytes under a read guard.
func (h *TableHeap) GetTuple(rid RID) (TupleMeta, Tuple, bool) {
	guard, ok := h.pool.FetchPageRead(rid.PageID)
	if !ok {
		return TupleMeta{}, nil, false
	}
	defer guard.Drop()

	ts, isDeleted := h.codec.GetTupleMeta(guard.Data(), rid.Slot)
	tuple := h.codec.GetTuple(guard.Data(), rid.Slot)
	return TupleMeta{Ts: ts, IsDeleted: isDeleted}, tuple, true
}

// GetTupleMeta returns just rid's meta.
func (h *TableHeap) GetTupleMeta(rid RID) (TupleMeta, bool) {
	guard, ok := h.pool.FetchPageRead(rid.PageID)
	if !ok {
		return TupleMeta{}, false
	}
	defer guard.Drop()

	ts, isDeleted := h.codec.GetTupleMeta(guard.Data(), rid.Slot)
	return TupleMeta{Ts: ts, IsDeleted: isDeleted}, true
}

// UpdateTupleMeta rewrites rid's meta only.
func (h *TableHeap) UpdateTupleMeta(meta TupleMeta, rid RID) bool {
	guard, ok := h.pool.FetchPageWrite(rid.PageID)
	if !ok {
		return false
	}
	defer guard.Drop()

	h.codec.UpdateTupleMeta(guard.Data(), rid.Slot, meta.Ts, meta.IsDeleted)
	return true
}

// UpdateTupleInPlace runs check against the current (meta, tuple) under
// the page's write latch and, only if it returns true, overwrites both
// in place. tuple must be exactly the size of the tuple being replaced.
func (h *TableHeap) UpdateTupleInPlace(meta TupleMeta, tuple Tuple, rid RID, check func(TupleMeta, Tuple, RID) bool) bool {
	guard, ok := h.pool.FetchPageWrite(rid.PageID)
	if !ok {
		return false
	}
	defer guard.Drop()

	oldTs, oldDeleted := h.codec.GetTupleMeta(guard.Data(), rid.Slot)
	oldTuple := h.codec.GetTuple(guard.Data(), rid.Slot)

	if check != nil && !check(TupleMeta{Ts: oldTs, IsDeleted: oldDeleted}, oldTuple, rid) {
		return false
	}

	h.codec.UpdateTupleInPlaceUnsafe(guard.Data(), rid.Slot, meta.Ts, meta.IsDeleted, tuple)
	return true
}
