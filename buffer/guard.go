package buffer

import "github.com/kestrel-db/kestrel/diskio"

// BasicPageGuard pins a page without acquiring its frame latch. Drop
// unpins with the recorded dirty bit; a guard is empty (its zero value)
// once moved from or dropped, and every method is a no-op on an empty
// guard.
type BasicPageGuard struct {
	pool   *Manager
	pageID diskio.PageID
	frame  *Frame
	dirty  bool
}

func newBasicPageGuard(pool *Manager, pageID diskio.PageID, frame *Frame) BasicPageGuard {
	return BasicPageGuard{pool: pool, pageID: pageID, frame: frame}
}

func (g *BasicPageGuard) empty() bool { return g.frame == nil }

// PageID returns the guarded page's id, or InvalidPageID if empty.
func (g *BasicPageGuard) PageID() diskio.PageID {
	if g.empty() {
		return diskio.InvalidPageID
	}
	return g.pageID
}

// Data exposes the frame's raw buffer.
func (g *BasicPageGuard) Data() []byte {
	if g.empty() {
		return nil
	}
	return g.frame.data
}

// SetDirty marks the guarded page dirty, to be applied on Drop.
func (g *BasicPageGuard) SetDirty() {
	if g.empty() {
		return
	}
	g.dirty = true
}

// Move transfers ownership to a new guard value, zeroing the receiver
// so double-unpin can't happen through the old handle.
func (g *BasicPageGuard) Move() BasicPageGuard {
	moved := *g
	*g = BasicPageGuard{}
	return moved
}

// Drop unpins the page with the accumulated dirty bit. Safe to call
// more than once; only the first call has effect.
func (g *BasicPageGuard) Drop() {
	if g.empty() {
		return
	}
	g.pool.UnpinPage(g.pageID, g.dirty)
	*g = BasicPageGuard{}
}

// ReadPageGuard pins a page and holds its frame latch for shared read
// access.
type ReadPageGuard struct {
	inner BasicPageGuard
}

func newReadPageGuard(pool *Manager, pageID diskio.PageID, frame *Frame) *ReadPageGuard {
	frame.mutex.RLock()
	return &ReadPageGuard{inner: newBasicPageGuard(pool, pageID, frame)}
}

func (g *ReadPageGuard) PageID() diskio.PageID { return g.inner.PageID() }
func (g *ReadPageGuard) Data() []byte          { return g.inner.Data() }

// Drop releases the shared latch and unpins the page.
func (g *ReadPageGuard) Drop() {
	if g.inner.empty() {
		return
	}
	frame := g.inner.frame
	g.inner.Drop()
	frame.mutex.RUnlock()
}

// WritePageGuard pins a page and holds its frame latch exclusively.
// Acquiring write access implies the page will be dirtied.
type WritePageGuard struct {
	inner BasicPageGuard
}

func newWritePageGuard(pool *Manager, pageID diskio.PageID, frame *Frame) *WritePageGuard {
	frame.mutex.Lock()
	guard := &WritePageGuard{inner: newBasicPageGuard(pool, pageID, frame)}
	guard.inner.dirty = true
	return guard
}

func (g *WritePageGuard) PageID() diskio.PageID { return g.inner.PageID() }
func (g *WritePageGuard) Data() []byte          { return g.inner.Data() }

// Drop releases the exclusive latch and unpins the page.
func (g *WritePageGuard) Drop() {
	if g.inner.empty() {
		return
	}
	frame := g.inner.frame
	g.inner.Drop()
	frame.mutex.Unlock()
}

// As reinterprets the frame buffer as T via decode, for read access.
func As[T any](g *ReadPageGuard, decode func([]byte) T) T {
	return decode(g.Data())
}

// AsMut reinterprets the frame buffer as T via decode for a write
// guard. Since the buffer is already marked dirty at guard acquisition,
// this only exists to mirror As's call shape at write sites.
func AsMut[T any](g *WritePageGuard, decode func([]byte) T) T {
	return decode(g.Data())
}

// FetchPageRead pins pageID and returns it latched for shared reads.
func (m *Manager) FetchPageRead(pageID diskio.PageID) (*ReadPageGuard, bool) {
	frame, ok := m.FetchPage(pageID, AccessGet)
	if !ok {
		return nil, false
	}
	return newReadPageGuard(m, pageID, frame), true
}

// FetchPageWrite pins pageID and returns it latched exclusively.
func (m *Manager) FetchPageWrite(pageID diskio.PageID) (*WritePageGuard, bool) {
	frame, ok := m.FetchPage(pageID, AccessGet)
	if !ok {
		return nil, false
	}
	return newWritePageGuard(m, pageID, frame), true
}

// NewPageGuarded allocates a fresh page and returns it latched
// exclusively.
func (m *Manager) NewPageGuarded() (diskio.PageID, *WritePageGuard, bool) {
	pageID, frame, ok := m.NewPage()
	if !ok {
		return diskio.InvalidPageID, nil, false
	}
	return pageID, newWritePageGuard(m, pageID, frame), true
}
