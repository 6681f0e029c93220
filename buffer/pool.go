// Package buffer implements the page cache: a fixed-size array of frames,
// an LRU-K eviction policy, and RAII-style page guards layered on top.
package buffer

import (
	"log/slog"
	"sync"

	"github.com/kestrel-db/kestrel/diskio"
)

// Manager owns a pool of N frames, a page_id -> frame_id map, and a free
// list. Every public method takes the pool-wide mutex; per-page
// concurrency is the job of the frame's own RW latch, acquired by page
// guards.
type Manager struct {
	mutex sync.Mutex

	disk      diskio.DiskManager
	scheduler *diskio.Scheduler
	replacer  *LRUKReplacer

	frames    []*Frame
	pageTable map[diskio.PageID]FrameID
	freeList  []FrameID
}

// NewManager builds a pool of poolSize frames backed by disk and
// scheduled through scheduler, using an LRU-K replacer with history
// depth k.
func NewManager(poolSize int, disk diskio.DiskManager, scheduler *diskio.Scheduler, k int) *Manager {
	frames := make([]*Frame, poolSize)
	freeList := make([]FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame()
		freeList[i] = FrameID(i)
	}

	return &Manager{
		disk:      disk,
		scheduler: scheduler,
		replacer:  NewLRUKReplacer(k),
		frames:    frames,
		pageTable: make(map[diskio.PageID]FrameID),
		freeList:  freeList,
	}
}

// grabFrame obtains a free frame, evicting and (if dirty) flushing a
// victim if the free list is empty. Called with mutex held.
func (m *Manager) grabFrame() (FrameID, bool) {
	if len(m.freeList) > 0 {
		frameID := m.freeList[len(m.freeList)-1]
		m.freeList = m.freeList[:len(m.freeList)-1]
		return frameID, true
	}

	frameID, ok := m.replacer.Evict()
	if !ok {
		return 0, false
	}

	victim := m.frames[frameID]
	if victim.dirty {
		done := make(chan bool, 1)
		m.scheduler.Schedule(&diskio.Request{IsWrite: true, PageID: victim.pageID, Data: victim.data, Done: done})
		if ok := <-done; !ok {
			slog.Error("failed to flush eviction victim", "pageId", victim.pageID, "function", "grabFrame", "at", "Manager")
		}
	}
	delete(m.pageTable, victim.pageID)
	return frameID, true
}

// NewPage allocates a fresh page id, pins it into a frame, and returns
// the frame. The frame starts pinned with pin_count 1 and marked
// non-evictable; the caller must eventually UnpinPage it.
func (m *Manager) NewPage() (diskio.PageID, *Frame, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	frameID, ok := m.grabFrame()
	if !ok {
		return diskio.InvalidPageID, nil, false
	}

	pageID := m.disk.AllocatePage()
	frame := m.frames[frameID]
	frame.reset(pageID)
	frame.pinCount = 1

	m.pageTable[pageID] = frameID
	m.replacer.RecordAccess(frameID, AccessGet)
	m.replacer.SetEvictable(frameID, false)

	return pageID, frame, true
}

// FetchPage pins and returns the frame holding pageID, reading it from
// disk through the scheduler if it isn't resident.
func (m *Manager) FetchPage(pageID diskio.PageID, kind AccessKind) (*Frame, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if frameID, ok := m.pageTable[pageID]; ok {
		frame := m.frames[frameID]
		frame.pinCount++
		m.replacer.RecordAccess(frameID, kind)
		m.replacer.SetEvictable(frameID, false)
		return frame, true
	}

	frameID, ok := m.grabFrame()
	if !ok {
		return nil, false
	}

	frame := m.frames[frameID]
	frame.reset(pageID)

	done := make(chan bool, 1)
	m.scheduler.Schedule(&diskio.Request{IsWrite: false, PageID: pageID, Data: frame.data, Done: done})
	if ok := <-done; !ok {
		m.freeList = append(m.freeList, frameID)
		return nil, false
	}

	frame.pinCount = 1
	m.pageTable[pageID] = frameID
	m.replacer.RecordAccess(frameID, kind)
	m.replacer.SetEvictable(frameID, false)

	return frame, true
}

// UnpinPage decrements pageID's pin count, marking the frame evictable
// once it reaches zero. isDirty is OR'd into the frame's dirty bit.
func (m *Manager) UnpinPage(pageID diskio.PageID, isDirty bool) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return false
	}

	frame := m.frames[frameID]
	if isDirty {
		frame.dirty = true
	}
	if frame.pinCount == 0 {
		return false
	}
	frame.pinCount--
	if frame.pinCount == 0 {
		m.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage schedules pageID's frame to be written to disk and clears
// its dirty bit on success.
func (m *Manager) FlushPage(pageID diskio.PageID) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.flushLocked(pageID)
}

func (m *Manager) flushLocked(pageID diskio.PageID) bool {
	frameID, ok := m.pageTable[pageID]
	if !ok {
		return false
	}

	frame := m.frames[frameID]
	done := make(chan bool, 1)
	m.scheduler.Schedule(&diskio.Request{IsWrite: true, PageID: pageID, Data: frame.data, Done: done})
	if ok := <-done; !ok {
		return false
	}
	frame.dirty = false
	return true
}

// FlushAll flushes every resident page.
func (m *Manager) FlushAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for pageID := range m.pageTable {
		m.flushLocked(pageID)
	}
}

// DeletePage removes pageID from the pool and deallocates its id.
// Permitted only when the page is unpinned.
func (m *Manager) DeletePage(pageID diskio.PageID) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		m.disk.DeallocatePage(pageID)
		return true
	}

	frame := m.frames[frameID]
	if frame.pinCount > 0 {
		return false
	}

	delete(m.pageTable, pageID)
	m.replacer.Remove(frameID)
	frame.reset(diskio.InvalidPageID)
	m.freeList = append(m.freeList, frameID)
	m.disk.DeallocatePage(pageID)
	return true
}
