package buffer

import (
	"sync"

	"github.com/kestrel-db/kestrel/diskio"
)

// Frame is a slot in the buffer pool holding at most one page. It owns the
// page's backing buffer and the reader-writer latch page guards acquire.
type Frame struct {
	mutex sync.RWMutex

	pageID   diskio.PageID
	data     []byte
	pinCount int
	dirty    bool
}

func newFrame() *Frame {
	return &Frame{
		pageID: diskio.InvalidPageID,
		data:   diskio.AllocateAlignedPageBuffer(),
	}
}

func (f *Frame) reset(pageID diskio.PageID) {
	f.pageID = pageID
	f.pinCount = 0
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
}
