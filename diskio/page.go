// Package diskio implements the disk-facing half of the storage engine: a
// page-oriented disk manager backed by Direct I/O, and a scheduler that
// serializes reads and writes issued against it.
package diskio

// PageID identifies a page on disk. Page ids are assigned by the disk
// manager's allocator and never reused while a page is live.
type PageID int64

// InvalidPageID marks the absence of a page reference.
const InvalidPageID PageID = -1

// PageSize is the fixed size, in bytes, of every page.
const PageSize = 4096

// FreelistPageID is the reserved page that stores the disk manager's
// allocator state (max allocated id + deallocated id list).
const FreelistPageID PageID = 0
