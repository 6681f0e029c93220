package diskio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ncw/directio"
)

// DiskManager reads and writes fixed-size pages and hands out fresh page
// ids from a free list persisted in FreelistPageID. It never interprets
// page contents.
type DiskManager interface {
	ReadPage(id PageID) ([]byte, error)
	WritePage(id PageID, data []byte) error
	AllocatePage() PageID
	DeallocatePage(id PageID)
	Close() error
}

// DirectIODiskManager opens its backing file with O_DIRECT so that the
// buffer pool's LRU-K replacer is the only page cache in the read path;
// the kernel page cache never gets a second copy of the same bytes.
type DirectIODiskManager struct {
	file *os.File

	mutex                 sync.Mutex
	maxAllocatedPageID    PageID
	deallocatedPageIDList []PageID
}

// NewDirectIODiskManager opens (or creates) filePath and restores the
// allocator's free list from FreelistPageID, mirroring
// buffer_pool_manager/direct_io_disk_manager.go's constructor.
func NewDirectIODiskManager(filePath string) (*DirectIODiskManager, error) {
	newFile := false
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		newFile = true
	}

	file, err := directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, filePath, err)
	}

	disk := &DirectIODiskManager{file: file}

	if newFile {
		slog.Info("initializing new data file", "path", filePath, "function", "NewDirectIODiskManager", "at", "DirectIODiskManager")
		if err := disk.write(int64(FreelistPageID)*PageSize, disk.encodeFreelistPage()); err != nil {
			return nil, err
		}
		return disk, nil
	}

	slog.Info("restoring free list from existing data file", "path", filePath, "function", "NewDirectIODiskManager", "at", "DirectIODiskManager")
	data, err := disk.read(int64(FreelistPageID) * PageSize)
	if err != nil {
		return nil, err
	}
	disk.decodeFreelistPage(data)
	return disk, nil
}

func (disk *DirectIODiskManager) write(offset int64, data []byte) error {
	n, err := disk.file.WriteAt(data, offset)
	if err != nil {
		slog.Error("write failed", "offset", offset, "error", err.Error(), "function", "write", "at", "DirectIODiskManager")
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: incomplete write at offset %d", ErrIO, offset)
	}
	return nil
}

func (disk *DirectIODiskManager) read(offset int64) ([]byte, error) {
	buffer := AllocateAlignedPageBuffer()
	n, err := disk.file.ReadAt(buffer, offset)
	if err != nil {
		slog.Error("read failed", "offset", offset, "error", err.Error(), "function", "read", "at", "DirectIODiskManager")
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if n != PageSize {
		return nil, fmt.Errorf("%w: incomplete read at offset %d", ErrIO, offset)
	}
	return buffer, nil
}

// ReadPage reads the page at id. The returned slice is exactly PageSize
// bytes and safe for the caller to retain.
func (disk *DirectIODiskManager) ReadPage(id PageID) ([]byte, error) {
	return disk.read(int64(id) * PageSize)
}

// WritePage writes data (which must be PageSize bytes) to id.
func (disk *DirectIODiskManager) WritePage(id PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("%w: write buffer is %d bytes, want %d", ErrIO, len(data), PageSize)
	}
	return disk.write(int64(id)*PageSize, data)
}

// AllocatePage hands back a deallocated page id if one is free, otherwise
// mints the next sequential id.
func (disk *DirectIODiskManager) AllocatePage() PageID {
	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	if len(disk.deallocatedPageIDList) > 0 {
		id := disk.deallocatedPageIDList[0]
		disk.deallocatedPageIDList = disk.deallocatedPageIDList[1:]
		return id
	}
	disk.maxAllocatedPageID++
	return disk.maxAllocatedPageID
}

// DeallocatePage marks id free for reuse by a future AllocatePage.
func (disk *DirectIODiskManager) DeallocatePage(id PageID) {
	disk.mutex.Lock()
	disk.deallocatedPageIDList = append(disk.deallocatedPageIDList, id)
	disk.mutex.Unlock()
}

// Close persists the free list to FreelistPageID and closes the file.
func (disk *DirectIODiskManager) Close() error {
	disk.mutex.Lock()
	data := disk.encodeFreelistPage()
	disk.mutex.Unlock()

	if err := disk.write(int64(FreelistPageID)*PageSize, data); err != nil {
		return err
	}
	if err := disk.file.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// encodeFreelistPage lays out { maxAllocatedPageID uint64, count uint64,
// ids [count]uint64 } starting at offset 0 of a PageSize buffer.
func (disk *DirectIODiskManager) encodeFreelistPage() []byte {
	data := AllocateAlignedPageBuffer()

	offset := 0
	binary.LittleEndian.PutUint64(data[offset:], uint64(disk.maxAllocatedPageID))
	offset += 8

	binary.LittleEndian.PutUint64(data[offset:], uint64(len(disk.deallocatedPageIDList)))
	offset += 8

	for _, id := range disk.deallocatedPageIDList {
		binary.LittleEndian.PutUint64(data[offset:], uint64(id))
		offset += 8
	}
	return data
}

func (disk *DirectIODiskManager) decodeFreelistPage(data []byte) {
	offset := 0
	disk.maxAllocatedPageID = PageID(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	count := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	ids := make([]PageID, 0, count)
	for i := uint64(0); i < count; i++ {
		ids = append(ids, PageID(binary.LittleEndian.Uint64(data[offset:])))
		offset += 8
	}
	disk.deallocatedPageIDList = ids
}
