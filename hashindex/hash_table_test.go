package hashindex

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
)

// memDiskManager is a minimal in-memory diskio.DiskManager, avoiding a
// dependency on Direct I/O or a real file for these tests.
type memDiskManager struct {
	mutex sync.Mutex
	pages map[diskio.PageID][]byte
	next  diskio.PageID
}

func newMemDiskManager() *memDiskManager {
	return &memDiskManager{pages: make(map[diskio.PageID][]byte)}
}

func (d *memDiskManager) ReadPage(id diskio.PageID) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	data, ok := d.pages[id]
	if !ok {
		data = make([]byte, diskio.PageSize)
	}
	out := make([]byte, diskio.PageSize)
	copy(out, data)
	return out, nil
}

func (d *memDiskManager) WritePage(id diskio.PageID, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	stored := make([]byte, diskio.PageSize)
	copy(stored, data)
	d.pages[id] = stored
	return nil
}

func (d *memDiskManager) AllocatePage() diskio.PageID {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	id := d.next
	d.next++
	return id
}

func (d *memDiskManager) DeallocatePage(diskio.PageID) {}
func (d *memDiskManager) Close() error                 { return nil }

func intHash(k int) uint32 {
	return uint32(k) * 2654435761
}

func encodeInt(k int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(int64(k)))
	return b
}

func decodeInt(b []byte) int {
	return int(int64(binary.LittleEndian.Uint64(b)))
}

type HashTableTestSuite struct {
	suite.Suite
	table *Table[int, int]
}

func (s *HashTableTestSuite) SetupTest() {
	disk := newMemDiskManager()
	scheduler := diskio.NewScheduler(disk)
	s.T().Cleanup(scheduler.Shutdown)
	pool := buffer.NewManager(64, disk, scheduler, 2)

	table, ok := New(pool, Config[int, int]{
		Hash:              intHash,
		Equal:             func(a, b int) bool { return a == b },
		EncKey:            encodeInt,
		DecKey:            decodeInt,
		EncVal:            encodeInt,
		DecVal:            decodeInt,
		KeySize:           8,
		ValSize:           8,
		HeaderMaxDepth:    9,
		DirectoryMaxDepth: 9,
		BucketMaxSize:     4,
	})
	s.Require().True(ok, "failed to create hash table")
	s.table = table
}

func (s *HashTableTestSuite) TestInsertLookupRemove() {
	for i := 0; i < 64; i++ {
		s.Require().True(s.table.Insert(i, i*10), "insert %d failed", i)
	}

	for i := 0; i < 64; i++ {
		v, ok := s.table.Lookup(i)
		s.Require().True(ok)
		s.Equal(i*10, v)
	}

	for i := 0; i < 64; i += 2 {
		s.Require().True(s.table.Remove(i), "remove %d failed", i)
	}

	for i := 0; i < 64; i++ {
		v, ok := s.table.Lookup(i)
		if i%2 == 0 {
			s.False(ok, "expected %d to be removed, found value %d", i, v)
		} else {
			s.Require().True(ok, "lookup %d after removals", i)
			s.Equal(i*10, v)
		}
	}
}

func (s *HashTableTestSuite) TestInsertDuplicateKeyFails() {
	s.Require().True(s.table.Insert(1, 100), "first insert should succeed")
	s.False(s.table.Insert(1, 200), "duplicate insert should fail")
	v, ok := s.table.Lookup(1)
	s.Require().True(ok)
	s.Equal(100, v, "expected original value to survive duplicate insert attempt")
}

func (s *HashTableTestSuite) TestRemoveMissingKeyFails() {
	s.False(s.table.Remove(42), "expected remove of missing key to fail")
}

func TestHashTable(t *testing.T) {
	suite.Run(t, new(HashTableTestSuite))
}
