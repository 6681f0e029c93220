package tableheap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
)

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

type TableHeapTestSuite struct {
	suite.Suite
	heap *TableHeap
}

func (s *TableHeapTestSuite) newHeap(poolSize int) {
	disk := newMemDiskManager()
	scheduler := diskio.NewScheduler(disk)
	s.T().Cleanup(scheduler.Shutdown)
	pool := buffer.NewManager(poolSize, disk, scheduler, 2)

	heap, ok := New(pool)
	s.Require().True(ok, "failed to create table heap")
	s.heap = heap
}

func (s *TableHeapTestSuite) SetupTest() {
	s.newHeap(8)
}

func (s *TableHeapTestSuite) TestInsertAndGetTuple() {
	rid, ok := s.heap.InsertTuple(TupleMeta{Ts: 1}, Tuple("hello"))
	s.Require().True(ok, "insert failed")

	meta, tuple, ok := s.heap.GetTuple(rid)
	s.Require().True(ok, "get failed")
	s.Equal(uint64(1), meta.Ts)
	s.Equal("hello", string(tuple))
}

func (s *TableHeapTestSuite) TestInsertSpansMultiplePages() {
	big := make([]byte, 3000)
	for i := range big {
		big[i] = byte(i)
	}

	var rids []RID
	for i := 0; i < 5; i++ {
		rid, ok := s.heap.InsertTuple(TupleMeta{Ts: uint64(i)}, Tuple(big))
		s.Require().True(ok, "insert %d failed", i)
		rids = append(rids, rid)
	}

	s.NotEqual(s.heap.FirstPageID(), s.heap.LastPageID(), "expected large tuples to span multiple pages")

	for i, rid := range rids {
		meta, tuple, ok := s.heap.GetTuple(rid)
		s.Require().True(ok, "tuple %d missing", i)
		s.Equal(uint64(i), meta.Ts)
		s.Len(tuple, len(big))
	}
}

func (s *TableHeapTestSuite) TestUpdateTupleMeta() {
	rid, _ := s.heap.InsertTuple(TupleMeta{Ts: 1}, Tuple("x"))
	s.True(s.heap.UpdateTupleMeta(TupleMeta{Ts: 2, IsDeleted: true}, rid), "update meta failed")

	meta, ok := s.heap.GetTupleMeta(rid)
	s.Require().True(ok)
	s.Equal(uint64(2), meta.Ts)
	s.True(meta.IsDeleted)
}

func (s *TableHeapTestSuite) TestUpdateTupleInPlaceRespectsCheck() {
	rid, _ := s.heap.InsertTuple(TupleMeta{Ts: 1}, Tuple("aaaa"))

	ok := s.heap.UpdateTupleInPlace(TupleMeta{Ts: 2}, Tuple("bbbb"), rid, func(TupleMeta, Tuple, RID) bool {
		return false
	})
	s.False(ok, "expected update to be rejected by check")

	ok = s.heap.UpdateTupleInPlace(TupleMeta{Ts: 2}, Tuple("bbbb"), rid, func(m TupleMeta, tup Tuple, r RID) bool {
		return m.Ts == 1 && string(tup) == "aaaa"
	})
	s.True(ok, "expected update to succeed")

	meta, tuple, _ := s.heap.GetTuple(rid)
	s.Equal(uint64(2), meta.Ts)
	s.Equal("bbbb", string(tuple))
}

func (s *TableHeapTestSuite) TestIteratorSnapshotsExtent() {
	for i := 0; i < 3; i++ {
		s.heap.InsertTuple(TupleMeta{Ts: uint64(i)}, Tuple("x"))
	}

	it := s.heap.MakeIterator()

	// insert after snapshot; should not be visible to this iterator.
	s.heap.InsertTuple(TupleMeta{Ts: 99}, Tuple("late"))

	count := 0
	for it.Valid() {
		_, tuple, ok := s.heap.GetTuple(it.Current())
		s.Require().True(ok, "expected valid tuple at %v", it.Current())
		s.NotEqual("late", string(tuple), "iterator should not see tuples inserted after snapshot")
		count++
		it.Next()
	}
	s.Equal(3, count)
}

func TestTableHeap(t *testing.T) {
	suite.Run(t, new(TableHeapTestSuite))
}
