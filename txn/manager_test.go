package txn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/tableheap"
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

type fakeTables struct {
	tables map[uint32]*tableheap.TableHeap
}

func (f *fakeTables) GetTable(oid uint32) *tableheap.TableHeap { return f.tables[oid] }

type ManagerTestSuite struct {
	suite.Suite
	mgr  *Manager
	heap *tableheap.TableHeap
}

func (s *ManagerTestSuite) SetupTest() {
	disk := newMemDiskManager()
	scheduler := diskio.NewScheduler(disk)
	s.T().Cleanup(scheduler.Shutdown)
	pool := buffer.NewManager(16, disk, scheduler, 2)

	heap, ok := tableheap.New(pool)
	s.Require().True(ok, "failed to create table heap")

	tables := &fakeTables{tables: map[uint32]*tableheap.TableHeap{1: heap}}
	s.heap = heap
	s.mgr = NewManager(tables)
}

func (s *ManagerTestSuite) TestBeginAssignsReadTsFromWatermark() {
	txnA := s.mgr.Begin(SnapshotIsolation)
	s.Equal(uint64(0), txnA.ReadTs(), "expected first txn to read at ts 0")

	ok, err := s.mgr.Commit(txnA)
	s.Require().NoError(err)
	s.True(ok)

	txnB := s.mgr.Begin(SnapshotIsolation)
	s.Equal(uint64(1), txnB.ReadTs(), "expected second txn to read at the first commit ts")
}

func (s *ManagerTestSuite) TestCommitRewritesWriteSetTimestamps() {
	transaction := s.mgr.Begin(SnapshotIsolation)
	rid, ok := s.heap.InsertTuple(tableheap.TupleMeta{Ts: transaction.TempTs()}, tableheap.Tuple("row"))
	s.Require().True(ok, "insert failed")
	transaction.AppendWriteSet(1, rid)

	ok, err := s.mgr.Commit(transaction)
	s.Require().NoError(err)
	s.True(ok)

	meta, ok := s.heap.GetTupleMeta(rid)
	s.Require().True(ok)
	s.Equal(transaction.CommitTs(), meta.Ts, "expected tuple ts to be rewritten to commit ts")
}

func (s *ManagerTestSuite) TestAbortDropsReadTsFromWatermark() {
	transaction := s.mgr.Begin(SnapshotIsolation)
	s.mgr.Abort(transaction)

	s.Equal(StateAborted, transaction.State())
	s.Equal(s.mgr.watermark.LatestCommitTs(), s.mgr.Watermark(), "expected watermark to fall back to latest commit ts once txn is removed")
}

func (s *ManagerTestSuite) TestWriteWriteConflictTaintsTransaction() {
	transaction := s.mgr.Begin(SnapshotIsolation)
	newerMeta := tableheap.TupleMeta{Ts: transaction.ReadTs() + 100}

	err := s.mgr.CheckWriteConflict(transaction, newerMeta)
	s.Equal(ErrWriteConflict, err)
	s.Equal(StateTainted, transaction.State())
}

func (s *ManagerTestSuite) TestVersionLinkCompareAndSet() {
	rid := tableheap.RID{PageID: 5, Slot: 0}
	link := VersionLink{Prev: UndoLink{PrevTxnID: 42, PrevLogIdx: 0}}

	s.True(s.mgr.UpdateVersionLink(rid, &link, func(cur *VersionLink) bool { return cur == nil }), "expected first update to succeed")

	got, ok := s.mgr.GetVersionLink(rid)
	s.Require().True(ok)
	s.Equal(link, got)

	// a check that rejects the current value should fail the update.
	s.False(s.mgr.UpdateVersionLink(rid, nil, func(cur *VersionLink) bool { return cur == nil }), "expected update to fail: current link is non-nil")
}

func (s *ManagerTestSuite) TestGarbageCollectDropsUnreachableTransactions() {
	transaction := s.mgr.Begin(SnapshotIsolation)
	transaction.AppendUndoLog(UndoLog{Ts: 1})
	s.mgr.Commit(transaction)

	// no version link references the undo log at all, so it's unreachable
	// and the owning (committed) transaction should be collected.
	s.mgr.GarbageCollect()

	_, ok := s.mgr.GetTransaction(transaction.ID())
	s.False(ok, "expected committed transaction with no reachable undo logs to be collected")
}

func TestManager(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
