package exec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
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

// rowSource feeds a fixed slice of (row, rid) pairs to an operator
// under test, standing in for a real child executor.
type rowSource struct {
	rows []Row
	rids []tableheap.RID
	idx  int
}

func (s *rowSource) Init() error { s.idx = 0; return nil }

func (s *rowSource) Next() (Row, tableheap.RID, bool, error) {
	if s.idx >= len(s.rows) {
		return nil, tableheap.RID{}, false, nil
	}
	row := s.rows[s.idx]
	var rid tableheap.RID
	if s.idx < len(s.rids) {
		rid = s.rids[s.idx]
	}
	s.idx++
	return row, rid, true, nil
}

func row(fields ...string) Row {
	out := make(Row, len(fields))
	for i, f := range fields {
		out[i] = []byte(f)
	}
	return out
}

type ExecTestSuite struct {
	suite.Suite
	mgr  *txn.Manager
	heap *tableheap.TableHeap
}

func (s *ExecTestSuite) SetupTest() {
	disk := newMemDiskManager()
	scheduler := diskio.NewScheduler(disk)
	s.T().Cleanup(scheduler.Shutdown)
	pool := buffer.NewManager(32, disk, scheduler, 2)

	heap, ok := tableheap.New(pool)
	s.Require().True(ok, "failed to create table heap")

	tables := &fakeTables{tables: map[uint32]*tableheap.TableHeap{1: heap}}
	s.heap = heap
	s.mgr = txn.NewManager(tables)
}

func (s *ExecTestSuite) TestRowEncodeDecodeRoundTrip() {
	original := row("alice", "30", "engineer")
	decoded := DecodeRow(EncodeRow(original))

	s.Require().Len(decoded, len(original))
	for i := range original {
		s.Equal(string(original[i]), string(decoded[i]))
	}
}

func (s *ExecTestSuite) TestInsertThenSeqScanSeesRow() {
	writer := s.mgr.Begin(txn.SnapshotIsolation)
	src := &rowSource{rows: []Row{row("alice", "30"), row("bob", "25")}}
	ins := NewInsert(s.heap, writer, 1, nil, src)
	s.Require().NoError(ins.Init())
	result, _, ok, err := ins.Next()
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(2, int(result[0][0]), "expected 2 rows inserted")
	_, err = s.mgr.Commit(writer)
	s.Require().NoError(err)

	reader := s.mgr.Begin(txn.SnapshotIsolation)
	scan := NewSeqScan(s.heap, s.mgr, reader, nil)
	s.Require().NoError(scan.Init())

	var got []string
	for {
		r, _, ok, err := scan.Next()
		s.Require().NoError(err)
		if !ok {
			break
		}
		got = append(got, string(r[0]))
	}
	s.Len(got, 2, "expected 2 rows visible")
}

func (s *ExecTestSuite) TestSeqScanHidesUncommittedWritesFromOtherTransactions() {
	writer := s.mgr.Begin(txn.SnapshotIsolation)
	ins := NewInsert(s.heap, writer, 1, nil, &rowSource{rows: []Row{row("carol")}})
	ins.Init()
	ins.Next()
	// writer has not committed yet.

	reader := s.mgr.Begin(txn.SnapshotIsolation)
	scan := NewSeqScan(s.heap, s.mgr, reader, nil)
	scan.Init()

	_, _, ok, err := scan.Next()
	s.Require().NoError(err)
	s.False(ok, "expected uncommitted insert to be invisible to a concurrent reader")
}

func (s *ExecTestSuite) TestDeleteMarksTombstoneAndRecordsUndoLog() {
	writer := s.mgr.Begin(txn.SnapshotIsolation)
	ins := NewInsert(s.heap, writer, 1, nil, &rowSource{rows: []Row{row("dave")}})
	ins.Init()
	ins.Next()
	s.mgr.Commit(writer)

	deleter := s.mgr.Begin(txn.SnapshotIsolation)
	scan := NewSeqScan(s.heap, s.mgr, deleter, nil)
	scan.Init()
	_, rid, ok, _ := scan.Next()
	s.Require().True(ok, "expected the committed row to be visible before deletion")

	del := NewDelete(s.heap, s.mgr, deleter, 1, nil, &rowSource{rows: []Row{row("dave")}, rids: []tableheap.RID{rid}})
	del.Init()
	result, _, ok, err := del.Next()
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(1, int(result[0][0]), "expected 1 row deleted")

	meta, ok := s.heap.GetTupleMeta(rid)
	s.Require().True(ok)
	s.True(meta.IsDeleted, "expected tuple meta to be tombstoned")

	link, ok := s.mgr.GetUndoLink(rid)
	s.Require().True(ok)
	s.True(link.IsValid(), "expected an undo log to be linked for the deleted rid")
}

func (s *ExecTestSuite) TestDeleteDetectsWriteWriteConflict() {
	setup := s.mgr.Begin(txn.SnapshotIsolation)
	ins := NewInsert(s.heap, setup, 1, nil, &rowSource{rows: []Row{row("erin")}})
	ins.Init()
	ins.Next()
	s.mgr.Commit(setup)

	stale := s.mgr.Begin(txn.SnapshotIsolation)

	writer := s.mgr.Begin(txn.SnapshotIsolation)
	scan := NewSeqScan(s.heap, s.mgr, writer, nil)
	scan.Init()
	_, rid, _, _ := scan.Next()
	del := NewDelete(s.heap, s.mgr, writer, 1, nil, &rowSource{rows: []Row{row("erin")}, rids: []tableheap.RID{rid}})
	del.Init()
	del.Next()
	s.mgr.Commit(writer)

	// stale's snapshot predates writer's commit; deleting the same rid
	// under stale should now observe a newer version than its read ts.
	del2 := NewDelete(s.heap, s.mgr, stale, 1, nil, &rowSource{rows: []Row{row("erin")}, rids: []tableheap.RID{rid}})
	del2.Init()
	_, _, _, err := del2.Next()
	s.Equal(txn.ErrWriteConflict, err)
	s.Equal(txn.StateTainted, stale.State())
}

func (s *ExecTestSuite) TestUpdateInPlaceWhenSizeUnchanged() {
	setup := s.mgr.Begin(txn.SnapshotIsolation)
	ins := NewInsert(s.heap, setup, 1, nil, &rowSource{rows: []Row{row("aaa", "1")}})
	ins.Init()
	ins.Next()
	s.mgr.Commit(setup)

	updater := s.mgr.Begin(txn.SnapshotIsolation)
	scan := NewSeqScan(s.heap, s.mgr, updater, nil)
	scan.Init()
	oldRow, rid, ok, _ := scan.Next()
	s.Require().True(ok, "expected row to be visible")

	fn := func(old Row) Row { return row("bbb", "1") } // same lengths as old
	upd := NewUpdate(s.heap, s.mgr, updater, 1, nil, &rowSource{rows: []Row{oldRow}, rids: []tableheap.RID{rid}}, fn)
	upd.Init()
	result, _, ok, err := upd.Next()
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(1, int(result[0][0]), "expected 1 row updated")

	_, tuple, ok := s.heap.GetTuple(rid)
	s.Require().True(ok, "expected tuple to still exist at the original rid")
	newRow := DecodeRow(tuple)
	s.Equal("bbb", string(newRow[0]))
}

func TestExec(t *testing.T) {
	suite.Run(t, new(ExecTestSuite))
}
