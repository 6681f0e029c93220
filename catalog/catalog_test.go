package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/exec"
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

type CatalogTestSuite struct {
	suite.Suite
	cat *Catalog
}

func (s *CatalogTestSuite) SetupTest() {
	disk := newMemDiskManager()
	scheduler := diskio.NewScheduler(disk)
	s.T().Cleanup(scheduler.Shutdown)
	pool := buffer.NewManager(64, disk, scheduler, 2)
	s.cat = New(pool)
}

func (s *CatalogTestSuite) TestCreateTableRegistersByOIDAndName() {
	info, err := s.cat.CreateTable("users", 3)
	s.Require().NoError(err)
	s.Equal(uint32(1), info.OID, "expected first table to get oid 1")

	s.Equal(info.Table, s.cat.GetTable(info.OID), "GetTable did not return the registered heap")
	byName, ok := s.cat.GetTableByName("users")
	s.Require().True(ok)
	s.Equal(info.OID, byName.OID)
}

func (s *CatalogTestSuite) TestCreateTableRejectsDuplicateName() {
	_, err := s.cat.CreateTable("users", 2)
	s.Require().NoError(err)
	_, err = s.cat.CreateTable("users", 2)
	s.Error(err, "expected duplicate table name to be rejected")
}

func (s *CatalogTestSuite) TestIndexInsertLookupDelete() {
	_, err := s.cat.CreateTable("users", 2)
	s.Require().NoError(err)
	idx, err := s.cat.CreateIndex("users_by_name", "users", []int{0})
	s.Require().NoError(err)

	rid := tableheap.RID{PageID: 3, Slot: 7}
	key := exec.Row{[]byte("alice")}

	s.True(idx.Insert(key, rid), "expected insert to succeed")
	got, ok := idx.Lookup(key)
	s.Require().True(ok)
	s.Equal(rid, got)

	s.True(idx.Delete(key, rid), "expected delete to succeed")
	_, ok = idx.Lookup(key)
	s.False(ok, "expected lookup to fail after delete")
}

func (s *CatalogTestSuite) TestGetTableIndexesReturnsRegisteredIndexes() {
	s.cat.CreateTable("users", 2)
	s.cat.CreateIndex("users_by_name", "users", []int{0})

	handles := s.cat.GetTableIndexes("users")
	s.Require().Len(handles, 1)
	s.Equal([]int{0}, handles[0].KeyColumns())
}

func TestCatalog(t *testing.T) {
	suite.Run(t, new(CatalogTestSuite))
}
