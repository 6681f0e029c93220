// Package catalog tracks the tables and secondary indexes a storage
// engine instance owns, resolving names to the table heaps and hash
// indexes exec's operators run against.
package catalog

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/exec"
	"github.com/kestrel-db/kestrel/hashindex"
	"github.com/kestrel-db/kestrel/tableheap"
)

// indexKeySize bounds a secondary index's projected key: keys longer
// than this truncate, which is a real limitation (collisions become
// possible past this length) accepted here since secondary indexes are
// a supplemental feature layered on top of the core storage design.
const indexKeySize = 32

type fixedKey [indexKeySize]byte

func fnv32(k fixedKey) uint32 {
	h := fnv.New32a()
	h.Write(k[:])
	return h.Sum32()
}

func encodeRID(rid tableheap.RID) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rid.PageID))
	binary.LittleEndian.PutUint32(buf[8:12], rid.Slot)
	return buf
}

func decodeRID(data []byte) tableheap.RID {
	return tableheap.RID{
		PageID: diskio.PageID(binary.LittleEndian.Uint64(data[0:8])),
		Slot:   binary.LittleEndian.Uint32(data[8:12]),
	}
}

// TableInfo describes a registered table.
type TableInfo struct {
	OID     uint32
	Name    string
	Table   *tableheap.TableHeap
	Columns int
}

// IndexInfo describes a registered secondary index over a subset of a
// table's columns, backed by an extendible hash table keyed on the
// row's projected columns encoded as a single string.
type IndexInfo struct {
	Name       string
	TableName  string
	tableOid   uint32
	keyColumns []int
	index      *hashindex.Table[fixedKey, tableheap.RID]
}

func (info *IndexInfo) KeyColumns() []int { return info.keyColumns }

func (info *IndexInfo) Insert(key exec.Row, rid tableheap.RID) bool {
	return info.index.Insert(encodeIndexKey(key), rid)
}

func (info *IndexInfo) Delete(key exec.Row, rid tableheap.RID) bool {
	return info.index.Remove(encodeIndexKey(key))
}

// Lookup returns the rid stored for key, if any.
func (info *IndexInfo) Lookup(key exec.Row) (tableheap.RID, bool) {
	return info.index.Lookup(encodeIndexKey(key))
}

func encodeIndexKey(key exec.Row) fixedKey {
	var k fixedKey
	encoded := exec.EncodeRow(key)
	copy(k[:], encoded)
	return k
}

// Catalog is a process-local registry of tables and indexes. It
// satisfies txn.TableLookup so a transaction manager can resolve write
// sets at commit time without importing this package.
type Catalog struct {
	pool *buffer.Manager

	mutex      sync.RWMutex
	nextOID    uint32
	tables     map[uint32]*TableInfo
	tablesByNm map[string]*TableInfo
	indexes    map[string][]*IndexInfo // table name -> its indexes
}

func New(pool *buffer.Manager) *Catalog {
	return &Catalog{
		pool:       pool,
		nextOID:    1,
		tables:     make(map[uint32]*TableInfo),
		tablesByNm: make(map[string]*TableInfo),
		indexes:    make(map[string][]*IndexInfo),
	}
}

// CreateTable allocates a fresh table heap and registers it under name
// with the given column count (used only to size index key vectors).
func (c *Catalog) CreateTable(name string, columns int) (*TableInfo, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.tablesByNm[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}

	heap, ok := tableheap.New(c.pool)
	if !ok {
		return nil, fmt.Errorf("catalog: failed to allocate table heap for %q", name)
	}

	info := &TableInfo{OID: c.nextOID, Name: name, Table: heap, Columns: columns}
	c.nextOID++
	c.tables[info.OID] = info
	c.tablesByNm[name] = info
	return info, nil
}

// CreateIndex builds a new hash index over tableName's keyColumns.
func (c *Catalog) CreateIndex(indexName, tableName string, keyColumns []int) (*IndexInfo, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	table, ok := c.tablesByNm[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown table %q", tableName)
	}

	cfg := hashindex.Config[fixedKey, tableheap.RID]{
		Hash:              fnv32,
		Equal:             func(a, b fixedKey) bool { return a == b },
		EncKey:            func(k fixedKey) []byte { return k[:] },
		DecKey:            func(b []byte) (k fixedKey) { copy(k[:], b); return k },
		EncVal:            encodeRID,
		DecVal:            decodeRID,
		KeySize:           indexKeySize,
		ValSize:           12,
		HeaderMaxDepth:    9,
		DirectoryMaxDepth: 9,
		BucketMaxSize:     32,
	}
	hashTable, ok := hashindex.New(c.pool, cfg)
	if !ok {
		return nil, fmt.Errorf("catalog: failed to allocate index %q", indexName)
	}

	info := &IndexInfo{Name: indexName, TableName: tableName, tableOid: table.OID, keyColumns: keyColumns, index: hashTable}
	c.indexes[tableName] = append(c.indexes[tableName], info)
	return info, nil
}

// GetTable satisfies txn.TableLookup.
func (c *Catalog) GetTable(oid uint32) *tableheap.TableHeap {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	info, ok := c.tables[oid]
	if !ok {
		return nil
	}
	return info.Table
}

// TableByOID resolves a table's full registration by its oid.
func (c *Catalog) TableByOID(oid uint32) (*TableInfo, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	info, ok := c.tables[oid]
	return info, ok
}

// GetTableByName resolves a table by its registered name.
func (c *Catalog) GetTableByName(name string) (*TableInfo, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	info, ok := c.tablesByNm[name]
	return info, ok
}

// GetTableIndexes returns exec.IndexHandle wrappers for every index
// registered against tableName.
func (c *Catalog) GetTableIndexes(tableName string) []exec.IndexHandle {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	indexes := c.indexes[tableName]
	out := make([]exec.IndexHandle, len(indexes))
	for i, idx := range indexes {
		out[i] = idx
	}
	return out
}
