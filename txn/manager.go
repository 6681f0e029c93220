package txn

import (
	"errors"
	"sync"

	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/tableheap"
)

// ErrWriteConflict is returned when a writer observes a version newer
// than its own snapshot.
var ErrWriteConflict = errors.New("txn: write-write conflict")

// TableLookup resolves a table oid to its heap, used by Commit to
// rewrite committed tuples' timestamps. catalog.Catalog satisfies this
// without either package importing the other.
type TableLookup interface {
	GetTable(oid uint32) *tableheap.TableHeap
}

// VersionLink is the head of a rid's undo chain.
type VersionLink struct {
	Prev UndoLink
}

type pageVersionInfo struct {
	mutex sync.Mutex
	links map[uint32]VersionLink
}

// Manager owns transaction lifecycle and the per-rid version chain
// index. Two coarse locks guard it: txnMapMutex for the transaction
// table, commitMutex held across the entire commit critical section so
// commit order equals timestamp order.
type Manager struct {
	txnMapMutex sync.RWMutex
	txnMap      map[TxnID]*Transaction
	nextTxnID   TxnID

	commitMutex  sync.Mutex
	lastCommitTs uint64

	watermark *Watermark

	versionInfoMutex sync.RWMutex
	versionInfo      map[diskio.PageID]*pageVersionInfo

	tables TableLookup
}

// NewManager constructs a transaction manager. tables is consulted at
// commit time to rewrite each write set entry's tuple timestamp.
func NewManager(tables TableLookup) *Manager {
	return &Manager{
		txnMap:      make(map[TxnID]*Transaction),
		nextTxnID:   TxnStartID,
		watermark:   NewWatermark(0),
		versionInfo: make(map[diskio.PageID]*pageVersionInfo),
		tables:      tables,
	}
}

// Begin starts a new transaction reading at the latest commit timestamp
// and registers that read timestamp as live.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	m.txnMapMutex.Lock()
	defer m.txnMapMutex.Unlock()

	id := m.nextTxnID
	m.nextTxnID++

	txn := newTransaction(id, isolation)
	txn.readTs = m.watermark.LatestCommitTs()
	m.watermark.Add(txn.readTs)

	m.txnMap[id] = txn
	return txn
}

// Verify runs serialization-graph / predicate rechecking for
// SERIALIZABLE transactions. This is a stub: it always succeeds,
// matching original_source's VerifyTxn (documented as
// implementation-defined and always returning true there too).
func (m *Manager) Verify(txn *Transaction) bool {
	return true
}

// Commit attempts to commit txn. Returns false (and aborts txn) if
// SERIALIZABLE verification fails.
func (m *Manager) Commit(txn *Transaction) (bool, error) {
	m.commitMutex.Lock()
	defer m.commitMutex.Unlock()

	if txn.State() != StateRunning {
		return false, errors.New("txn: commit called on transaction not in RUNNING state")
	}

	if txn.IsolationLevel() == Serializable && !m.Verify(txn) {
		txn.mutex.Lock()
		txn.state = StateAborted
		txn.mutex.Unlock()
		m.watermark.Remove(txn.readTs)
		return false, nil
	}

	m.lastCommitTs++
	commitTs := m.lastCommitTs

	for tableOid, rids := range txn.WriteSet() {
		table := m.tables.GetTable(tableOid)
		if table == nil {
			continue
		}
		for _, rid := range rids {
			meta, ok := table.GetTupleMeta(rid)
			if !ok {
				continue
			}
			meta.Ts = commitTs
			table.UpdateTupleMeta(meta, rid)
		}
	}

	txn.mutex.Lock()
	txn.commitTs = commitTs
	txn.state = StateCommitted
	txn.mutex.Unlock()

	m.watermark.UpdateCommitTs(commitTs)
	m.watermark.Remove(txn.readTs)

	return true, nil
}

// Abort transitions txn to ABORTED. Undo-application is not required:
// operators detect an aborted writer's leftover base tuple through the
// version chain instead.
func (m *Manager) Abort(txn *Transaction) {
	txn.mutex.Lock()
	if txn.state != StateRunning && txn.state != StateTainted {
		txn.mutex.Unlock()
		panic("txn: Abort called on transaction not in RUNNING/TAINTED state")
	}
	txn.state = StateAborted
	txn.mutex.Unlock()

	m.watermark.Remove(txn.readTs)
}

// CheckWriteConflict implements write-write conflict
// rule: if the current version is newer than the writer's snapshot and
// wasn't written by the writer itself, the writer is marked TAINTED and
// ErrWriteConflict is returned; the transaction is not aborted here.
func (m *Manager) CheckWriteConflict(txn *Transaction, meta tableheap.TupleMeta) error {
	if meta.Ts > txn.ReadTs() && meta.Ts != txn.TempTs() {
		txn.SetTainted()
		return ErrWriteConflict
	}
	return nil
}

func (m *Manager) pageVersions(pageID diskio.PageID, create bool) *pageVersionInfo {
	m.versionInfoMutex.RLock()
	info, ok := m.versionInfo[pageID]
	m.versionInfoMutex.RUnlock()
	if ok || !create {
		return info
	}

	m.versionInfoMutex.Lock()
	defer m.versionInfoMutex.Unlock()
	if info, ok := m.versionInfo[pageID]; ok {
		return info
	}
	info = &pageVersionInfo{links: make(map[uint32]VersionLink)}
	m.versionInfo[pageID] = info
	return info
}

// UpdateVersionLink compare-and-sets rid's version link under its
// page's mutex. If check is non-nil it is run against the current
// value (nil if absent) first; a false result aborts the update.
func (m *Manager) UpdateVersionLink(rid tableheap.RID, newLink *VersionLink, check func(*VersionLink) bool) bool {
	info := m.pageVersions(rid.PageID, true)
	info.mutex.Lock()
	defer info.mutex.Unlock()

	current, ok := info.links[rid.Slot]
	var currentPtr *VersionLink
	if ok {
		currentPtr = &current
	}

	if check != nil && !check(currentPtr) {
		return false
	}

	if newLink != nil {
		info.links[rid.Slot] = *newLink
	} else {
		delete(info.links, rid.Slot)
	}
	return true
}

// GetVersionLink returns rid's current version link, if any.
func (m *Manager) GetVersionLink(rid tableheap.RID) (VersionLink, bool) {
	info := m.pageVersions(rid.PageID, false)
	if info == nil {
		return VersionLink{}, false
	}
	info.mutex.Lock()
	defer info.mutex.Unlock()
	link, ok := info.links[rid.Slot]
	return link, ok
}

// GetUndoLink returns rid's head undo link, if any.
func (m *Manager) GetUndoLink(rid tableheap.RID) (UndoLink, bool) {
	link, ok := m.GetVersionLink(rid)
	if !ok {
		return UndoLink{}, false
	}
	return link.Prev, true
}

// GetUndoLog dereferences link against the owning transaction's undo
// log arena.
func (m *Manager) GetUndoLog(link UndoLink) (UndoLog, bool) {
	m.txnMapMutex.RLock()
	txn, ok := m.txnMap[link.PrevTxnID]
	m.txnMapMutex.RUnlock()
	if !ok {
		return UndoLog{}, false
	}
	if link.PrevLogIdx < 0 || link.PrevLogIdx >= txn.UndoLogCount() {
		return UndoLog{}, false
	}
	return txn.GetUndoLog(link.PrevLogIdx), true
}

// GetTransaction looks up a transaction by id, for debugging and tests.
func (m *Manager) GetTransaction(id TxnID) (*Transaction, bool) {
	m.txnMapMutex.RLock()
	defer m.txnMapMutex.RUnlock()
	txn, ok := m.txnMap[id]
	return txn, ok
}

// Watermark exposes the manager's watermark, e.g. for GarbageCollect
// callers that want the current boundary without triggering a sweep.
func (m *Manager) Watermark() uint64 {
	return m.watermark.Min()
}

// GarbageCollect drops COMMITTED/ABORTED transactions from the
// transaction map once every undo log they own is unreachable: not
// referenced by any version chain whose walk a live transaction could
// still need).
func (m *Manager) GarbageCollect() {
	watermark := m.watermark.Min()

	reachable := make(map[TxnID]bool)
	m.versionInfoMutex.RLock()
	for _, info := range m.versionInfo {
		info.mutex.Lock()
		for _, link := range info.links {
			m.markReachable(link.Prev, watermark, reachable)
		}
		info.mutex.Unlock()
	}
	m.versionInfoMutex.RUnlock()

	m.txnMapMutex.Lock()
	defer m.txnMapMutex.Unlock()
	for id, txn := range m.txnMap {
		state := txn.State()
		if state != StateCommitted && state != StateAborted {
			continue
		}
		if reachable[id] {
			continue
		}
		delete(m.txnMap, id)
	}
}

// markReachable walks a version chain from link, marking every
// transaction it passes through as still needed until it hits a log
// older than watermark (the first such log is the last one any live
// reader could need; the chain below it is unreachable).
func (m *Manager) markReachable(link UndoLink, watermark uint64, reachable map[TxnID]bool) {
	for link.IsValid() {
		log, ok := m.GetUndoLog(link)
		if !ok {
			return
		}
		reachable[link.PrevTxnID] = true
		if log.Ts < watermark {
			return
		}
		link = log.PrevVersion
	}
}
