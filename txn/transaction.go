// Package txn implements the multi-version concurrency control
// subsystem: per-transaction state, undo log chains, version links, a
// watermark, and the transaction manager tying them together.
package txn

import (
	"sync"

	"github.com/kestrel-db/kestrel/tableheap"
)

// TxnID identifies a transaction. Values below TxnStartID are commit
// timestamps; values at or above it are "temporary" timestamps a
// transaction's own uncommitted writes carry until commit, matching
// bustub's txn_id/timestamp numeric-space split.
type TxnID uint64

// TxnStartID splits the commit-ts/temp-ts space: any ts below it is a
// real commit timestamp, any txn id at or above it is a temp
// timestamp / transaction identifier.
const TxnStartID TxnID = 1 << 62

// InvalidTs marks the absence of a timestamp.
const InvalidTs uint64 = 0

// State is a transaction's lifecycle state.
type State int

const (
	StateRunning State = iota
	StateTainted
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateTainted:
		return "TAINTED"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel controls how a transaction's reads and commit are
// validated.
type IsolationLevel int

const (
	SnapshotIsolation IsolationLevel = iota
	Serializable
)

// UndoLink points at a specific undo log entry: which transaction owns
// it and its index within that transaction's undo log arena.
type UndoLink struct {
	PrevTxnID   TxnID
	PrevLogIdx  int
}

// IsValid reports whether the link actually points somewhere.
func (l UndoLink) IsValid() bool { return l.PrevTxnID != 0 }

// UndoLog is one entry in a tuple's version chain: enough information
// to reconstruct the tuple as it looked before this transaction's
// write, via a partial (only-modified-fields) tuple plus a bit vector
// of which fields it carries.
type UndoLog struct {
	IsDeleted      bool
	ModifiedFields []bool
	Tuple          tableheap.Tuple
	Ts             uint64
	PrevVersion    UndoLink
}

// Transaction tracks everything a running transaction needs: its undo
// log arena, write set, and MVCC timestamps. The transaction's own latch
// guards its state, undo log arena and write set; Manager sets readTs
// at Begin and commitTs and state at Commit.
type Transaction struct {
	mutex sync.Mutex

	id             TxnID
	isolationLevel IsolationLevel
	state          State
	readTs         uint64
	commitTs       uint64

	undoLogs  []UndoLog
	writeSet  map[uint32]map[tableheap.RID]struct{}
}

func newTransaction(id TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolationLevel: isolation,
		state:          StateRunning,
		commitTs:       InvalidTs,
		writeSet:       make(map[uint32]map[tableheap.RID]struct{}),
	}
}

func (t *Transaction) ID() TxnID                       { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel  { return t.isolationLevel }
func (t *Transaction) ReadTs() uint64                  { return t.readTs }
func (t *Transaction) CommitTs() uint64                { return t.commitTs }

// TempTs is the timestamp this transaction's own uncommitted writes
// carry: numerically its txn id.
func (t *Transaction) TempTs() uint64 { return uint64(t.id) }

func (t *Transaction) State() State {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// SetTainted transitions a RUNNING transaction to TAINTED. Calling it
// on any other state is a programmer error; the original implementation
// terminates the process, which a library must not do, so this panics
// instead — still fail-loud, just recoverable by the caller's caller.
func (t *Transaction) SetTainted() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state != StateRunning {
		panic("txn: SetTainted called on transaction not in RUNNING state")
	}
	t.state = StateTainted
}

// AppendUndoLog adds log to this transaction's arena and returns a link
// to it. Existing links into the arena stay valid since entries are
// only appended or modified in place, never removed.
func (t *Transaction) AppendUndoLog(log UndoLog) UndoLink {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.undoLogs = append(t.undoLogs, log)
	return UndoLink{PrevTxnID: t.id, PrevLogIdx: len(t.undoLogs) - 1}
}

// ModifyUndoLog overwrites an existing undo log entry in place.
func (t *Transaction) ModifyUndoLog(idx int, log UndoLog) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.undoLogs[idx] = log
}

// GetUndoLog returns a copy of undo log idx.
func (t *Transaction) GetUndoLog(idx int) UndoLog {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.undoLogs[idx]
}

// UndoLogCount returns the number of undo logs recorded so far.
func (t *Transaction) UndoLogCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.undoLogs)
}

// AppendWriteSet records that this transaction wrote rid in table.
func (t *Transaction) AppendWriteSet(table uint32, rid tableheap.RID) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	set, ok := t.writeSet[table]
	if !ok {
		set = make(map[tableheap.RID]struct{})
		t.writeSet[table] = set
	}
	set[rid] = struct{}{}
}

// WriteSet returns a snapshot copy of the write set: table oid to the
// rids this transaction wrote in it.
func (t *Transaction) WriteSet() map[uint32][]tableheap.RID {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make(map[uint32][]tableheap.RID, len(t.writeSet))
	for table, rids := range t.writeSet {
		list := make([]tableheap.RID, 0, len(rids))
		for rid := range rids {
			list = append(list, rid)
		}
		out[table] = list
	}
	return out
}
