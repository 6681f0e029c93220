package exec

import (
	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
)

// SeqScanOperator walks every tuple in a table heap's current extent,
// reconstructing the version visible to txn and applying an optional
// filter predicate. Grounded on original_source's SeqScanExecutor::Next
// / RetrieveTuple.
type SeqScanOperator struct {
	heap      *tableheap.TableHeap
	txnMgr    *txn.Manager
	txn       *txn.Transaction
	predicate func(Row) bool

	iter *tableheap.Iterator
}

// NewSeqScan builds a scan over heap visible to the given transaction.
// predicate may be nil to accept every visible row.
func NewSeqScan(heap *tableheap.TableHeap, txnMgr *txn.Manager, transaction *txn.Transaction, predicate func(Row) bool) *SeqScanOperator {
	return &SeqScanOperator{heap: heap, txnMgr: txnMgr, txn: transaction, predicate: predicate}
}

func (s *SeqScanOperator) Init() error {
	s.iter = s.heap.MakeIterator()
	return nil
}

func (s *SeqScanOperator) Next() (Row, tableheap.RID, bool, error) {
	for s.iter.Valid() {
		rid := s.iter.Current()
		s.iter.Next()

		meta, tuple, ok := s.heap.GetTuple(rid)
		if !ok {
			continue
		}

		row, visible := retrieveVisible(s.heap, s.txnMgr, s.txn, rid, meta, tuple)
		if !visible {
			continue
		}
		if s.predicate != nil && !s.predicate(row) {
			continue
		}
		return row, rid, true, nil
	}
	return nil, tableheap.RID{}, false, nil
}

// retrieveVisible returns the version of (meta, tuple) visible to txn,
// reconstructing it from the undo chain when the base version is too
// new. Shared by SeqScanOperator and FetchByRID's point lookups.
func retrieveVisible(heap *tableheap.TableHeap, txnMgr *txn.Manager, transaction *txn.Transaction, rid tableheap.RID, meta tableheap.TupleMeta, tuple tableheap.Tuple) (Row, bool) {
	if IsVisible(meta, transaction.ReadTs(), transaction.TempTs()) {
		if meta.IsDeleted {
			return nil, false
		}
		return DecodeRow(tuple), true
	}

	logs := CollectUndoLogs(txnMgr, rid, transaction.ReadTs())
	if len(logs) == 0 || logs[len(logs)-1].Ts > transaction.ReadTs() {
		return nil, false
	}
	return ReconstructTuple(DecodeRow(tuple), meta, logs)
}

// FetchByRID resolves the row visible to transaction at rid, applying
// the same visibility/reconstruction rule a sequential scan uses.
// Used by point operations (server-driven single-row delete/update)
// that already know the rid instead of discovering it via a scan.
func FetchByRID(heap *tableheap.TableHeap, txnMgr *txn.Manager, transaction *txn.Transaction, rid tableheap.RID) (Row, bool) {
	meta, tuple, ok := heap.GetTuple(rid)
	if !ok {
		return nil, false
	}
	return retrieveVisible(heap, txnMgr, transaction, rid, meta, tuple)
}
