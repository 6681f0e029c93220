package exec

import (
	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
)

// DeleteOperator drains its child, marking each rid it produces deleted
// under MVCC: a write-write conflict taints the transaction and fails
// with ErrWriteConflict (it is not aborted here), otherwise
// the pre-image is preserved in an undo log (or merged into one this
// transaction already owns) before the tuple meta is flipped to
// deleted. Grounded on original_source's DeleteExecutor::Next, extended
// with the undo-log bookkeeping that stub never implemented.
type DeleteOperator struct {
	heap     *tableheap.TableHeap
	txnMgr   *txn.Manager
	txn      *txn.Transaction
	tableOid uint32
	indexes  []IndexHandle
	child    Operator

	done  bool
	count int
}

func NewDelete(heap *tableheap.TableHeap, txnMgr *txn.Manager, transaction *txn.Transaction, tableOid uint32, indexes []IndexHandle, child Operator) *DeleteOperator {
	return &DeleteOperator{heap: heap, txnMgr: txnMgr, txn: transaction, tableOid: tableOid, indexes: indexes, child: child}
}

func (op *DeleteOperator) Init() error {
	op.done = false
	op.count = 0
	return op.child.Init()
}

func (op *DeleteOperator) Next() (Row, tableheap.RID, bool, error) {
	if op.done {
		return nil, tableheap.RID{}, false, nil
	}
	op.done = true

	for {
		row, rid, ok, err := op.child.Next()
		if err != nil {
			return nil, tableheap.RID{}, false, err
		}
		if !ok {
			break
		}

		meta, ok := op.heap.GetTupleMeta(rid)
		if !ok {
			continue
		}
		if err := op.txnMgr.CheckWriteConflict(op.txn, meta); err != nil {
			return nil, tableheap.RID{}, false, err
		}

		recordUndoForWrite(op.txnMgr, op.txn, rid, meta, row, allTrue(len(row)))

		newMeta := tableheap.TupleMeta{Ts: op.txn.TempTs(), IsDeleted: true}
		op.heap.UpdateTupleMeta(newMeta, rid)
		op.txn.AppendWriteSet(op.tableOid, rid)

		for _, idx := range op.indexes {
			idx.Delete(indexKey(row, idx), rid)
		}
		op.count++
	}

	return Row{encodeCount(op.count)}, tableheap.RID{}, true, nil
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// recordUndoForWrite preserves oldRow as an undo log entry before a
// writer overwrites it, or merges into a log the same transaction
// already created earlier in its lifetime ("the first
// writer per transaction links a new undo log; later writers by the
// same transaction update it in place" rule).
func recordUndoForWrite(mgr *txn.Manager, transaction *txn.Transaction, rid tableheap.RID, oldMeta tableheap.TupleMeta, oldRow Row, modifiedFields []bool) {
	if oldMeta.Ts == transaction.TempTs() {
		link, ok := mgr.GetUndoLink(rid)
		if ok && link.IsValid() {
			log, found := mgr.GetUndoLog(link)
			if found {
				merged := mergeModifiedFields(log.ModifiedFields, modifiedFields, DecodeRow(log.Tuple), oldRow)
				log.ModifiedFields = merged.fields
				log.Tuple = EncodeRow(merged.row)
				transaction.ModifyUndoLog(link.PrevLogIdx, log)
				return
			}
		}
		// no existing log to merge into; fall through and create one.
	}

	prevLink, _ := mgr.GetUndoLink(rid)
	newLink := transaction.AppendUndoLog(txn.UndoLog{
		IsDeleted:      oldMeta.IsDeleted,
		ModifiedFields: modifiedFields,
		Tuple:          EncodeRow(projectModified(oldRow, modifiedFields)),
		Ts:             oldMeta.Ts,
		PrevVersion:    prevLink,
	})
	mgr.UpdateVersionLink(rid, &txn.VersionLink{Prev: newLink}, nil)
}

func projectModified(row Row, modifiedFields []bool) Row {
	var out Row
	for i, m := range modifiedFields {
		if m && i < len(row) {
			out = append(out, row[i])
		}
	}
	return out
}

type mergedUndo struct {
	fields []bool
	row    Row
}

// mergeModifiedFields combines an existing undo log's captured fields
// with a newly-touched set, keeping the OLDEST captured value for any
// field touched by both (existingRow already holds the value from
// before this transaction's first write, which predates newRow).
func mergeModifiedFields(existingFields, newFields []bool, existingRow, newRow Row) mergedUndo {
	n := len(existingFields)
	if len(newFields) > n {
		n = len(newFields)
	}
	combinedFields := make([]bool, n)
	existingIdx := 0
	newIdx := 0
	var combinedRow Row

	for i := 0; i < n; i++ {
		wasSet := i < len(existingFields) && existingFields[i]
		isSet := i < len(newFields) && newFields[i]
		combinedFields[i] = wasSet || isSet
		switch {
		case wasSet:
			combinedRow = append(combinedRow, existingRow[existingIdx])
		case isSet:
			combinedRow = append(combinedRow, newRow[i])
		}
		if wasSet {
			existingIdx++
		}
		if isSet {
			newIdx++
		}
	}
	return mergedUndo{fields: combinedFields, row: combinedRow}
}
