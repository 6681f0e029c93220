package exec

import (
	"bytes"

	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
)

// UpdateFunc computes a row's new values from its old ones, e.g. a
// column assignment list evaluated against the old row.
type UpdateFunc func(old Row) Row

// UpdateOperator drains its child, computes each row's new values via
// fn, and rewrites the tuple in place under the same MVCC undo-log
// discipline as DeleteOperator. Grounded on original_source's
// UpdateExecutor::Init, adapted to opaque columns: field equality is
// byte-equality rather than typed Value comparison.
type UpdateOperator struct {
	heap     *tableheap.TableHeap
	txnMgr   *txn.Manager
	txn      *txn.Transaction
	tableOid uint32
	indexes  []IndexHandle
	child    Operator
	fn       UpdateFunc

	done  bool
	count int
}

func NewUpdate(heap *tableheap.TableHeap, txnMgr *txn.Manager, transaction *txn.Transaction, tableOid uint32, indexes []IndexHandle, child Operator, fn UpdateFunc) *UpdateOperator {
	return &UpdateOperator{heap: heap, txnMgr: txnMgr, txn: transaction, tableOid: tableOid, indexes: indexes, child: child, fn: fn}
}

func (op *UpdateOperator) Init() error {
	op.done = false
	op.count = 0
	return op.child.Init()
}

func (op *UpdateOperator) Next() (Row, tableheap.RID, bool, error) {
	if op.done {
		return nil, tableheap.RID{}, false, nil
	}
	op.done = true

	for {
		oldRow, rid, ok, err := op.child.Next()
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

		newRow := op.fn(oldRow)
		modified := diffFields(oldRow, newRow)
		if !anySet(modified) {
			continue
		}

		recordUndoForWrite(op.txnMgr, op.txn, rid, meta, oldRow, modified)

		newMeta := tableheap.TupleMeta{Ts: op.txn.TempTs(), IsDeleted: false}
		op.applyNewRow(rid, newMeta, oldRow, newRow)

		for _, idx := range op.indexes {
			if fieldsOverlap(idx.KeyColumns(), modified) {
				idx.Delete(indexKey(oldRow, idx), rid)
				idx.Insert(indexKey(newRow, idx), rid)
			}
		}
		op.count++
	}

	return Row{encodeCount(op.count)}, tableheap.RID{}, true, nil
}

// applyNewRow overwrites the tuple. Table pages only support in-place
// replacement when the encoded size is unchanged (pagecodec's
// UpdateTupleInPlaceUnsafe contract); a size change falls back to
// delete-then-reinsert, which the write set records as an insert of a
// fresh rid.
func (op *UpdateOperator) applyNewRow(rid tableheap.RID, newMeta tableheap.TupleMeta, oldRow, newRow Row) {
	newTuple := EncodeRow(newRow)
	replaced := op.heap.UpdateTupleInPlace(newMeta, newTuple, rid, func(_ tableheap.TupleMeta, oldTuple tableheap.Tuple, _ tableheap.RID) bool {
		return len(oldTuple) == len(newTuple)
	})
	if replaced {
		op.txn.AppendWriteSet(op.tableOid, rid)
		return
	}

	tombstone := tableheap.TupleMeta{Ts: op.txn.TempTs(), IsDeleted: true}
	op.heap.UpdateTupleMeta(tombstone, rid)
	op.txn.AppendWriteSet(op.tableOid, rid)

	newRid, inserted := op.heap.InsertTuple(newMeta, newTuple)
	if inserted {
		op.txn.AppendWriteSet(op.tableOid, newRid)
	}
}

func diffFields(oldRow, newRow Row) []bool {
	n := len(oldRow)
	if len(newRow) > n {
		n = len(newRow)
	}
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		var a, b []byte
		if i < len(oldRow) {
			a = oldRow[i]
		}
		if i < len(newRow) {
			b = newRow[i]
		}
		out[i] = !bytes.Equal(a, b)
	}
	return out
}

func anySet(fields []bool) bool {
	for _, f := range fields {
		if f {
			return true
		}
	}
	return false
}

func fieldsOverlap(cols []int, modified []bool) bool {
	for _, c := range cols {
		if c < len(modified) && modified[c] {
			return true
		}
	}
	return false
}
