package exec

import (
	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
)

// InsertOperator drains its child, inserting every row it produces into
// a table heap with a temp timestamp, recording each new rid in the
// transaction's write set and every secondary index. Grounded on
// original_source's InsertExecutor::Init.
type InsertOperator struct {
	heap     *tableheap.TableHeap
	txn      *txn.Transaction
	tableOid uint32
	indexes  []IndexHandle
	child    Operator

	done  bool
	count int
}

func NewInsert(heap *tableheap.TableHeap, transaction *txn.Transaction, tableOid uint32, indexes []IndexHandle, child Operator) *InsertOperator {
	return &InsertOperator{heap: heap, txn: transaction, tableOid: tableOid, indexes: indexes, child: child}
}

func (op *InsertOperator) Init() error {
	op.done = false
	op.count = 0
	return op.child.Init()
}

// Next runs the whole insert to completion on its first call and
// returns a single one-column row holding the inserted-row count,
// matching InsertExecutor's "materialize a result row" pattern.
func (op *InsertOperator) Next() (Row, tableheap.RID, bool, error) {
	if op.done {
		return nil, tableheap.RID{}, false, nil
	}
	op.done = true

	for {
		row, _, ok, err := op.child.Next()
		if err != nil {
			return nil, tableheap.RID{}, false, err
		}
		if !ok {
			break
		}

		meta := tableheap.TupleMeta{Ts: op.txn.TempTs(), IsDeleted: false}
		rid, inserted := op.heap.InsertTuple(meta, EncodeRow(row))
		if !inserted {
			continue
		}

		op.txn.AppendWriteSet(op.tableOid, rid)
		for _, idx := range op.indexes {
			idx.Insert(indexKey(row, idx), rid)
		}
		op.count++
	}

	return Row{encodeCount(op.count)}, tableheap.RID{}, true, nil
}

func encodeCount(n int) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}
