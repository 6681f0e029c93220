package exec

import (
	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
)

// ReconstructTuple rebuilds the row visible at the timestamp implied by
// undoLogs by overlaying each log's modified fields onto baseRow, newest
// log first. It ports original_source/src/execution/execution_common.cpp's
// ReconstructTuple to the opaque-column Row model: modified_fields no
// longer indexes a typed Schema, just baseRow's column positions.
//
// ok is false if the reconstructed version is a delete marker (no row is
// visible at that point in the chain).
func ReconstructTuple(baseRow Row, baseMeta tableheap.TupleMeta, undoLogs []txn.UndoLog) (row Row, ok bool) {
	isDeleted := baseMeta.IsDeleted
	reconstructed := CloneRow(baseRow)

	for _, log := range undoLogs {
		isDeleted = log.IsDeleted
		if log.IsDeleted {
			continue
		}
		partial := DecodeRow(log.Tuple)
		partialIdx := 0
		for col, modified := range log.ModifiedFields {
			if !modified {
				continue
			}
			if col < len(reconstructed) && partialIdx < len(partial) {
				reconstructed[col] = partial[partialIdx]
			}
			partialIdx++
		}
	}

	if isDeleted {
		return nil, false
	}
	return reconstructed, true
}

// CollectUndoLogs walks rid's version chain starting at its head link,
// gathering logs newest-first until one with Ts <= readTs has been
// included (that log's captured state is the visible version) or the
// chain ends.
func CollectUndoLogs(mgr *txn.Manager, rid tableheap.RID, readTs uint64) []txn.UndoLog {
	link, ok := mgr.GetUndoLink(rid)
	if !ok {
		return nil
	}

	var logs []txn.UndoLog
	for link.IsValid() {
		log, found := mgr.GetUndoLog(link)
		if !found {
			break
		}
		logs = append(logs, log)
		if log.Ts <= readTs {
			break
		}
		link = log.PrevVersion
	}
	return logs
}

// IsVisible reports whether meta's version is visible to a reader with
// the given read timestamp and temp timestamp (its own uncommitted
// writes are always visible to itself).
func IsVisible(meta tableheap.TupleMeta, readTs, tempTs uint64) bool {
	return meta.Ts <= readTs || meta.Ts == tempTs
}
