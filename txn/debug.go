package txn

import (
	"fmt"
	"strings"

	"github.com/kestrel-db/kestrel/tableheap"
)

// DumpVersionChain renders rid's undo chain as a human-readable trail,
// starting from the base tuple and walking each undo log in turn. It
// exists for tests and troubleshooting, not for any operator's data
// path.
func DumpVersionChain(m *Manager, rid tableheap.RID, baseMeta tableheap.TupleMeta, baseTuple tableheap.Tuple) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RID=%s ts=%d tuple=%v", rid, baseMeta.Ts, []byte(baseTuple))
	if baseMeta.IsDeleted {
		b.WriteString(" <deleted>")
	}

	link, ok := m.GetUndoLink(rid)
	for ok && link.IsValid() {
		log, found := m.GetUndoLog(link)
		if !found {
			break
		}
		fmt.Fprintf(&b, "\n  txn=%d ts=%d tuple=%v", link.PrevTxnID, log.Ts, []byte(log.Tuple))
		if log.IsDeleted {
			b.WriteString(" <deleted>")
		}
		link = log.PrevVersion
		ok = link.IsValid()
	}
	return b.String()
}
