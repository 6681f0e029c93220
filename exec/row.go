// Package exec implements the tuple-at-a-time execution operators that
// exercise MVCC: sequential scan, insert, delete, and update.
package exec

import (
	"encoding/binary"

	"github.com/kestrel-db/kestrel/tableheap"
)

// Row is a tuple's decoded column values, each an opaque byte slice.
// The execution layer never interprets column contents; only equality
// and byte-copy operations are needed to exercise MVCC.
type Row [][]byte

// EncodeRow serializes row as a length-prefixed sequence of fields.
func EncodeRow(row Row) tableheap.Tuple {
	size := 4
	for _, field := range row {
		size += 4 + len(field)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(row)))
	offset := 4
	for _, field := range row {
		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(field)))
		offset += 4
		copy(buf[offset:offset+len(field)], field)
		offset += len(field)
	}
	return tableheap.Tuple(buf)
}

// DecodeRow parses a tuple produced by EncodeRow.
func DecodeRow(tuple tableheap.Tuple) Row {
	if len(tuple) < 4 {
		return nil
	}
	numFields := binary.LittleEndian.Uint32(tuple[0:4])
	row := make(Row, numFields)
	offset := 4
	for i := uint32(0); i < numFields; i++ {
		size := binary.LittleEndian.Uint32(tuple[offset : offset+4])
		offset += 4
		row[i] = append([]byte(nil), tuple[offset:offset+int(size)]...)
		offset += int(size)
	}
	return row
}

// CloneRow returns a deep copy of row.
func CloneRow(row Row) Row {
	out := make(Row, len(row))
	for i, field := range row {
		out[i] = append([]byte(nil), field...)
	}
	return out
}
