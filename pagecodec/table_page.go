package pagecodec

import "encoding/binary"

// TablePage is the manual binary.LittleEndian layout of a table heap
// page: a small header, a slot array that grows forward from the
// header, and a tuple data region that grows backward from the end of
// the page. This mirrors the slotted-page design bustub's TablePage
// uses, generalized to this project's byte layout. Page ids are stored
// as little-endian 32-bit integers, matching every other on-disk id in
// this package.
//
//	[0:4)   next page id (int32, -1 if none)
//	[4:8)   num tuples (uint32)
//	[8:12)  free space pointer (uint32, offset where tuple data starts)
//	[12:...) slot array, tableSlotSize bytes each:
//	    [0:4)  tuple offset (uint32)
//	    [4:8)  tuple size (uint32)
//	    [8:16) meta.ts (uint64)
//	    [16)   meta.is_deleted (0/1)
const (
	tableHeaderSize   = 12
	tableSlotSize     = 24
	tablePageCapacity = 4096
)

type TablePageCodec struct{}

func DefaultTablePageCodec() TablePageCodec { return TablePageCodec{} }

// Init zeroes data into an empty table page with no next page and a
// free space pointer at the end of the page.
func (TablePageCodec) Init(data []byte) {
	for i := range data {
		data[i] = 0
	}
	var noNext int32 = -1
	binary.LittleEndian.PutUint32(data[0:4], uint32(noNext))
	binary.LittleEndian.PutUint32(data[4:8], 0)
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(data)))
}

func (TablePageCodec) NextPageID(data []byte) int64 {
	return int64(int32(binary.LittleEndian.Uint32(data[0:4])))
}

func (TablePageCodec) SetNextPageID(data []byte, id int64) {
	binary.LittleEndian.PutUint32(data[0:4], uint32(int32(id)))
}

func (TablePageCodec) NumTuples(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[4:8])
}

func (c TablePageCodec) freeSpacePointer(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[8:12])
}

func (c TablePageCodec) slotOffset(slot uint32) int {
	return tableHeaderSize + int(slot)*tableSlotSize
}

// FitsTuple reports whether a tuple of tupleSize bytes fits in the
// remaining free space, accounting for the new slot it would need.
func (c TablePageCodec) FitsTuple(data []byte, tupleSize int) bool {
	numTuples := c.NumTuples(data)
	slotEnd := c.slotOffset(numTuples) + tableSlotSize
	newFreeSpacePointer := int(c.freeSpacePointer(data)) - tupleSize
	return newFreeSpacePointer >= slotEnd
}

// InsertTuple appends tuple to the tail of the free space region and a
// new slot describing it, returning the new slot index. The caller must
// have checked FitsTuple first.
func (c TablePageCodec) InsertTuple(data []byte, ts uint64, isDeleted bool, tuple []byte) uint32 {
	numTuples := c.NumTuples(data)
	freeSpacePointer := c.freeSpacePointer(data)

	newFreeSpacePointer := freeSpacePointer - uint32(len(tuple))
	copy(data[newFreeSpacePointer:freeSpacePointer], tuple)

	slotOffset := c.slotOffset(numTuples)
	binary.LittleEndian.PutUint32(data[slotOffset:slotOffset+4], newFreeSpacePointer)
	binary.LittleEndian.PutUint32(data[slotOffset+4:slotOffset+8], uint32(len(tuple)))
	c.writeMeta(data, slotOffset+8, ts, isDeleted)

	binary.LittleEndian.PutUint32(data[4:8], numTuples+1)
	binary.LittleEndian.PutUint32(data[8:12], newFreeSpacePointer)

	return numTuples
}

func (c TablePageCodec) writeMeta(data []byte, offset int, ts uint64, isDeleted bool) {
	binary.LittleEndian.PutUint64(data[offset:offset+8], ts)
	if isDeleted {
		data[offset+8] = 1
	} else {
		data[offset+8] = 0
	}
}

// GetTupleMeta reads slot's meta.
func (c TablePageCodec) GetTupleMeta(data []byte, slot uint32) (ts uint64, isDeleted bool) {
	offset := c.slotOffset(slot) + 8
	ts = binary.LittleEndian.Uint64(data[offset : offset+8])
	isDeleted = data[offset+8] != 0
	return ts, isDeleted
}

// UpdateTupleMeta rewrites slot's meta only, leaving tuple bytes as-is.
func (c TablePageCodec) UpdateTupleMeta(data []byte, slot uint32, ts uint64, isDeleted bool) {
	offset := c.slotOffset(slot) + 8
	c.writeMeta(data, offset, ts, isDeleted)
}

// GetTuple returns a copy of slot's tuple bytes.
func (c TablePageCodec) GetTuple(data []byte, slot uint32) []byte {
	slotOffset := c.slotOffset(slot)
	tupleOffset := binary.LittleEndian.Uint32(data[slotOffset : slotOffset+4])
	tupleSize := binary.LittleEndian.Uint32(data[slotOffset+4 : slotOffset+8])
	out := make([]byte, tupleSize)
	copy(out, data[tupleOffset:tupleOffset+tupleSize])
	return out
}

// UpdateTupleInPlaceUnsafe overwrites slot's tuple bytes and meta. The
// caller guarantees the new tuple is exactly the size of the old one;
// table pages never compact or grow a slot's tuple region in place.
func (c TablePageCodec) UpdateTupleInPlaceUnsafe(data []byte, slot uint32, ts uint64, isDeleted bool, tuple []byte) {
	slotOffset := c.slotOffset(slot)
	tupleOffset := binary.LittleEndian.Uint32(data[slotOffset : slotOffset+4])
	tupleSize := binary.LittleEndian.Uint32(data[slotOffset+4 : slotOffset+8])
	copy(data[tupleOffset:tupleOffset+tupleSize], tuple[:tupleSize])
	c.writeMeta(data, slotOffset+8, ts, isDeleted)
}
