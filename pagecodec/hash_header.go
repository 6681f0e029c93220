package pagecodec

import "encoding/binary"

// HashHeaderPage layout: a max depth followed by a directory_page_id
// array of little-endian 32-bit entries, sized to 2^max_depth but
// capped by whatever fits in the page.
//
//	[0:4)  max depth (uint32)
//	[4:...) directory page ids, 4 bytes each
const hashHeaderPageIDsOffset = 4

type HashHeaderCodec struct{}

func DefaultHashHeaderCodec() HashHeaderCodec { return HashHeaderCodec{} }

// capacity returns the largest max depth whose directory_page_id array
// still fits in data.
func (HashHeaderCodec) capacity(data []byte) uint32 {
	slots := uint32((len(data) - hashHeaderPageIDsOffset) / 4)
	depth := uint32(0)
	for (uint32(1) << (depth + 1)) <= slots {
		depth++
	}
	return depth
}

// Init sets maxDepth (clamped to what the page can hold, mirroring
// ExtendibleHTableHeaderPage::Init's std::min against the array bound)
// and marks every directory slot invalid.
func (c HashHeaderCodec) Init(data []byte, maxDepth uint32) {
	if cap := c.capacity(data); maxDepth > cap {
		maxDepth = cap
	}
	binary.LittleEndian.PutUint32(data[0:4], maxDepth)
	for i := uint32(0); i < c.MaxSize(data); i++ {
		c.SetDirectoryPageID(data, i, -1)
	}
}

func (HashHeaderCodec) MaxDepth(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[0:4])
}

func (c HashHeaderCodec) MaxSize(data []byte) uint32 {
	return 1 << c.MaxDepth(data)
}

// HashToDirectoryIndex takes the top max_depth bits of hash.
func (c HashHeaderCodec) HashToDirectoryIndex(data []byte, hash uint32) uint32 {
	maxDepth := c.MaxDepth(data)
	if maxDepth == 0 {
		return 0
	}
	return (hash >> (32 - maxDepth)) & ((1 << maxDepth) - 1)
}

func (HashHeaderCodec) offsetFor(idx uint32) int {
	return hashHeaderPageIDsOffset + int(idx)*4
}

func (c HashHeaderCodec) GetDirectoryPageID(data []byte, idx uint32) int64 {
	offset := c.offsetFor(idx)
	return int64(int32(binary.LittleEndian.Uint32(data[offset : offset+4])))
}

func (c HashHeaderCodec) SetDirectoryPageID(data []byte, idx uint32, pageID int64) {
	offset := c.offsetFor(idx)
	binary.LittleEndian.PutUint32(data[offset:offset+4], uint32(int32(pageID)))
}
