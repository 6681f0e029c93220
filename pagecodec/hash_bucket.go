package pagecodec

import "encoding/binary"

// HashBucketPage layout:
//
//	[0:4)  size (uint32, number of occupied entries)
//	[4:8)  max size (uint32, capacity in entries)
//	[8:...) entries, each entrySize = keySize+valueSize bytes: key bytes
//	        followed by value bytes, packed with no gaps between slots.
const hashBucketHeaderSize = 8

type HashBucketCodec struct{}

func DefaultHashBucketCodec() HashBucketCodec { return HashBucketCodec{} }

func (HashBucketCodec) Init(data []byte, maxSize uint32) {
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint32(data[4:8], maxSize)
}

func (HashBucketCodec) Size(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[0:4])
}

func (c HashBucketCodec) setSize(data []byte, size uint32) {
	binary.LittleEndian.PutUint32(data[0:4], size)
}

func (HashBucketCodec) MaxSize(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[4:8])
}

func (c HashBucketCodec) IsFull(data []byte) bool {
	return c.Size(data) >= c.MaxSize(data)
}

func (c HashBucketCodec) IsEmpty(data []byte) bool {
	return c.Size(data) == 0
}

func (c HashBucketCodec) entryOffset(idx uint32, entrySize int) int {
	return hashBucketHeaderSize + int(idx)*entrySize
}

// EntryAt returns copies of the key and value bytes at idx.
func (c HashBucketCodec) EntryAt(data []byte, idx uint32, keySize, valueSize int) (key, value []byte) {
	offset := c.entryOffset(idx, keySize+valueSize)
	key = make([]byte, keySize)
	value = make([]byte, valueSize)
	copy(key, data[offset:offset+keySize])
	copy(value, data[offset+keySize:offset+keySize+valueSize])
	return key, value
}

// Append writes key/value into the next free slot. Caller must ensure
// !IsFull first.
func (c HashBucketCodec) Append(data []byte, key, value []byte) {
	size := c.Size(data)
	entrySize := len(key) + len(value)
	offset := c.entryOffset(size, entrySize)
	copy(data[offset:offset+len(key)], key)
	copy(data[offset+len(key):offset+entrySize], value)
	c.setSize(data, size+1)
}

// RemoveAt deletes the entry at idx by shifting every later entry down
// one slot, preserving relative order (mirrors bustub's RemoveAt).
func (c HashBucketCodec) RemoveAt(data []byte, idx uint32, keySize, valueSize int) {
	entrySize := keySize + valueSize
	size := c.Size(data)
	for i := idx; i+1 < size; i++ {
		copy(data[c.entryOffset(i, entrySize):c.entryOffset(i, entrySize)+entrySize],
			data[c.entryOffset(i+1, entrySize):c.entryOffset(i+1, entrySize)+entrySize])
	}
	c.setSize(data, size-1)
}
