package pagecodec

import "encoding/binary"

// HashDirectoryPage layout:
//
//	[0:4)  max depth (uint32)
//	[4:8)  global depth (uint32)
//	[8:...)                       local depths, 1 byte each, MaxSize entries
//	[8+MaxSize:...)               bucket page ids, 4 bytes each, MaxSize entries
const hashDirectoryHeaderSize = 8

type HashDirectoryCodec struct{}

func DefaultHashDirectoryCodec() HashDirectoryCodec { return HashDirectoryCodec{} }

// capacity returns the largest max depth whose local-depth and
// bucket-page-id arrays still fit in data.
func (HashDirectoryCodec) capacity(data []byte) uint32 {
	depth := uint32(0)
	for {
		size := uint32(1) << (depth + 1)
		needed := hashDirectoryHeaderSize + int(size) + int(size)*4
		if needed > len(data) {
			return depth
		}
		depth++
	}
}

// Init sets maxDepth (clamped to what the page can hold), resets the
// global depth to zero, and marks every bucket slot invalid with local
// depth zero.
func (c HashDirectoryCodec) Init(data []byte, maxDepth uint32) {
	if cap := c.capacity(data); maxDepth > cap {
		maxDepth = cap
	}
	binary.LittleEndian.PutUint32(data[0:4], maxDepth)
	binary.LittleEndian.PutUint32(data[4:8], 0)
	for i := uint32(0); i < c.MaxSize(data); i++ {
		c.SetBucketPageID(data, i, -1)
		c.SetLocalDepth(data, i, 0)
	}
}

func (HashDirectoryCodec) MaxDepth(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[0:4])
}

func (HashDirectoryCodec) GlobalDepth(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[4:8])
}

func (c HashDirectoryCodec) setGlobalDepth(data []byte, depth uint32) {
	binary.LittleEndian.PutUint32(data[4:8], depth)
}

func (c HashDirectoryCodec) Size(data []byte) uint32 {
	return 1 << c.GlobalDepth(data)
}

func (c HashDirectoryCodec) MaxSize(data []byte) uint32 {
	return 1 << c.MaxDepth(data)
}

func (c HashDirectoryCodec) localDepthOffset(idx uint32) int {
	return hashDirectoryHeaderSize + int(idx)
}

func (c HashDirectoryCodec) bucketIDOffset(data []byte, idx uint32) int {
	return hashDirectoryHeaderSize + int(c.MaxSize(data)) + int(idx)*4
}

func (c HashDirectoryCodec) HashToBucketIndex(data []byte, hash uint32) uint32 {
	return hash % c.Size(data)
}

func (c HashDirectoryCodec) GetBucketPageID(data []byte, idx uint32) int64 {
	offset := c.bucketIDOffset(data, idx)
	return int64(int32(binary.LittleEndian.Uint32(data[offset : offset+4])))
}

func (c HashDirectoryCodec) SetBucketPageID(data []byte, idx uint32, pageID int64) {
	offset := c.bucketIDOffset(data, idx)
	binary.LittleEndian.PutUint32(data[offset:offset+4], uint32(int32(pageID)))
}

func (c HashDirectoryCodec) GetLocalDepth(data []byte, idx uint32) uint8 {
	return data[c.localDepthOffset(idx)]
}

func (c HashDirectoryCodec) SetLocalDepth(data []byte, idx uint32, depth uint8) {
	data[c.localDepthOffset(idx)] = depth
}

func (c HashDirectoryCodec) IncrLocalDepth(data []byte, idx uint32) {
	c.SetLocalDepth(data, idx, c.GetLocalDepth(data, idx)+1)
}

func (c HashDirectoryCodec) DecrLocalDepth(data []byte, idx uint32) {
	c.SetLocalDepth(data, idx, c.GetLocalDepth(data, idx)-1)
}

// GetLocalDepthMask returns (1<<local_depth)-1 for idx.
func (c HashDirectoryCodec) GetLocalDepthMask(data []byte, idx uint32) uint32 {
	return (uint32(1) << c.GetLocalDepth(data, idx)) - 1
}

// GetSplitImageIndex flips idx's global_depth-1 bit.
func (c HashDirectoryCodec) GetSplitImageIndex(data []byte, idx uint32) uint32 {
	halfSize := uint32(1) << (c.GlobalDepth(data) - 1)
	if idx < halfSize {
		return idx + halfSize
	}
	return idx - halfSize
}

// IncrGlobalDepth doubles the directory by copying every bucket id and
// local depth into the mirrored upper half, then increments the depth.
func (c HashDirectoryCodec) IncrGlobalDepth(data []byte) {
	if c.GlobalDepth(data) >= c.MaxDepth(data) {
		return
	}
	size := c.Size(data)
	for i := uint32(0); i < size; i++ {
		c.SetBucketPageID(data, size+i, c.GetBucketPageID(data, i))
		c.SetLocalDepth(data, size+i, c.GetLocalDepth(data, i))
	}
	c.setGlobalDepth(data, c.GlobalDepth(data)+1)
}

func (c HashDirectoryCodec) DecrGlobalDepth(data []byte) {
	if c.GlobalDepth(data) == 0 {
		return
	}
	c.setGlobalDepth(data, c.GlobalDepth(data)-1)
}

// CanShrink reports whether every occupied bucket's local depth is
// strictly less than the current global depth.
func (c HashDirectoryCodec) CanShrink(data []byte) bool {
	globalDepth := c.GlobalDepth(data)
	size := c.Size(data)
	for i := uint32(0); i < size; i++ {
		if c.GetLocalDepth(data, i) >= uint8(globalDepth) {
			return false
		}
	}
	return true
}
