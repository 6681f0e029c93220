package diskio

import "unsafe"

// alignment is the block size Direct I/O requires read/write buffers to be
// aligned to. It matches PageSize, which is also the typical filesystem
// block size on the platforms this engine targets.
const alignment = PageSize

func bufferOffset(buffer []byte) uintptr {
	return uintptr(unsafe.Pointer(&buffer[0])) % uintptr(alignment)
}

func isAligned(buffer []byte) bool {
	return bufferOffset(buffer) == 0
}

// AllocateAlignedPageBuffer returns a PageSize buffer whose starting address
// is aligned to the Direct I/O block size, over-allocating and slicing to
// get there since Go gives no alignment guarantee on make([]byte, n).
func AllocateAlignedPageBuffer() []byte {
	buffer := make([]byte, 2*alignment)

	if isAligned(buffer) {
		return buffer[:PageSize]
	}

	distance := alignment - bufferOffset(buffer)
	return buffer[distance : distance+PageSize]
}
