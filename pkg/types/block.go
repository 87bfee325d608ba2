package types

// Block is an absolute block id on a device.
type Block uint32

// Byte is a byte count or a byte offset.
type Byte int

const (
	BlockSize        Byte = 512
	BlockPointerSize Byte = 4

	// PointersPerBlock is the number of block pointers an index block holds.
	PointersPerBlock = int(BlockSize / BlockPointerSize)

	// BitsPerBlock is the number of allocation bits one bitmap block tracks.
	BitsPerBlock = int(BlockSize) * 8

	BlockNil Block = 0
)
