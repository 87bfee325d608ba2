package types

import "fmt"

type Ino uint32

const (
	InodeSize Byte = 128
	InoRoot   Ino  = 0

	InodesPerBlock = int(BlockSize / InodeSize)

	DirectBlocksCount    = 28
	Indirect1BlocksCount = PointersPerBlock
	Indirect2BlocksCount = Indirect1BlocksCount * Indirect1BlocksCount

	// Inner block indices below DirectBound resolve through the direct
	// pointers, those below Indirect1Bound through the singly indirect block
	// and the rest through the doubly indirect block.
	DirectBound    = DirectBlocksCount
	Indirect1Bound = DirectBound + Indirect1BlocksCount
	Indirect2Bound = Indirect1Bound + Indirect2BlocksCount
)

type DiskInodeType uint32

const (
	DiskInodeTypeFile DiskInodeType = iota
	DiskInodeTypeDirectory
)

func (t DiskInodeType) String() string {
	switch t {
	case DiskInodeTypeFile:
		return "File"
	case DiskInodeTypeDirectory:
		return "Directory"
	default:
		panic(fmt.Sprintf("invalid disk inode type: `%d`", uint32(t)))
	}
}

func (t DiskInodeType) MarshalJSON() ([]byte, error) {
	s := t.String()
	out := make([]byte, len(s)+2)
	out[0] = '"'
	out[len(out)-1] = '"'
	copy(out[1:], s)
	return out, nil
}

func (t DiskInodeType) Validate() error {
	if t > DiskInodeTypeDirectory {
		return fmt.Errorf(
			"validating disk inode type `%d`: %w",
			uint32(t),
			ErrInvalidInodeType,
		)
	}
	return nil
}

const (
	ErrInvalidInodeType ConstError = "invalid disk inode type"
)

// DiskInode is the in-memory form of a 128-byte on-disk inode record.
type DiskInode struct {
	Size      uint32                   `json:"size"`
	Direct    [DirectBlocksCount]Block `json:"direct"`
	Indirect1 Block                    `json:"indirect1"`
	Indirect2 Block                    `json:"indirect2"`
	Type      DiskInodeType            `json:"type"`
}

// Initialize resets every pointer and the size and sets the type.
func (inode *DiskInode) Initialize(t DiskInodeType) {
	*inode = DiskInode{Type: t}
}

func (inode *DiskInode) IsDir() bool { return inode.Type == DiskInodeTypeDirectory }
