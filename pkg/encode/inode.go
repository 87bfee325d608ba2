package encode

import (
	"fmt"

	. "github.com/weberc2/easyfs/pkg/types"
)

func EncodeDiskInode(inode *DiskInode, p []byte) {
	putU32(p, inodeSizeStart, inode.Size)
	for i, block := range inode.Direct {
		putBlock(p, inodeDirectStart+Byte(i)*BlockPointerSize, block)
	}
	putBlock(p, inodeIndirect1Start, inode.Indirect1)
	putBlock(p, inodeIndirect2Start, inode.Indirect2)
	putU32(p, inodeTypeStart, uint32(inode.Type))
}

func DecodeDiskInode(inode *DiskInode, p []byte) error {
	// validate the type before touching `inode` so a failed decode leaves
	// the pointee as it was.
	t := DiskInodeType(getU32(p, inodeTypeStart))
	if err := t.Validate(); err != nil {
		return fmt.Errorf("decoding disk inode: %w", err)
	}

	inode.Type = t
	inode.Size = getU32(p, inodeSizeStart)
	for i := range inode.Direct {
		inode.Direct[i] = getBlock(p, inodeDirectStart+Byte(i)*BlockPointerSize)
	}
	inode.Indirect1 = getBlock(p, inodeIndirect1Start)
	inode.Indirect2 = getBlock(p, inodeIndirect2Start)
	return nil
}

const (
	inodeSizeStart = 0
	inodeSizeSize  = 4
	inodeSizeEnd   = inodeSizeStart + inodeSizeSize

	inodeDirectStart = inodeSizeEnd
	inodeDirectSize  = Byte(DirectBlocksCount) * BlockPointerSize
	inodeDirectEnd   = inodeDirectStart + inodeDirectSize

	inodeIndirect1Start = inodeDirectEnd
	inodeIndirect1Size  = BlockPointerSize
	inodeIndirect1End   = inodeIndirect1Start + inodeIndirect1Size

	inodeIndirect2Start = inodeIndirect1End
	inodeIndirect2Size  = BlockPointerSize
	inodeIndirect2End   = inodeIndirect2Start + inodeIndirect2Size

	inodeTypeStart = inodeIndirect2End
	inodeTypeSize  = 4
	inodeTypeEnd   = inodeTypeStart + inodeTypeSize
)
