package encode

import (
	. "github.com/weberc2/easyfs/pkg/types"
)

func EncodeSuperBlock(sb *SuperBlock, p []byte) {
	putU32(p, superBlockMagicStart, sb.Magic)
	putU32(p, superBlockTotalBlocksStart, sb.TotalBlocks)
	putU32(p, superBlockInodeBitmapStart, sb.InodeBitmapBlocks)
	putU32(p, superBlockInodeAreaStart, sb.InodeAreaBlocks)
	putU32(p, superBlockDataBitmapStart, sb.DataBitmapBlocks)
	putU32(p, superBlockDataAreaStart, sb.DataAreaBlocks)
}

// DecodeSuperBlock does not validate the magic number; see
// `SuperBlock.IsValid()`.
func DecodeSuperBlock(sb *SuperBlock, p []byte) {
	sb.Magic = getU32(p, superBlockMagicStart)
	sb.TotalBlocks = getU32(p, superBlockTotalBlocksStart)
	sb.InodeBitmapBlocks = getU32(p, superBlockInodeBitmapStart)
	sb.InodeAreaBlocks = getU32(p, superBlockInodeAreaStart)
	sb.DataBitmapBlocks = getU32(p, superBlockDataBitmapStart)
	sb.DataAreaBlocks = getU32(p, superBlockDataAreaStart)
}

const (
	superBlockMagicStart       Byte = 0
	superBlockTotalBlocksStart Byte = superBlockMagicStart + 4
	superBlockInodeBitmapStart Byte = superBlockTotalBlocksStart + 4
	superBlockInodeAreaStart   Byte = superBlockInodeBitmapStart + 4
	superBlockDataBitmapStart  Byte = superBlockInodeAreaStart + 4
	superBlockDataAreaStart    Byte = superBlockDataBitmapStart + 4
	superBlockEnd              Byte = superBlockDataAreaStart + 4
)
