package layout

import (
	"fmt"

	"github.com/weberc2/easyfs/pkg/math"
	. "github.com/weberc2/easyfs/pkg/types"
)

// DataBlocks is the number of data blocks holding `size` bytes.
func DataBlocks(size uint32) uint32 {
	return math.DivRoundUp(size, uint32(BlockSize))
}

// TotalBlocks is the number of data blocks plus the index blocks needed to
// reach them.
func TotalBlocks(size uint32) uint32 {
	data := DataBlocks(size)
	total := data
	if data > DirectBound {
		total++
	}
	if data > uint32(Indirect1Bound) {
		total++
		total += math.DivRoundUp(
			data-uint32(Indirect1Bound),
			uint32(Indirect1BlocksCount),
		)
	}
	return total
}

// BlocksNeeded is the number of blocks `IncreaseSize` consumes to grow
// `inode` to `size`.
func BlocksNeeded(inode *DiskInode, size uint32) uint32 {
	if size < inode.Size {
		panic(fmt.Sprintf(
			"growing inode from `%d` to smaller size `%d`",
			inode.Size,
			size,
		))
	}
	return TotalBlocks(size) - TotalBlocks(inode.Size)
}

// MaxSize is the largest file size an inode can index.
const MaxSize = uint64(Indirect2Bound) * uint64(BlockSize)
