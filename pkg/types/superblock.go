package types

import "fmt"

const (
	SuperBlockMagic uint32 = 0x3b800001
	SuperBlockSize  Byte   = 24

	SuperBlockBlock Block = 0
)

type SuperBlock struct {
	Magic             uint32 `json:"magic"`
	TotalBlocks       uint32 `json:"totalBlocks"`
	InodeBitmapBlocks uint32 `json:"inodeBitmapBlocks"`
	InodeAreaBlocks   uint32 `json:"inodeAreaBlocks"`
	DataBitmapBlocks  uint32 `json:"dataBitmapBlocks"`
	DataAreaBlocks    uint32 `json:"dataAreaBlocks"`
}

func NewSuperBlock(
	totalBlocks uint32,
	inodeBitmapBlocks uint32,
	inodeAreaBlocks uint32,
	dataBitmapBlocks uint32,
	dataAreaBlocks uint32,
) SuperBlock {
	return SuperBlock{
		Magic:             SuperBlockMagic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataAreaBlocks,
	}
}

func (sb *SuperBlock) IsValid() bool { return sb.Magic == SuperBlockMagic }

func (sb *SuperBlock) String() string {
	return fmt.Sprintf(
		"SuperBlock{total: %d, inode bitmap: %d, inode area: %d, "+
			"data bitmap: %d, data area: %d}",
		sb.TotalBlocks,
		sb.InodeBitmapBlocks,
		sb.InodeAreaBlocks,
		sb.DataBitmapBlocks,
		sb.DataAreaBlocks,
	)
}
