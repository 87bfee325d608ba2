package layout

import (
	"fmt"

	"github.com/weberc2/easyfs/pkg/bcache"
	"github.com/weberc2/easyfs/pkg/encode"
	"github.com/weberc2/easyfs/pkg/math"
	. "github.com/weberc2/easyfs/pkg/types"
)

// ReadDiskInode decodes the inode stored at `offset` within `block`.
func ReadDiskInode(
	cache *bcache.Manager,
	block Block,
	offset Byte,
) (DiskInode, error) {
	var inode DiskInode
	if err := cache.Read(block, offset, InodeSize, func(p []byte) error {
		return encode.DecodeDiskInode(&inode, p)
	}); err != nil {
		return inode, fmt.Errorf(
			"reading disk inode at block `%d` offset `%d`: %w",
			block,
			offset,
			err,
		)
	}
	return inode, nil
}

// ModifyDiskInode decodes the inode at `offset` within `block`, passes it to
// `f` and encodes it back if `f` succeeds. When `f` fails the stored inode is
// left untouched. The block stays held while `f` runs, so every handle on the
// inode observes the update through the same cache entry.
func ModifyDiskInode(
	cache *bcache.Manager,
	block Block,
	offset Byte,
	f func(inode *DiskInode) error,
) error {
	if err := cache.Modify(block, offset, InodeSize, func(p []byte) error {
		var inode DiskInode
		if err := encode.DecodeDiskInode(&inode, p); err != nil {
			return err
		}
		if err := f(&inode); err != nil {
			return err
		}
		encode.EncodeDiskInode(&inode, p)
		return nil
	}); err != nil {
		return fmt.Errorf(
			"modifying disk inode at block `%d` offset `%d`: %w",
			block,
			offset,
			err,
		)
	}
	return nil
}

func readPointer(cache *bcache.Manager, block Block, index int) (Block, error) {
	var pointer Block
	if err := cache.Read(
		block,
		Byte(index)*BlockPointerSize,
		BlockPointerSize,
		func(p []byte) error {
			pointer = encode.GetPointer(p, 0)
			return nil
		},
	); err != nil {
		return BlockNil, fmt.Errorf(
			"reading pointer `%d` of index block `%d`: %w",
			index,
			block,
			err,
		)
	}
	return pointer, nil
}

// BlockID resolves the `inner`th data block of `inode` to a device block.
func BlockID(
	cache *bcache.Manager,
	inode *DiskInode,
	inner uint32,
) (Block, error) {
	switch {
	case inner < DirectBound:
		return inode.Direct[inner], nil
	case inner < uint32(Indirect1Bound):
		return readPointer(cache, inode.Indirect1, int(inner-DirectBound))
	case inner < uint32(Indirect2Bound):
		last := inner - uint32(Indirect1Bound)
		indirect1, err := readPointer(
			cache,
			inode.Indirect2,
			int(last/uint32(Indirect1BlocksCount)),
		)
		if err != nil {
			return BlockNil, err
		}
		return readPointer(
			cache,
			indirect1,
			int(last%uint32(Indirect1BlocksCount)),
		)
	default:
		panic(fmt.Sprintf("inner block `%d` beyond doubly indirect range", inner))
	}
}

// IncreaseSize grows `inode` to `size`, threading `blocks` into the direct
// slots, then the singly indirect block, then the doubly indirect tree.
// `blocks` must hold exactly `BlocksNeeded(inode, size)` freshly allocated,
// zeroed blocks.
func IncreaseSize(
	cache *bcache.Manager,
	inode *DiskInode,
	size uint32,
	blocks []Block,
) error {
	if uint32(len(blocks)) != BlocksNeeded(inode, size) {
		panic(fmt.Sprintf(
			"growing inode from `%d` to `%d` needs `%d` blocks; got `%d`",
			inode.Size,
			size,
			BlocksNeeded(inode, size),
			len(blocks),
		))
	}
	next := func() Block {
		block := blocks[0]
		blocks = blocks[1:]
		return block
	}

	current := DataBlocks(inode.Size)
	inode.Size = size
	total := DataBlocks(size)

	for current < math.Min(total, DirectBound) {
		inode.Direct[current] = next()
		current++
	}

	if total <= DirectBound {
		return nil
	}
	if current == DirectBound {
		inode.Indirect1 = next()
	}
	current -= DirectBound
	total -= DirectBound

	if current < math.Min(total, uint32(Indirect1BlocksCount)) {
		if err := cache.Modify(
			inode.Indirect1,
			0,
			BlockSize,
			func(p []byte) error {
				for current < math.Min(total, uint32(Indirect1BlocksCount)) {
					encode.PutPointer(p, int(current), next())
					current++
				}
				return nil
			},
		); err != nil {
			return fmt.Errorf(
				"filling singly indirect block `%d`: %w",
				inode.Indirect1,
				err,
			)
		}
	}

	if total <= uint32(Indirect1BlocksCount) {
		return nil
	}
	if current == uint32(Indirect1BlocksCount) {
		inode.Indirect2 = next()
	}
	current -= uint32(Indirect1BlocksCount)
	total -= uint32(Indirect1BlocksCount)

	// walk (a0, b0) up to (a1, b1) where a is the slot in the doubly
	// indirect block and b the slot in the singly indirect block below it
	per := uint32(Indirect1BlocksCount)
	a0, b0 := current/per, current%per
	a1, b1 := total/per, total%per
	if a0 == a1 && b0 == b1 {
		return nil
	}
	if err := cache.Modify(
		inode.Indirect2,
		0,
		BlockSize,
		func(p []byte) error {
			for a0 < a1 || (a0 == a1 && b0 < b1) {
				if b0 == 0 {
					encode.PutPointer(p, int(a0), next())
				}
				indirect1 := encode.GetPointer(p, int(a0))
				if err := cache.Modify(
					indirect1,
					Byte(b0)*BlockPointerSize,
					BlockPointerSize,
					func(q []byte) error {
						encode.PutPointer(q, 0, next())
						return nil
					},
				); err != nil {
					return fmt.Errorf(
						"filling singly indirect block `%d`: %w",
						indirect1,
						err,
					)
				}
				b0++
				if b0 == per {
					b0 = 0
					a0++
				}
			}
			return nil
		},
	); err != nil {
		return fmt.Errorf(
			"filling doubly indirect block `%d`: %w",
			inode.Indirect2,
			err,
		)
	}
	return nil
}

// ClearSize truncates `inode` to zero and returns every block it owned, data
// and index blocks alike, for the caller to free.
func ClearSize(cache *bcache.Manager, inode *DiskInode) ([]Block, error) {
	blocks := make([]Block, 0, TotalBlocks(inode.Size))
	data := DataBlocks(inode.Size)
	inode.Size = 0

	for i := uint32(0); i < math.Min(data, DirectBound); i++ {
		blocks = append(blocks, inode.Direct[i])
		inode.Direct[i] = BlockNil
	}

	if data <= DirectBound {
		return blocks, nil
	}
	blocks = append(blocks, inode.Indirect1)
	data -= DirectBound

	collect := func(block Block, count uint32) error {
		return cache.Read(block, 0, BlockSize, func(p []byte) error {
			for i := uint32(0); i < count; i++ {
				blocks = append(blocks, encode.GetPointer(p, int(i)))
			}
			return nil
		})
	}

	if err := collect(
		inode.Indirect1,
		math.Min(data, uint32(Indirect1BlocksCount)),
	); err != nil {
		return nil, fmt.Errorf(
			"collecting singly indirect block `%d`: %w",
			inode.Indirect1,
			err,
		)
	}
	inode.Indirect1 = BlockNil

	if data <= uint32(Indirect1BlocksCount) {
		return blocks, nil
	}
	blocks = append(blocks, inode.Indirect2)
	data -= uint32(Indirect1BlocksCount)

	per := uint32(Indirect1BlocksCount)
	a1, b1 := data/per, data%per
	var indirect1s []Block
	if err := cache.Read(inode.Indirect2, 0, BlockSize, func(p []byte) error {
		for a := uint32(0); a < a1; a++ {
			indirect1s = append(indirect1s, encode.GetPointer(p, int(a)))
		}
		if b1 > 0 {
			indirect1s = append(indirect1s, encode.GetPointer(p, int(a1)))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf(
			"collecting doubly indirect block `%d`: %w",
			inode.Indirect2,
			err,
		)
	}
	for i, indirect1 := range indirect1s {
		count := per
		if uint32(i) == a1 {
			count = b1
		}
		blocks = append(blocks, indirect1)
		if err := collect(indirect1, count); err != nil {
			return nil, fmt.Errorf(
				"collecting singly indirect block `%d`: %w",
				indirect1,
				err,
			)
		}
	}
	inode.Indirect2 = BlockNil
	return blocks, nil
}
