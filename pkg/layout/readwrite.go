package layout

import (
	"fmt"

	"github.com/weberc2/easyfs/pkg/bcache"
	"github.com/weberc2/easyfs/pkg/math"
	. "github.com/weberc2/easyfs/pkg/types"
)

// ReadAt copies bytes from `inode` starting at `offset` into `p`, stopping
// at the inode's size, and returns the number of bytes read.
func ReadAt(
	cache *bcache.Manager,
	inode *DiskInode,
	offset Byte,
	p []byte,
) (Byte, error) {
	return walk(
		cache,
		inode,
		offset,
		Byte(len(p)),
		func(block Block, start, done, size Byte) error {
			return cache.Read(block, start, size, func(src []byte) error {
				copy(p[done:done+size], src)
				return nil
			})
		},
	)
}

// WriteAt copies `p` into `inode` starting at `offset`. It never writes past
// the inode's size; callers grow the inode first with `IncreaseSize`.
func WriteAt(
	cache *bcache.Manager,
	inode *DiskInode,
	offset Byte,
	p []byte,
) (Byte, error) {
	return walk(
		cache,
		inode,
		offset,
		Byte(len(p)),
		func(block Block, start, done, size Byte) error {
			return cache.Modify(block, start, size, func(dst []byte) error {
				copy(dst, p[done:done+size])
				return nil
			})
		},
	)
}

// walk visits the block-sized pieces of [offset, offset+length) clamped to
// the inode's size. `f` gets the device block, the offset within it, the
// number of bytes already visited and the length of the piece.
func walk(
	cache *bcache.Manager,
	inode *DiskInode,
	offset Byte,
	length Byte,
	f func(block Block, start, done, size Byte) error,
) (Byte, error) {
	start := offset
	end := math.Min(offset+length, Byte(inode.Size))
	if start >= end {
		return 0, nil
	}

	var done Byte
	for start < end {
		blockEnd := math.Min((start/BlockSize+1)*BlockSize, end)
		size := blockEnd - start
		inner := uint32(start / BlockSize)
		block, err := BlockID(cache, inode, inner)
		if err != nil {
			return done, fmt.Errorf("resolving inner block `%d`: %w", inner, err)
		}
		if err := f(block, start%BlockSize, done, size); err != nil {
			return done, fmt.Errorf("accessing block `%d`: %w", block, err)
		}
		done += size
		start = blockEnd
	}
	return done, nil
}
