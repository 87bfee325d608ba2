package alloc

import (
	"fmt"
	"math/bits"

	"github.com/weberc2/easyfs/pkg/bcache"
	"github.com/weberc2/easyfs/pkg/encode"
	. "github.com/weberc2/easyfs/pkg/types"
)

const ErrExhausted ConstError = "bitmap exhausted"

// Bitmap tracks allocation over `blocks` consecutive bitmap blocks starting
// at `start`. Bit indices are relative to the bitmap, not the device.
type Bitmap struct {
	start  Block
	blocks Block
}

func New(start, blocks Block) Bitmap {
	return Bitmap{start: start, blocks: blocks}
}

func (bm Bitmap) Start() Block { return bm.start }

func (bm Bitmap) Blocks() Block { return bm.blocks }

// Maximum is the number of bits the bitmap can track.
func (bm Bitmap) Maximum() uint32 {
	return uint32(bm.blocks) * uint32(BitsPerBlock)
}

// Alloc sets the lowest clear bit and returns its index. Blocks are scanned
// in order, then words within a block, then bits within a word.
func (bm Bitmap) Alloc(cache *bcache.Manager) (uint32, error) {
	for offset := Block(0); offset < bm.blocks; offset++ {
		var (
			bit   uint32
			found bool
		)
		if err := cache.Modify(
			bm.start+offset,
			0,
			BlockSize,
			func(p []byte) error {
				for word := 0; word < encode.WordsPerBlock; word++ {
					w := encode.GetWord(p, word)
					if w == ^uint64(0) {
						continue
					}
					inner := bits.TrailingZeros64(^w)
					encode.PutWord(p, word, w|1<<inner)
					bit = uint32(offset)*uint32(BitsPerBlock) +
						uint32(word*encode.WordBits+inner)
					found = true
					return nil
				}
				return nil
			},
		); err != nil {
			return 0, fmt.Errorf(
				"allocating from bitmap block `%d`: %w",
				bm.start+offset,
				err,
			)
		}
		if found {
			return bit, nil
		}
	}
	return 0, ErrExhausted
}

// Dealloc clears `bit`. Clearing a bit that is not set panics.
func (bm Bitmap) Dealloc(cache *bcache.Manager, bit uint32) error {
	block, word, inner := bm.decompose(bit)
	if err := cache.Modify(block, 0, BlockSize, func(p []byte) error {
		w := encode.GetWord(p, word)
		if w&(1<<inner) == 0 {
			panic(fmt.Sprintf("freeing unallocated bit `%d`", bit))
		}
		encode.PutWord(p, word, w&^(1<<inner))
		return nil
	}); err != nil {
		return fmt.Errorf("freeing bit `%d`: %w", bit, err)
	}
	return nil
}

// IsSet reports whether `bit` is allocated.
func (bm Bitmap) IsSet(cache *bcache.Manager, bit uint32) (bool, error) {
	block, word, inner := bm.decompose(bit)
	var set bool
	if err := cache.Read(block, 0, BlockSize, func(p []byte) error {
		set = encode.GetWord(p, word)&(1<<inner) != 0
		return nil
	}); err != nil {
		return false, fmt.Errorf("reading bit `%d`: %w", bit, err)
	}
	return set, nil
}

// Count returns the number of allocated bits.
func (bm Bitmap) Count(cache *bcache.Manager) (uint32, error) {
	var count uint32
	for offset := Block(0); offset < bm.blocks; offset++ {
		if err := cache.Read(
			bm.start+offset,
			0,
			BlockSize,
			func(p []byte) error {
				for word := 0; word < encode.WordsPerBlock; word++ {
					count += uint32(bits.OnesCount64(encode.GetWord(p, word)))
				}
				return nil
			},
		); err != nil {
			return 0, fmt.Errorf(
				"counting bitmap block `%d`: %w",
				bm.start+offset,
				err,
			)
		}
	}
	return count, nil
}

func (bm Bitmap) decompose(bit uint32) (Block, int, int) {
	if bit >= bm.Maximum() {
		panic(fmt.Sprintf(
			"bit `%d` out of range for bitmap of `%d` bits",
			bit,
			bm.Maximum(),
		))
	}
	block := bm.start + Block(bit/uint32(BitsPerBlock))
	bit %= uint32(BitsPerBlock)
	return block, int(bit / encode.WordBits), int(bit % encode.WordBits)
}
