package encode

import (
	. "github.com/weberc2/easyfs/pkg/types"
)

// An index block is `PointersPerBlock` little-endian block pointers.

func GetPointer(b []byte, index int) Block {
	return getBlock(b, Byte(index)*BlockPointerSize)
}

func PutPointer(b []byte, index int, block Block) {
	putBlock(b, Byte(index)*BlockPointerSize, block)
}

// A bitmap block is 64 little-endian 64-bit words.

const (
	WordBits      = 64
	WordsPerBlock = int(BlockSize) / 8
)

func GetWord(b []byte, index int) uint64 {
	return getU64(b, Byte(index)*8)
}

func PutWord(b []byte, index int, word uint64) {
	putU64(b, Byte(index)*8, word)
}
