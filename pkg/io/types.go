package io

import (
	. "github.com/weberc2/easyfs/pkg/types"
)

// BlockDevice transfers whole blocks. Implementations either move exactly
// `BlockSize` bytes or return an error; there are no partial transfers.
type BlockDevice interface {
	ReadBlock(block Block, p *[BlockSize]byte) error
	WriteBlock(block Block, p *[BlockSize]byte) error
}

// Sizer is implemented by devices that know how many blocks they hold. A
// size of zero means unknown.
type Sizer interface {
	Blocks() Block
}

const (
	ErrOutOfRange ConstError = "block out of range"
)
