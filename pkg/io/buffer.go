package io

import (
	"fmt"
	"sync"

	. "github.com/weberc2/easyfs/pkg/types"
)

// Buffer is an in-memory block device.
type Buffer struct {
	mutex sync.Mutex
	data  []byte
}

func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// NewMemoryDevice allocates a zeroed buffer of `blocks` blocks.
func NewMemoryDevice(blocks Block) *Buffer {
	return NewBuffer(make([]byte, Byte(blocks)*BlockSize))
}

func (b *Buffer) ReadBlock(block Block, p *[BlockSize]byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	start, err := b.offset(block)
	if err != nil {
		return fmt.Errorf("reading block `%d` from buffer: %w", block, err)
	}
	copy(p[:], b.data[start:start+BlockSize])
	return nil
}

func (b *Buffer) WriteBlock(block Block, p *[BlockSize]byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	start, err := b.offset(block)
	if err != nil {
		return fmt.Errorf("writing block `%d` to buffer: %w", block, err)
	}
	copy(b.data[start:start+BlockSize], p[:])
	return nil
}

func (b *Buffer) Blocks() Block { return Block(Byte(len(b.data)) / BlockSize) }

// Bytes returns the underlying storage; callers must not write to it while
// the device is in use.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) offset(block Block) (Byte, error) {
	start := Byte(block) * BlockSize
	if start+BlockSize > Byte(len(b.data)) {
		return 0, ErrOutOfRange
	}
	return start, nil
}
