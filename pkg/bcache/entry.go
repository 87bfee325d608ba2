package bcache

import (
	"fmt"
	"sync"

	"github.com/weberc2/easyfs/pkg/io"
	. "github.com/weberc2/easyfs/pkg/types"
)

// Entry is one cached block. It is shared by the `Manager` and every
// caller that currently holds it (see `Manager.Get`); its bytes are guarded
// by a per-entry mutex.
type Entry struct {
	block  Block
	device io.BlockDevice

	// refs counts holders outside the manager; guarded by the manager's
	// mutex. An entry is evictable only at zero.
	refs int

	mutex sync.Mutex
	data  [BlockSize]byte
	dirty bool
}

// Read calls `f` with the `size` bytes at `offset`. `f` must not retain the
// slice.
func (e *Entry) Read(offset, size Byte, f func(p []byte) error) error {
	checkView(e.block, offset, size)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return f(e.data[offset : offset+size])
}

// Modify is like `Read` but the slice is writable and the entry is marked
// dirty.
func (e *Entry) Modify(offset, size Byte, f func(p []byte) error) error {
	checkView(e.block, offset, size)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.dirty = true
	return f(e.data[offset : offset+size])
}

func (e *Entry) Dirty() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.dirty
}

// Sync writes the block back iff it is dirty.
func (e *Entry) Sync() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.syncLocked()
}

func (e *Entry) syncLocked() error {
	if !e.dirty {
		return nil
	}
	if err := e.device.WriteBlock(e.block, &e.data); err != nil {
		return fmt.Errorf("syncing cached block `%d`: %w", e.block, err)
	}
	e.dirty = false
	return nil
}

func checkView(block Block, offset, size Byte) {
	if offset < 0 || size < 0 || offset+size > BlockSize {
		panic(fmt.Sprintf(
			"view of `%d` bytes at offset `%d` exceeds block `%d`",
			size,
			offset,
			block,
		))
	}
}
