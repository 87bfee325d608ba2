package io

import (
	"sync/atomic"

	. "github.com/weberc2/easyfs/pkg/types"
)

// CountingDevice counts the block transfers that reach `Inner`.
type CountingDevice struct {
	Inner  BlockDevice
	reads  atomic.Uint64
	writes atomic.Uint64
}

func (d *CountingDevice) ReadBlock(block Block, p *[BlockSize]byte) error {
	d.reads.Add(1)
	return d.Inner.ReadBlock(block, p)
}

func (d *CountingDevice) WriteBlock(block Block, p *[BlockSize]byte) error {
	d.writes.Add(1)
	return d.Inner.WriteBlock(block, p)
}

func (d *CountingDevice) Reads() uint64 { return d.reads.Load() }

func (d *CountingDevice) Writes() uint64 { return d.writes.Load() }
