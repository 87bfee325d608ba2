package io

import (
	"fmt"

	. "github.com/weberc2/easyfs/pkg/types"
)

// OffsetDevice exposes the blocks of `inner` starting at `offset` as a
// device of its own, e.g. a volume that lives after a boot area.
type OffsetDevice struct {
	inner  BlockDevice
	offset Block
}

func NewOffsetDevice(inner BlockDevice, offset Block) *OffsetDevice {
	return &OffsetDevice{inner: inner, offset: offset}
}

func (d *OffsetDevice) ReadBlock(block Block, p *[BlockSize]byte) error {
	if err := d.inner.ReadBlock(block+d.offset, p); err != nil {
		return fmt.Errorf(
			"reading block `%d` from base offset `%d` (absolute block "+
				"`%d`): %w",
			block,
			d.offset,
			block+d.offset,
			err,
		)
	}
	return nil
}

func (d *OffsetDevice) WriteBlock(block Block, p *[BlockSize]byte) error {
	if err := d.inner.WriteBlock(block+d.offset, p); err != nil {
		return fmt.Errorf(
			"writing block `%d` from base offset `%d` (absolute block "+
				"`%d`): %w",
			block,
			d.offset,
			block+d.offset,
			err,
		)
	}
	return nil
}

func (d *OffsetDevice) Blocks() Block {
	if sizer, ok := d.inner.(Sizer); ok {
		if total := sizer.Blocks(); total > d.offset {
			return total - d.offset
		}
	}
	return 0
}
