package io

import (
	"fmt"
	"os"
	"sync"

	. "github.com/weberc2/easyfs/pkg/types"
)

// FileDevice is a block device backed by a host image file.
type FileDevice struct {
	mutex sync.Mutex
	file  *os.File
}

// OpenFileDevice opens the image at `path`. When `blocks` is non-zero the
// file is created if missing and resized to hold exactly that many blocks;
// otherwise it must already exist.
func OpenFileDevice(path string, blocks Block) (*FileDevice, error) {
	flags := os.O_RDWR
	if blocks > 0 {
		flags |= os.O_CREATE
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening image `%s`: %w", path, err)
	}
	if blocks > 0 {
		if err := file.Truncate(int64(Byte(blocks) * BlockSize)); err != nil {
			file.Close()
			return nil, fmt.Errorf(
				"resizing image `%s` to `%d` blocks: %w",
				path,
				blocks,
				err,
			)
		}
	}
	return &FileDevice{file: file}, nil
}

func (d *FileDevice) ReadBlock(block Block, p *[BlockSize]byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, err := d.file.ReadAt(p[:], int64(Byte(block)*BlockSize)); err != nil {
		return fmt.Errorf(
			"reading block `%d` from `%s`: %w",
			block,
			d.file.Name(),
			err,
		)
	}
	return nil
}

func (d *FileDevice) WriteBlock(block Block, p *[BlockSize]byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, err := d.file.WriteAt(p[:], int64(Byte(block)*BlockSize)); err != nil {
		return fmt.Errorf(
			"writing block `%d` to `%s`: %w",
			block,
			d.file.Name(),
			err,
		)
	}
	return nil
}

func (d *FileDevice) Blocks() Block {
	info, err := d.file.Stat()
	if err != nil {
		return 0
	}
	return Block(Byte(info.Size()) / BlockSize)
}

func (d *FileDevice) Sync() error { return d.file.Sync() }

func (d *FileDevice) Close() error { return d.file.Close() }
