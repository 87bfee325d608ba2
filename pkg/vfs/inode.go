package vfs

import (
	"fmt"

	"github.com/weberc2/easyfs/pkg/efs"
	"github.com/weberc2/easyfs/pkg/layout"
	. "github.com/weberc2/easyfs/pkg/types"
)

// Inode is a handle on an on-disk inode. Handles hold no inode state of
// their own: every access decodes the record from its cached block, so any
// number of handles on the same inode stay consistent.
type Inode struct {
	block  Block
	offset Byte
	fs     *efs.FileSystem
}

// Root returns the handle of the root directory.
func Root(fs *efs.FileSystem) *Inode {
	return handle(fs, InoRoot)
}

func handle(fs *efs.FileSystem, ino Ino) *Inode {
	block, offset := fs.DiskInodePos(ino)
	return &Inode{block: block, offset: offset, fs: fs}
}

func (inode *Inode) FileSystem() *efs.FileSystem { return inode.fs }

// ID recovers the inode number from the handle's position.
func (inode *Inode) ID() Ino {
	return inode.fs.InodeID(inode.block, inode.offset)
}

func (inode *Inode) IsDir() (bool, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()
	disk, err := inode.read()
	if err != nil {
		return false, err
	}
	return disk.IsDir(), nil
}

// Size is the length of the inode's content in bytes.
func (inode *Inode) Size() (uint32, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()
	disk, err := inode.read()
	if err != nil {
		return 0, err
	}
	return disk.Size, nil
}

// ReadAt reads up to `len(p)` bytes at `offset` and returns how many were
// read. Reading at or past the end reads nothing.
func (inode *Inode) ReadAt(offset Byte, p []byte) (Byte, error) {
	if offset < 0 {
		return 0, fmt.Errorf("reading at `%d`: %w", offset, ErrInvalidOffset)
	}

	inode.fs.Lock()
	defer inode.fs.Unlock()
	disk, err := inode.read()
	if err != nil {
		return 0, err
	}
	if disk.IsDir() {
		return 0, fmt.Errorf("reading inode `%d`: %w", inode.ID(), ErrIsDir)
	}
	n, err := layout.ReadAt(inode.fs.Cache(), &disk, offset, p)
	if err != nil {
		return n, fmt.Errorf("reading inode `%d`: %w", inode.ID(), err)
	}
	return n, nil
}

// WriteAt writes `p` at `offset`, growing the file as needed, and syncs the
// volume.
func (inode *Inode) WriteAt(offset Byte, p []byte) (Byte, error) {
	if offset < 0 {
		return 0, fmt.Errorf("writing at `%d`: %w", offset, ErrInvalidOffset)
	}
	if uint64(offset)+uint64(len(p)) > layout.MaxSize {
		return 0, fmt.Errorf(
			"writing `%d` bytes at `%d`: %w",
			len(p),
			offset,
			ErrFileTooLarge,
		)
	}

	inode.fs.Lock()
	defer inode.fs.Unlock()

	var n Byte
	var writeErr error
	if err := inode.modify(func(disk *DiskInode) error {
		if disk.IsDir() {
			return ErrIsDir
		}
		if err := inode.grow(disk, uint32(offset)+uint32(len(p))); err != nil {
			return err
		}
		// the grown inode indexes zeroed blocks, so keep it even if the
		// copy fails
		n, writeErr = layout.WriteAt(inode.fs.Cache(), disk, offset, p)
		return nil
	}); err != nil {
		return n, fmt.Errorf("writing inode `%d`: %w", inode.ID(), err)
	}
	if writeErr != nil {
		return n, fmt.Errorf("writing inode `%d`: %w", inode.ID(), writeErr)
	}
	if err := inode.fs.Sync(); err != nil {
		return n, fmt.Errorf("writing inode `%d`: %w", inode.ID(), err)
	}
	return n, nil
}

// Clear truncates the file to zero bytes and frees its blocks.
func (inode *Inode) Clear() error {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	var blocks []Block
	if err := inode.modify(func(disk *DiskInode) error {
		if disk.IsDir() {
			return ErrIsDir
		}
		var err error
		blocks, err = inode.clear(disk)
		return err
	}); err != nil {
		return fmt.Errorf("clearing inode `%d`: %w", inode.ID(), err)
	}
	// the truncated inode is already stored, so a failure here only leaks
	for _, block := range blocks {
		if err := inode.fs.DeallocData(block); err != nil {
			return fmt.Errorf("clearing inode `%d`: %w", inode.ID(), err)
		}
	}
	if err := inode.fs.Sync(); err != nil {
		return fmt.Errorf("clearing inode `%d`: %w", inode.ID(), err)
	}
	return nil
}

func (inode *Inode) read() (DiskInode, error) {
	return layout.ReadDiskInode(inode.fs.Cache(), inode.block, inode.offset)
}

func (inode *Inode) modify(f func(disk *DiskInode) error) error {
	return layout.ModifyDiskInode(
		inode.fs.Cache(),
		inode.block,
		inode.offset,
		f,
	)
}

// grow extends `disk` to `size` bytes, allocating every block it needs up
// front. On failure nothing stays allocated and `disk` is unchanged.
func (inode *Inode) grow(disk *DiskInode, size uint32) error {
	if size <= disk.Size {
		return nil
	}
	blocks, err := inode.fs.AllocDataBlocks(layout.BlocksNeeded(disk, size))
	if err != nil {
		return fmt.Errorf("growing to `%d` bytes: %w", size, err)
	}
	grown := *disk
	if err := layout.IncreaseSize(inode.fs.Cache(), &grown, size, blocks); err != nil {
		for _, block := range blocks {
			if err := inode.fs.DeallocData(block); err != nil {
				return fmt.Errorf(
					"growing to `%d` bytes: rolling back: %w",
					size,
					err,
				)
			}
		}
		return fmt.Errorf("growing to `%d` bytes: %w", size, err)
	}
	*disk = grown
	return nil
}

// clear truncates `disk` and returns the blocks it owned, for the caller to
// free once the truncated inode is stored.
func (inode *Inode) clear(disk *DiskInode) ([]Block, error) {
	size := disk.Size
	blocks, err := layout.ClearSize(inode.fs.Cache(), disk)
	if err != nil {
		return nil, err
	}
	if uint32(len(blocks)) != layout.TotalBlocks(size) {
		panic(fmt.Sprintf(
			"clearing `%d` bytes freed `%d` blocks; wanted `%d`",
			size,
			len(blocks),
			layout.TotalBlocks(size),
		))
	}
	return blocks, nil
}
