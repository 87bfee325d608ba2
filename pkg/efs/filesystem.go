package efs

import (
	"errors"
	"fmt"
	stdio "io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/easyfs/pkg/alloc"
	"github.com/weberc2/easyfs/pkg/bcache"
	"github.com/weberc2/easyfs/pkg/encode"
	"github.com/weberc2/easyfs/pkg/io"
	"github.com/weberc2/easyfs/pkg/layout"
	"github.com/weberc2/easyfs/pkg/math"
	. "github.com/weberc2/easyfs/pkg/types"
)

const (
	ErrInvalidMagic   ConstError = "invalid superblock magic"
	ErrOutOfInodes    ConstError = "out of inodes"
	ErrOutOfBlocks    ConstError = "out of data blocks"
	ErrVolumeTooSmall ConstError = "volume too small"
	ErrDeviceTooSmall ConstError = "device smaller than volume"
	ErrCacheTooSmall  ConstError = "block cache too small"

	// MinCacheCapacity is the deepest nesting of held blocks: an inode
	// block, its doubly indirect block, a singly indirect block below it
	// and a data block.
	MinCacheCapacity = 4
)

type Options struct {
	CacheCapacity int
	Logger        logrus.FieldLogger
}

func (options *Options) logger() logrus.FieldLogger {
	if options != nil && options.Logger != nil {
		return options.Logger
	}
	logger := logrus.New()
	logger.SetOutput(stdio.Discard)
	return logger
}

func (options *Options) cache(device io.BlockDevice) (*bcache.Manager, error) {
	var cacheOptions bcache.Options
	if options != nil {
		if options.CacheCapacity > 0 &&
			options.CacheCapacity < MinCacheCapacity {
			return nil, fmt.Errorf(
				"cache capacity `%d` below `%d`: %w",
				options.CacheCapacity,
				MinCacheCapacity,
				ErrCacheTooSmall,
			)
		}
		cacheOptions = bcache.Options{
			Capacity: options.CacheCapacity,
			Logger:   options.Logger,
		}
	}
	return bcache.New(device, &cacheOptions), nil
}

// FileSystem is a formatted volume. Its bitmaps and inode table are only
// consistent while the caller holds the lock (see `Lock`); the directory
// layer takes it for the duration of each operation.
type FileSystem struct {
	mutex sync.Mutex

	cache          *bcache.Manager
	superBlock     SuperBlock
	inodeBitmap    alloc.Bitmap
	dataBitmap     alloc.Bitmap
	inodeAreaStart Block
	dataAreaStart  Block
	logger         logrus.FieldLogger
}

// Create formats `device` as a volume of `totalBlocks` blocks whose inode
// bitmap spans `inodeBitmapBlocks` blocks, and creates the root directory
// as inode 0.
func Create(
	device io.BlockDevice,
	totalBlocks uint32,
	inodeBitmapBlocks uint32,
	options *Options,
) (*FileSystem, error) {
	sb, err := geometry(totalBlocks, inodeBitmapBlocks)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem: %w", err)
	}
	cache, err := options.cache(device)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem: %w", err)
	}
	if sizer, ok := device.(io.Sizer); ok &&
		sizer.Blocks() > 0 &&
		uint32(sizer.Blocks()) < totalBlocks {
		return nil, fmt.Errorf(
			"creating filesystem of `%d` blocks on a device of `%d`: %w",
			totalBlocks,
			sizer.Blocks(),
			ErrDeviceTooSmall,
		)
	}

	// nothing is cached yet, so zero the device directly
	var zero [BlockSize]byte
	for block := Block(0); block < Block(totalBlocks); block++ {
		if err := device.WriteBlock(block, &zero); err != nil {
			return nil, fmt.Errorf(
				"creating filesystem: zeroing block `%d`: %w",
				block,
				err,
			)
		}
	}

	fs := newFileSystem(cache, sb, options.logger())
	if err := fs.cache.Modify(
		SuperBlockBlock,
		0,
		SuperBlockSize,
		func(p []byte) error {
			encode.EncodeSuperBlock(&sb, p)
			return nil
		},
	); err != nil {
		return nil, fmt.Errorf("creating filesystem: writing superblock: %w", err)
	}

	root, err := fs.AllocInode()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem: allocating root: %w", err)
	}
	if root != InoRoot {
		panic(fmt.Sprintf("root allocated as inode `%d`", root))
	}
	block, offset := fs.DiskInodePos(root)
	if err := layout.ModifyDiskInode(
		fs.cache,
		block,
		offset,
		func(inode *DiskInode) error {
			inode.Initialize(DiskInodeTypeDirectory)
			return nil
		},
	); err != nil {
		return nil, fmt.Errorf("creating filesystem: initializing root: %w", err)
	}
	if err := fs.Sync(); err != nil {
		return nil, fmt.Errorf("creating filesystem: %w", err)
	}

	fs.logger.WithFields(logrus.Fields{
		"totalBlocks":       sb.TotalBlocks,
		"inodeBitmapBlocks": sb.InodeBitmapBlocks,
		"inodeAreaBlocks":   sb.InodeAreaBlocks,
		"dataBitmapBlocks":  sb.DataBitmapBlocks,
		"dataAreaBlocks":    sb.DataAreaBlocks,
	}).Info("created filesystem")
	return fs, nil
}

// Open loads the volume on `device`, failing with `ErrInvalidMagic` if the
// device holds no volume.
func Open(device io.BlockDevice, options *Options) (*FileSystem, error) {
	cache, err := options.cache(device)
	if err != nil {
		return nil, fmt.Errorf("opening filesystem: %w", err)
	}
	var sb SuperBlock
	if err := cache.Read(
		SuperBlockBlock,
		0,
		SuperBlockSize,
		func(p []byte) error {
			encode.DecodeSuperBlock(&sb, p)
			return nil
		},
	); err != nil {
		return nil, fmt.Errorf("opening filesystem: reading superblock: %w", err)
	}
	if !sb.IsValid() {
		return nil, fmt.Errorf(
			"opening filesystem: found magic `%#x`: %w",
			sb.Magic,
			ErrInvalidMagic,
		)
	}

	fs := newFileSystem(cache, sb, options.logger())
	fs.logger.WithFields(logrus.Fields{
		"totalBlocks":    sb.TotalBlocks,
		"dataAreaBlocks": sb.DataAreaBlocks,
	}).Info("opened filesystem")
	return fs, nil
}

func newFileSystem(
	cache *bcache.Manager,
	sb SuperBlock,
	logger logrus.FieldLogger,
) *FileSystem {
	inodeAreaStart := Block(1 + sb.InodeBitmapBlocks)
	dataBitmapStart := inodeAreaStart + Block(sb.InodeAreaBlocks)
	return &FileSystem{
		cache:          cache,
		superBlock:     sb,
		inodeBitmap:    alloc.New(1, Block(sb.InodeBitmapBlocks)),
		dataBitmap:     alloc.New(dataBitmapStart, Block(sb.DataBitmapBlocks)),
		inodeAreaStart: inodeAreaStart,
		dataAreaStart:  dataBitmapStart + Block(sb.DataBitmapBlocks),
		logger:         logger,
	}
}

// geometry lays out a volume: the superblock, the inode bitmap, enough
// inode blocks for every inode bit, then the data bitmap and the data area.
// One data bitmap block covers itself plus 4096 data blocks.
func geometry(totalBlocks, inodeBitmapBlocks uint32) (SuperBlock, error) {
	if inodeBitmapBlocks == 0 {
		return SuperBlock{}, fmt.Errorf(
			"inode bitmap of `0` blocks: %w",
			ErrVolumeTooSmall,
		)
	}
	inodes := inodeBitmapBlocks * uint32(BitsPerBlock)
	inodeAreaBlocks := math.DivRoundUp(inodes*uint32(InodeSize), uint32(BlockSize))
	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks

	// the data region needs at least one bitmap block and one data block
	if totalBlocks < 1+inodeTotalBlocks+2 {
		return SuperBlock{}, fmt.Errorf(
			"`%d` blocks with `%d` inode bitmap blocks needs at least `%d`: %w",
			totalBlocks,
			inodeBitmapBlocks,
			1+inodeTotalBlocks+2,
			ErrVolumeTooSmall,
		)
	}
	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := (dataTotalBlocks + uint32(BitsPerBlock)) /
		(uint32(BitsPerBlock) + 1)
	return NewSuperBlock(
		totalBlocks,
		inodeBitmapBlocks,
		inodeAreaBlocks,
		dataBitmapBlocks,
		dataTotalBlocks-dataBitmapBlocks,
	), nil
}

// Lock serializes structural changes to the volume.
func (fs *FileSystem) Lock() { fs.mutex.Lock() }

func (fs *FileSystem) Unlock() { fs.mutex.Unlock() }

func (fs *FileSystem) Cache() *bcache.Manager { return fs.cache }

func (fs *FileSystem) SuperBlock() SuperBlock { return fs.superBlock }

func (fs *FileSystem) Logger() logrus.FieldLogger { return fs.logger }

func (fs *FileSystem) InodeAreaStart() Block { return fs.inodeAreaStart }

func (fs *FileSystem) DataAreaStart() Block { return fs.dataAreaStart }

// DiskInodePos locates the on-disk record of inode `ino`.
func (fs *FileSystem) DiskInodePos(ino Ino) (Block, Byte) {
	block := fs.inodeAreaStart + Block(uint32(ino)/uint32(InodesPerBlock))
	offset := Byte(uint32(ino)%uint32(InodesPerBlock)) * InodeSize
	return block, offset
}

// InodeID is the inverse of `DiskInodePos`.
func (fs *FileSystem) InodeID(block Block, offset Byte) Ino {
	return Ino(uint32(block-fs.inodeAreaStart)*uint32(InodesPerBlock) +
		uint32(offset/InodeSize))
}

// DataBlockID converts a data-area relative index to a device block.
func (fs *FileSystem) DataBlockID(index uint32) Block {
	return fs.dataAreaStart + Block(index)
}

// AllocInode reserves an inode number. The caller must hold the lock.
func (fs *FileSystem) AllocInode() (Ino, error) {
	bit, err := fs.inodeBitmap.Alloc(fs.cache)
	if err != nil {
		if errors.Is(err, alloc.ErrExhausted) {
			return 0, ErrOutOfInodes
		}
		return 0, fmt.Errorf("allocating inode: %w", err)
	}
	return Ino(bit), nil
}

// DeallocInode releases an inode number without touching its record.
func (fs *FileSystem) DeallocInode(ino Ino) error {
	if err := fs.inodeBitmap.Dealloc(fs.cache, uint32(ino)); err != nil {
		return fmt.Errorf("freeing inode `%d`: %w", ino, err)
	}
	return nil
}

// InodeAllocated reports whether `ino` names an allocated inode.
func (fs *FileSystem) InodeAllocated(ino Ino) (bool, error) {
	if uint32(ino) >= fs.inodeBitmap.Maximum() {
		return false, nil
	}
	allocated, err := fs.inodeBitmap.IsSet(fs.cache, uint32(ino))
	if err != nil {
		return false, fmt.Errorf("checking inode `%d`: %w", ino, err)
	}
	return allocated, nil
}

// AllocData reserves a data block and returns its device block id. The
// caller must hold the lock.
func (fs *FileSystem) AllocData() (Block, error) {
	bit, err := fs.dataBitmap.Alloc(fs.cache)
	if err != nil {
		if errors.Is(err, alloc.ErrExhausted) {
			return BlockNil, ErrOutOfBlocks
		}
		return BlockNil, fmt.Errorf("allocating data block: %w", err)
	}
	if bit >= fs.superBlock.DataAreaBlocks {
		// the last bitmap block tracks more bits than there are data blocks
		if err := fs.dataBitmap.Dealloc(fs.cache, bit); err != nil {
			return BlockNil, fmt.Errorf("allocating data block: %w", err)
		}
		return BlockNil, ErrOutOfBlocks
	}
	return fs.DataBlockID(bit), nil
}

// AllocDataBlocks reserves `n` data blocks, or none if they are not all
// available.
func (fs *FileSystem) AllocDataBlocks(n uint32) ([]Block, error) {
	blocks := make([]Block, 0, n)
	for i := uint32(0); i < n; i++ {
		block, err := fs.AllocData()
		if err != nil {
			for _, allocated := range blocks {
				if err := fs.DeallocData(allocated); err != nil {
					return nil, fmt.Errorf(
						"rolling back data block allocation: %w",
						err,
					)
				}
			}
			return nil, fmt.Errorf("allocating `%d` data blocks: %w", n, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// DeallocData zeroes `block` and returns it to the data bitmap.
func (fs *FileSystem) DeallocData(block Block) error {
	if block < fs.dataAreaStart ||
		uint32(block-fs.dataAreaStart) >= fs.superBlock.DataAreaBlocks {
		panic(fmt.Sprintf("freeing block `%d` outside the data area", block))
	}
	if err := fs.cache.Modify(block, 0, BlockSize, func(p []byte) error {
		clear(p)
		return nil
	}); err != nil {
		return fmt.Errorf("freeing data block `%d`: zeroing: %w", block, err)
	}
	if err := fs.dataBitmap.Dealloc(
		fs.cache,
		uint32(block-fs.dataAreaStart),
	); err != nil {
		return fmt.Errorf("freeing data block `%d`: %w", block, err)
	}
	return nil
}

// Sync writes every dirty cached block back to the device.
func (fs *FileSystem) Sync() error {
	if err := fs.cache.SyncAll(); err != nil {
		return fmt.Errorf("syncing filesystem: %w", err)
	}
	return nil
}

// Close syncs the volume and drops the cache. The device is left open.
func (fs *FileSystem) Close() error {
	if err := fs.cache.Close(); err != nil {
		return fmt.Errorf("closing filesystem: %w", err)
	}
	fs.logger.Debug("closed filesystem")
	return nil
}

type Usage struct {
	Inodes         uint32 `json:"inodes"`
	InodesFree     uint32 `json:"inodesFree"`
	DataBlocks     uint32 `json:"dataBlocks"`
	DataBlocksFree uint32 `json:"dataBlocksFree"`
}

// Usage counts allocated inodes and data blocks.
func (fs *FileSystem) Usage() (Usage, error) {
	fs.Lock()
	defer fs.Unlock()
	inodes, err := fs.inodeBitmap.Count(fs.cache)
	if err != nil {
		return Usage{}, fmt.Errorf("counting inodes: %w", err)
	}
	data, err := fs.dataBitmap.Count(fs.cache)
	if err != nil {
		return Usage{}, fmt.Errorf("counting data blocks: %w", err)
	}
	return Usage{
		Inodes:         fs.inodeBitmap.Maximum(),
		InodesFree:     fs.inodeBitmap.Maximum() - inodes,
		DataBlocks:     fs.superBlock.DataAreaBlocks,
		DataBlocksFree: fs.superBlock.DataAreaBlocks - data,
	}, nil
}
