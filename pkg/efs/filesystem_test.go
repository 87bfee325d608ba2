package efs

import (
	"errors"
	"testing"

	"github.com/weberc2/easyfs/pkg/io"
	"github.com/weberc2/easyfs/pkg/layout"
	. "github.com/weberc2/easyfs/pkg/types"
)

// smallVolume has one inode bitmap block and a data area of `data` blocks.
func smallVolume(t *testing.T, data uint32) (*FileSystem, *io.Buffer) {
	t.Helper()
	// superblock + inode bitmap + inode area + data bitmap
	total := 1 + 1 + 1024 + 1 + data
	device := io.NewMemoryDevice(Block(total))
	fs, err := Create(device, total, 1, nil)
	if err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}
	return fs, device
}

func TestGeometry(t *testing.T) {
	for _, testCase := range []struct {
		total, inodeBitmap uint32
		wanted             SuperBlock
		wantedErr          error
	}{{
		total:       32768,
		inodeBitmap: 1,
		wanted:      NewSuperBlock(32768, 1, 1024, 8, 31734),
	}, {
		total:       4096,
		inodeBitmap: 1,
		wanted:      NewSuperBlock(4096, 1, 1024, 1, 3069),
	}, {
		total:       1028,
		inodeBitmap: 1,
		wanted:      NewSuperBlock(1028, 1, 1024, 1, 1),
	}, {
		total:       1027,
		inodeBitmap: 1,
		wantedErr:   ErrVolumeTooSmall,
	}, {
		total:       32768,
		inodeBitmap: 0,
		wantedErr:   ErrVolumeTooSmall,
	}} {
		found, err := geometry(testCase.total, testCase.inodeBitmap)
		if testCase.wantedErr != nil {
			if !errors.Is(err, testCase.wantedErr) {
				t.Fatalf(
					"geometry(%d, %d): wanted `%v`; found `%v`",
					testCase.total,
					testCase.inodeBitmap,
					testCase.wantedErr,
					err,
				)
			}
			continue
		}
		if err != nil {
			t.Fatalf("geometry(): unexpected err: %v", err)
		}
		if found != testCase.wanted {
			t.Fatalf("wanted `%s`; found `%s`", &testCase.wanted, &found)
		}
	}
}

func TestCreateOpen(t *testing.T) {
	device := io.NewMemoryDevice(32768)
	created, err := Create(device, 32768, 1, nil)
	if err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}
	if err := created.Close(); err != nil {
		t.Fatalf("FileSystem.Close(): unexpected err: %v", err)
	}

	fs, err := Open(device, nil)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}
	if fs.SuperBlock() != created.SuperBlock() {
		t.Fatalf(
			"wanted superblock `%s`; found `%s`",
			&created.superBlock,
			&fs.superBlock,
		)
	}
	if fs.InodeAreaStart() != 2 || fs.DataAreaStart() != 1034 {
		t.Fatalf(
			"wanted regions `2, 1034`; found `%d, %d`",
			fs.InodeAreaStart(),
			fs.DataAreaStart(),
		)
	}

	block, offset := fs.DiskInodePos(InoRoot)
	root, err := layout.ReadDiskInode(fs.Cache(), block, offset)
	if err != nil {
		t.Fatalf("ReadDiskInode(): unexpected err: %v", err)
	}
	if wanted := (DiskInode{Type: DiskInodeTypeDirectory}); root != wanted {
		t.Fatalf("wanted root `%+v`; found `%+v`", wanted, root)
	}

	usage, err := fs.Usage()
	if err != nil {
		t.Fatalf("FileSystem.Usage(): unexpected err: %v", err)
	}
	wanted := Usage{
		Inodes:         4096,
		InodesFree:     4095,
		DataBlocks:     31734,
		DataBlocksFree: 31734,
	}
	if usage != wanted {
		t.Fatalf("wanted usage `%+v`; found `%+v`", wanted, usage)
	}
}

func TestOpenInvalidMagic(t *testing.T) {
	if _, err := Open(io.NewMemoryDevice(64), nil); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("wanted `%v`; found `%v`", ErrInvalidMagic, err)
	}
}

func TestCreateDeviceTooSmall(t *testing.T) {
	_, err := Create(io.NewMemoryDevice(2048), 4096, 1, nil)
	if !errors.Is(err, ErrDeviceTooSmall) {
		t.Fatalf("wanted `%v`; found `%v`", ErrDeviceTooSmall, err)
	}
}

func TestCacheTooSmall(t *testing.T) {
	device := io.NewMemoryDevice(4096)
	options := Options{CacheCapacity: MinCacheCapacity - 1}
	if _, err := Create(device, 4096, 1, &options); !errors.Is(
		err,
		ErrCacheTooSmall,
	) {
		t.Fatalf("Create(): wanted `%v`; found `%v`", ErrCacheTooSmall, err)
	}
	if _, err := Open(device, &options); !errors.Is(err, ErrCacheTooSmall) {
		t.Fatalf("Open(): wanted `%v`; found `%v`", ErrCacheTooSmall, err)
	}
}

func TestDiskInodePos(t *testing.T) {
	fs, _ := smallVolume(t, 4)
	for _, testCase := range []struct {
		ino    Ino
		block  Block
		offset Byte
	}{
		{ino: 0, block: 2, offset: 0},
		{ino: 3, block: 2, offset: 384},
		{ino: 4, block: 3, offset: 0},
		{ino: 4095, block: 1025, offset: 384},
	} {
		block, offset := fs.DiskInodePos(testCase.ino)
		if block != testCase.block || offset != testCase.offset {
			t.Fatalf(
				"DiskInodePos(%d): wanted `%d, %d`; found `%d, %d`",
				testCase.ino,
				testCase.block,
				testCase.offset,
				block,
				offset,
			)
		}
		if found := fs.InodeID(block, offset); found != testCase.ino {
			t.Fatalf(
				"InodeID(%d, %d): wanted `%d`; found `%d`",
				block,
				offset,
				testCase.ino,
				found,
			)
		}
	}
}

func TestAllocData(t *testing.T) {
	fs, device := smallVolume(t, 2)
	fs.Lock()
	defer fs.Unlock()

	first, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData(): unexpected err: %v", err)
	}
	if first != fs.DataAreaStart() {
		t.Fatalf("wanted `%d`; found `%d`", fs.DataAreaStart(), first)
	}
	second, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData(): unexpected err: %v", err)
	}
	if _, err := fs.AllocData(); !errors.Is(err, ErrOutOfBlocks) {
		t.Fatalf("wanted `%v`; found `%v`", ErrOutOfBlocks, err)
	}

	if err := fs.cache.Modify(second, 0, 4, func(p []byte) error {
		copy(p, "junk")
		return nil
	}); err != nil {
		t.Fatalf("Manager.Modify(): unexpected err: %v", err)
	}
	if err := fs.DeallocData(second); err != nil {
		t.Fatalf("DeallocData(): unexpected err: %v", err)
	}
	if err := fs.Sync(); err != nil {
		t.Fatalf("Sync(): unexpected err: %v", err)
	}
	start := int(second) * int(BlockSize)
	if found := string(device.Bytes()[start : start+4]); found != "\x00\x00\x00\x00" {
		t.Fatalf("wanted freed block zeroed; found `%q`", found)
	}

	again, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData(): unexpected err: %v", err)
	}
	if again != second {
		t.Fatalf("wanted freed block `%d` reused; found `%d`", second, again)
	}
}

func TestAllocDataBlocksRollback(t *testing.T) {
	fs, _ := smallVolume(t, 3)
	fs.Lock()
	if _, err := fs.AllocDataBlocks(4); !errors.Is(err, ErrOutOfBlocks) {
		t.Fatalf("wanted `%v`; found `%v`", ErrOutOfBlocks, err)
	}
	blocks, err := fs.AllocDataBlocks(3)
	if err != nil {
		t.Fatalf("AllocDataBlocks(3): unexpected err: %v", err)
	}
	fs.Unlock()
	if len(blocks) != 3 {
		t.Fatalf("wanted `3` blocks; found `%d`", len(blocks))
	}

	usage, err := fs.Usage()
	if err != nil {
		t.Fatalf("Usage(): unexpected err: %v", err)
	}
	if usage.DataBlocksFree != 0 {
		t.Fatalf("wanted `0` free blocks; found `%d`", usage.DataBlocksFree)
	}
}

func TestAllocInodeExhaustion(t *testing.T) {
	fs, _ := smallVolume(t, 1)
	fs.Lock()
	defer fs.Unlock()
	for i := 1; i < BitsPerBlock; i++ {
		ino, err := fs.AllocInode()
		if err != nil {
			t.Fatalf("AllocInode(): unexpected err: %v", err)
		}
		if ino != Ino(i) {
			t.Fatalf("wanted inode `%d`; found `%d`", i, ino)
		}
	}
	if _, err := fs.AllocInode(); !errors.Is(err, ErrOutOfInodes) {
		t.Fatalf("wanted `%v`; found `%v`", ErrOutOfInodes, err)
	}
	if err := fs.DeallocInode(17); err != nil {
		t.Fatalf("DeallocInode(): unexpected err: %v", err)
	}
	if ino, err := fs.AllocInode(); err != nil || ino != 17 {
		t.Fatalf("wanted `17, <nil>`; found `%d, %v`", ino, err)
	}
}
