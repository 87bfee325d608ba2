package encode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/weberc2/easyfs/pkg/types"
)

func TestRecordSizes(t *testing.T) {
	for _, testCase := range []struct {
		name   string
		found  Byte
		wanted Byte
	}{
		{name: "superblock", found: superBlockEnd, wanted: SuperBlockSize},
		{name: "disk inode", found: inodeTypeEnd, wanted: InodeSize},
		{name: "dir entry", found: dirEntryInoEnd, wanted: DirEntrySize},
	} {
		if testCase.found != testCase.wanted {
			t.Fatalf(
				"%s size: wanted `%d`; found `%d`",
				testCase.name,
				testCase.wanted,
				testCase.found,
			)
		}
	}
}

func TestSuperBlockLayout(t *testing.T) {
	wanted := NewSuperBlock(32768, 1, 1024, 8, 31734)
	p := make([]byte, BlockSize)
	EncodeSuperBlock(&wanted, p)

	// magic is the first little-endian word
	if p[0] != 0x01 || p[3] != 0x3b {
		t.Fatalf("magic bytes: wanted `01 .. .. 3b`; found `% x`", p[:4])
	}

	var found SuperBlock
	DecodeSuperBlock(&found, p)
	if diff := cmp.Diff(wanted, found); diff != "" {
		t.Fatalf("DecodeSuperBlock(): mismatch (-wanted +found):\n%s", diff)
	}
}

func TestDiskInodeLayout(t *testing.T) {
	wanted := DiskInode{
		Size:      1234,
		Indirect1: 77,
		Indirect2: 78,
		Type:      DiskInodeTypeDirectory,
	}
	for i := range wanted.Direct {
		wanted.Direct[i] = Block(100 + i)
	}

	p := make([]byte, InodeSize)
	EncodeDiskInode(&wanted, p)
	if found := getU32(p, 4+27*4); found != 127 {
		t.Fatalf("direct[27]: wanted `127`; found `%d`", found)
	}
	if p[124] != 1 {
		t.Fatalf("type tag byte: wanted `1`; found `%d`", p[124])
	}

	var found DiskInode
	if err := DecodeDiskInode(&found, p); err != nil {
		t.Fatalf("DecodeDiskInode(): unexpected err: %v", err)
	}
	if diff := cmp.Diff(wanted, found); diff != "" {
		t.Fatalf("DecodeDiskInode(): mismatch (-wanted +found):\n%s", diff)
	}
}

func TestDecodeDiskInodeInvalidType(t *testing.T) {
	p := make([]byte, InodeSize)
	p[124] = 7
	inode := DiskInode{Size: 9}
	if err := DecodeDiskInode(&inode, p); err == nil {
		t.Fatal("DecodeDiskInode(): wanted error; found `nil`")
	}
	if inode.Size != 9 {
		t.Fatalf("inode mutated on failed decode: size `%d`", inode.Size)
	}
}

func TestDirEntryLayout(t *testing.T) {
	wanted, err := NewDirEntry("filea", 3)
	if err != nil {
		t.Fatalf("NewDirEntry(): unexpected err: %v", err)
	}

	p := make([]byte, DirEntrySize)
	EncodeDirEntry(&wanted, p)
	if string(p[:6]) != "filea\x00" {
		t.Fatalf("name bytes: wanted `filea\\x00`; found `%q`", p[:6])
	}
	if p[28] != 3 {
		t.Fatalf("inode byte: wanted `3`; found `%d`", p[28])
	}

	var found DirEntry
	DecodeDirEntry(&found, p)
	if found != wanted {
		t.Fatalf("DecodeDirEntry(): wanted `%+v`; found `%+v`", wanted, found)
	}
	if found.NameString() != "filea" {
		t.Fatalf("NameString(): wanted `filea`; found `%s`", found.NameString())
	}
}

func TestPointersAndWords(t *testing.T) {
	p := make([]byte, BlockSize)
	PutPointer(p, PointersPerBlock-1, 0xdeadbeef)
	if found := GetPointer(p, PointersPerBlock-1); found != 0xdeadbeef {
		t.Fatalf("GetPointer(): wanted `0xdeadbeef`; found `%#x`", found)
	}
	PutWord(p, WordsPerBlock-1, ^uint64(0))
	if found := GetWord(p, WordsPerBlock-2); found != 0 {
		t.Fatalf("GetWord(62): wanted `0`; found `%#x`", found)
	}
}
