package encode

import (
	. "github.com/weberc2/easyfs/pkg/types"
)

func EncodeDirEntry(entry *DirEntry, p []byte) {
	copy(p[dirEntryNameStart:dirEntryNameEnd], entry.Name[:])
	putU32(p, dirEntryInoStart, uint32(entry.Ino))
}

// DecodeDirEntry never fails: a zeroed record is a valid (deleted) entry and
// callers decide what to do with it.
func DecodeDirEntry(entry *DirEntry, p []byte) {
	copy(entry.Name[:], p[dirEntryNameStart:dirEntryNameEnd])
	entry.Ino = Ino(getU32(p, dirEntryInoStart))
}

const (
	dirEntryNameStart = 0
	dirEntryNameSize  = NameLengthLimit + 1
	dirEntryNameEnd   = dirEntryNameStart + dirEntryNameSize

	dirEntryInoStart = dirEntryNameEnd
	dirEntryInoSize  = 4
	dirEntryInoEnd   = dirEntryInoStart + dirEntryInoSize
)
