package types

const (
	DirEntrySize     Byte = 32
	NameLengthLimit       = 27
	DirEntriesPerBlock    = int(BlockSize / DirEntrySize)
)

// DirEntry maps a name of at most `NameLengthLimit` bytes to an inode.
type DirEntry struct {
	Name [NameLengthLimit + 1]byte
	Ino  Ino
}

func NewDirEntry(name string, ino Ino) (DirEntry, error) {
	if name == "" {
		return DirEntry{}, ErrInvalidName
	}
	if len(name) > NameLengthLimit {
		return DirEntry{}, ErrNameTooLong
	}
	entry := DirEntry{Ino: ino}
	copy(entry.Name[:], name)
	return entry, nil
}

// NameString returns the name up to its NUL terminator.
func (entry *DirEntry) NameString() string {
	for i, c := range entry.Name {
		if c == 0 {
			return string(entry.Name[:i])
		}
	}
	return string(entry.Name[:])
}

// IsEmpty reports whether the entry is a deleted (zeroed) slot. Names are
// never empty, so a leading NUL is the tombstone regardless of the inode.
func (entry *DirEntry) IsEmpty() bool { return entry.Name[0] == 0 }

const (
	ErrInvalidName ConstError = "invalid name"
	ErrNameTooLong ConstError = "name too long"
)
