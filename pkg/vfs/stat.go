package vfs

import (
	"fmt"

	. "github.com/weberc2/easyfs/pkg/types"
)

type Mode uint32

const (
	ModeDir  Mode = 0o040000
	ModeFile Mode = 0o100000
)

func (m Mode) String() string {
	switch m {
	case ModeDir:
		return "dir"
	case ModeFile:
		return "file"
	default:
		return fmt.Sprintf("Mode(%#o)", uint32(m))
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"dir"`:
		*m = ModeDir
	case `"file"`:
		*m = ModeFile
	default:
		return fmt.Errorf("unmarshaling mode: unknown mode `%s`", data)
	}
	return nil
}

// Stat describes the inode behind a directory entry. Link counts only
// consider the directory the entry was found in.
type Stat struct {
	Ino   Ino    `json:"ino"`
	Mode  Mode   `json:"mode"`
	NLink uint32 `json:"nlink"`
	Size  uint32 `json:"size"`
}

// Stat describes the inode named `name` in this directory.
func (inode *Inode) Stat(name string) (Stat, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	dir, err := inode.directory()
	if err != nil {
		return Stat{}, fmt.Errorf("stat `%s`: %w", name, err)
	}
	_, entry, err := inode.lookup(&dir, name)
	if err != nil {
		return Stat{}, fmt.Errorf("stat `%s`: %w", name, err)
	}
	disk, err := handle(inode.fs, entry.Ino).read()
	if err != nil {
		return Stat{}, fmt.Errorf("stat `%s`: %w", name, err)
	}
	nlink, err := inode.nlink(&dir, entry.Ino)
	if err != nil {
		return Stat{}, fmt.Errorf("stat `%s`: %w", name, err)
	}

	mode := ModeFile
	if disk.IsDir() {
		mode = ModeDir
	}
	return Stat{Ino: entry.Ino, Mode: mode, NLink: nlink, Size: disk.Size}, nil
}
