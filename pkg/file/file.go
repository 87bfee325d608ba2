package file

import (
	"errors"
	"fmt"
	stdio "io"
	"sync"

	. "github.com/weberc2/easyfs/pkg/types"
	"github.com/weberc2/easyfs/pkg/vfs"
)

const (
	ErrNotReadable ConstError = "file not open for reading"
	ErrNotWritable ConstError = "file not open for writing"
)

// File is an open file with its own cursor. Several files may be open on
// the same inode; they share content but not cursors.
type File struct {
	readable bool
	writable bool

	mutex  sync.Mutex
	offset Byte
	inode  *vfs.Inode
}

var (
	_ stdio.Reader = (*File)(nil)
	_ stdio.Writer = (*File)(nil)
	_ stdio.Seeker = (*File)(nil)
)

// Open resolves `name` in `dir`. With `O_CREATE` an existing file is
// cleared and a missing one created; otherwise the file must exist and
// `O_TRUNC` clears it.
func Open(dir *vfs.Inode, name string, flags OpenFlags) (*File, error) {
	readable, writable := flags.ReadWrite()

	inode, err := dir.Find(name)
	switch {
	case err == nil:
		if flags.Has(O_CREATE) || flags.Has(O_TRUNC) {
			if err := inode.Clear(); err != nil {
				return nil, fmt.Errorf("opening `%s`: %w", name, err)
			}
		}
	case errors.Is(err, vfs.ErrNotFound) && flags.Has(O_CREATE):
		if inode, err = dir.Create(name); err != nil {
			return nil, fmt.Errorf("opening `%s`: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("opening `%s`: %w", name, err)
	}

	isDir, err := inode.IsDir()
	if err != nil {
		return nil, fmt.Errorf("opening `%s`: %w", name, err)
	}
	if isDir {
		return nil, fmt.Errorf("opening `%s`: %w", name, vfs.ErrIsDir)
	}
	return &File{readable: readable, writable: writable, inode: inode}, nil
}

func (f *File) Inode() *vfs.Inode { return f.inode }

// Read reads from the cursor and advances it. It returns `io.EOF` once the
// cursor is at the end of the file.
func (f *File) Read(p []byte) (int, error) {
	if !f.readable {
		return 0, ErrNotReadable
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	n, err := f.inode.ReadAt(f.offset, p)
	f.offset += n
	if err != nil {
		return int(n), err
	}
	if n == 0 {
		return 0, stdio.EOF
	}
	return int(n), nil
}

// Write writes at the cursor and advances it.
func (f *File) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, ErrNotWritable
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()

	n, err := f.inode.WriteAt(f.offset, p)
	f.offset += n
	if err != nil {
		return int(n), err
	}
	if int(n) != len(p) {
		panic(fmt.Sprintf("short write: wanted `%d` bytes; found `%d`", len(p), n))
	}
	return int(n), nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var base int64
	switch whence {
	case stdio.SeekStart:
	case stdio.SeekCurrent:
		base = int64(f.offset)
	case stdio.SeekEnd:
		size, err := f.inode.Size()
		if err != nil {
			return int64(f.offset), fmt.Errorf("seeking: %w", err)
		}
		base = int64(size)
	default:
		return int64(f.offset), fmt.Errorf(
			"seeking with whence `%d`: %w",
			whence,
			vfs.ErrInvalidOffset,
		)
	}
	if base+offset < 0 {
		return int64(f.offset), fmt.Errorf(
			"seeking to `%d`: %w",
			base+offset,
			vfs.ErrInvalidOffset,
		)
	}
	f.offset = Byte(base + offset)
	return base + offset, nil
}

// ReadAll reads from the cursor to the end of the file, one block at a
// time.
func (f *File) ReadAll() ([]byte, error) {
	if !f.readable {
		return nil, ErrNotReadable
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var (
		buf [BlockSize]byte
		out []byte
	)
	for {
		n, err := f.inode.ReadAt(f.offset, buf[:])
		if err != nil {
			return out, fmt.Errorf("reading all: %w", err)
		}
		if n == 0 {
			return out, nil
		}
		f.offset += n
		out = append(out, buf[:n]...)
	}
}
