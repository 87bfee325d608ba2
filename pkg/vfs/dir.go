package vfs

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/easyfs/pkg/encode"
	"github.com/weberc2/easyfs/pkg/layout"
	. "github.com/weberc2/easyfs/pkg/types"
)

// A directory's content is a packed array of entries. Deleted entries are
// zeroed in place and skipped; the array never shrinks.

// Find returns a handle on the inode named `name` in this directory.
func (inode *Inode) Find(name string) (*Inode, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	dir, err := inode.directory()
	if err != nil {
		return nil, fmt.Errorf("finding `%s`: %w", name, err)
	}
	_, entry, err := inode.lookup(&dir, name)
	if err != nil {
		return nil, fmt.Errorf("finding `%s`: %w", name, err)
	}
	return handle(inode.fs, entry.Ino), nil
}

// Create adds an empty file named `name` to this directory.
func (inode *Inode) Create(name string) (*Inode, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	entry, err := inode.checkNew(name)
	if err != nil {
		return nil, fmt.Errorf("creating `%s`: %w", name, err)
	}

	ino, err := inode.fs.AllocInode()
	if err != nil {
		return nil, fmt.Errorf("creating `%s`: %w", name, err)
	}
	created := handle(inode.fs, ino)
	if err := created.modify(func(disk *DiskInode) error {
		disk.Initialize(DiskInodeTypeFile)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("creating `%s`: %w", name, err)
	}

	entry.Ino = ino
	if err := inode.append(entry); err != nil {
		if rollbackErr := inode.fs.DeallocInode(ino); rollbackErr != nil {
			return nil, fmt.Errorf(
				"creating `%s`: rolling back: %v: %w",
				name,
				rollbackErr,
				err,
			)
		}
		return nil, fmt.Errorf("creating `%s`: %w", name, err)
	}
	if err := inode.fs.Sync(); err != nil {
		return nil, fmt.Errorf("creating `%s`: %w", name, err)
	}

	inode.fs.Logger().WithFields(logrus.Fields{
		"name":  name,
		"inode": ino,
	}).Info("created file")
	return created, nil
}

// Link adds the name `name` for the existing inode `target`.
func (inode *Inode) Link(name string, target Ino) error {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	entry, err := inode.checkNew(name)
	if err != nil {
		return fmt.Errorf("linking `%s`: %w", name, err)
	}
	allocated, err := inode.fs.InodeAllocated(target)
	if err != nil {
		return fmt.Errorf("linking `%s`: %w", name, err)
	}
	if !allocated {
		return fmt.Errorf(
			"linking `%s` to inode `%d`: %w",
			name,
			target,
			ErrNotFound,
		)
	}

	entry.Ino = target
	if err := inode.append(entry); err != nil {
		return fmt.Errorf("linking `%s`: %w", name, err)
	}
	if err := inode.fs.Sync(); err != nil {
		return fmt.Errorf("linking `%s`: %w", name, err)
	}
	return nil
}

// Unlink removes the entry `name`. The inode it named keeps its content
// and stays allocated even when this was its last name.
func (inode *Inode) Unlink(name string) error {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	dir, err := inode.directory()
	if err != nil {
		return fmt.Errorf("unlinking `%s`: %w", name, err)
	}
	index, _, err := inode.lookup(&dir, name)
	if err != nil {
		return fmt.Errorf("unlinking `%s`: %w", name, err)
	}

	var tombstone [DirEntrySize]byte
	if _, err := layout.WriteAt(
		inode.fs.Cache(),
		&dir,
		Byte(index)*DirEntrySize,
		tombstone[:],
	); err != nil {
		return fmt.Errorf("unlinking `%s`: %w", name, err)
	}
	if err := inode.fs.Sync(); err != nil {
		return fmt.Errorf("unlinking `%s`: %w", name, err)
	}
	return nil
}

// Ls lists the names in this directory in insertion order.
func (inode *Inode) Ls() ([]string, error) {
	entries, err := inode.Entries()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i := range entries {
		names[i] = entries[i].NameString()
	}
	return names, nil
}

// Entries returns the live entries of this directory in insertion order.
func (inode *Inode) Entries() ([]DirEntry, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	dir, err := inode.directory()
	if err != nil {
		return nil, fmt.Errorf("listing directory: %w", err)
	}
	all, err := inode.entries(&dir)
	if err != nil {
		return nil, fmt.Errorf("listing directory: %w", err)
	}
	live := all[:0]
	for _, entry := range all {
		if !entry.IsEmpty() {
			live = append(live, entry)
		}
	}
	return live, nil
}

// NLink counts the entries in this directory that name `ino`.
func (inode *Inode) NLink(ino Ino) (uint32, error) {
	inode.fs.Lock()
	defer inode.fs.Unlock()

	dir, err := inode.directory()
	if err != nil {
		return 0, fmt.Errorf("counting links to `%d`: %w", ino, err)
	}
	return inode.nlink(&dir, ino)
}

func (inode *Inode) nlink(dir *DiskInode, ino Ino) (uint32, error) {
	entries, err := inode.entries(dir)
	if err != nil {
		return 0, fmt.Errorf("counting links to `%d`: %w", ino, err)
	}
	var count uint32
	for _, entry := range entries {
		if !entry.IsEmpty() && entry.Ino == ino {
			count++
		}
	}
	return count, nil
}

// directory reads this inode and fails unless it is a directory.
func (inode *Inode) directory() (DiskInode, error) {
	disk, err := inode.read()
	if err != nil {
		return disk, err
	}
	if !disk.IsDir() {
		return disk, fmt.Errorf("inode `%d`: %w", inode.ID(), ErrNotDir)
	}
	return disk, nil
}

// entries decodes every slot of `dir`, tombstones included, so that slice
// indices are slot indices.
func (inode *Inode) entries(dir *DiskInode) ([]DirEntry, error) {
	count := Byte(dir.Size) / DirEntrySize
	p := make([]byte, count*DirEntrySize)
	n, err := layout.ReadAt(inode.fs.Cache(), dir, 0, p)
	if err != nil {
		return nil, err
	}
	if n != Byte(len(p)) {
		panic(fmt.Sprintf(
			"short directory read: wanted `%d` bytes; found `%d`",
			len(p),
			n,
		))
	}
	entries := make([]DirEntry, count)
	for i := range entries {
		start := Byte(i) * DirEntrySize
		encode.DecodeDirEntry(&entries[i], p[start:start+DirEntrySize])
	}
	return entries, nil
}

// lookup finds the slot holding `name`.
func (inode *Inode) lookup(dir *DiskInode, name string) (int, DirEntry, error) {
	entries, err := inode.entries(dir)
	if err != nil {
		return 0, DirEntry{}, err
	}
	for i, entry := range entries {
		if !entry.IsEmpty() && entry.NameString() == name {
			return i, entry, nil
		}
	}
	return 0, DirEntry{}, ErrNotFound
}

// checkNew validates `name` and makes sure this directory doesn't already
// hold it. The returned entry has no inode yet.
func (inode *Inode) checkNew(name string) (DirEntry, error) {
	entry, err := NewDirEntry(name, 0)
	if err != nil {
		return entry, err
	}
	dir, err := inode.directory()
	if err != nil {
		return entry, err
	}
	_, _, err = inode.lookup(&dir, name)
	if err == nil {
		return entry, ErrExists
	}
	if !errors.Is(err, ErrNotFound) {
		return entry, err
	}
	return entry, nil
}

// append writes `entry` into a new slot at the end of this directory.
// A failed write leaves a zeroed slot, which reads as a deleted entry.
func (inode *Inode) append(entry DirEntry) error {
	var writeErr error
	if err := inode.modify(func(dir *DiskInode) error {
		count := Byte(dir.Size) / DirEntrySize
		if err := inode.grow(dir, uint32((count+1)*DirEntrySize)); err != nil {
			return err
		}
		var p [DirEntrySize]byte
		encode.EncodeDirEntry(&entry, p[:])
		_, writeErr = layout.WriteAt(
			inode.fs.Cache(),
			dir,
			count*DirEntrySize,
			p[:],
		)
		return nil
	}); err != nil {
		return err
	}
	return writeErr
}
