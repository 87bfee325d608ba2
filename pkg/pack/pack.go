package pack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"github.com/weberc2/easyfs/pkg/efs"
	"github.com/weberc2/easyfs/pkg/io"
	. "github.com/weberc2/easyfs/pkg/types"
	"github.com/weberc2/easyfs/pkg/vfs"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTotalBlocks       = 32768
	DefaultInodeBitmapBlocks = 1
	DefaultConcurrency       = 4

	ErrNoName ConstError = "file name has no usable characters"
)

type Options struct {
	TotalBlocks       uint32
	InodeBitmapBlocks uint32

	// OffsetBlocks zeroed blocks precede the volume in the image.
	OffsetBlocks uint32

	// Concurrency bounds how many host files are read at once.
	Concurrency int

	FileSystem *efs.Options
}

func (options *Options) withDefaults() Options {
	out := Options{
		TotalBlocks:       DefaultTotalBlocks,
		InodeBitmapBlocks: DefaultInodeBitmapBlocks,
		Concurrency:       DefaultConcurrency,
	}
	if options == nil {
		return out
	}
	if options.TotalBlocks > 0 {
		out.TotalBlocks = options.TotalBlocks
	}
	if options.InodeBitmapBlocks > 0 {
		out.InodeBitmapBlocks = options.InodeBitmapBlocks
	}
	if options.Concurrency > 0 {
		out.Concurrency = options.Concurrency
	}
	out.OffsetBlocks = options.OffsetBlocks
	out.FileSystem = options.FileSystem
	return out
}

// Entry records one host file copied into the image.
type Entry struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	Size   int    `json:"size"`
}

// VolumeName derives the name a host file gets inside a volume: the base
// name up to its first dot, slugified and cut to the name length limit.
func VolumeName(path string) (string, error) {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	name := slug.Make(base)
	if len(name) > NameLengthLimit {
		name = strings.TrimRight(name[:NameLengthLimit], "-_")
	}
	if name == "" {
		return "", fmt.Errorf("naming `%s`: %w", path, ErrNoName)
	}
	return name, nil
}

// Pack formats a fresh image at `target` and copies every regular file of
// `source` into its root directory, skipping hidden files. The image is
// built under a temporary name and renamed into place, so `target` is never
// left half written.
func Pack(
	ctx context.Context,
	source string,
	target string,
	options *Options,
) ([]Entry, error) {
	opts := options.withDefaults()
	logger := logrus.FieldLogger(logrus.StandardLogger())
	if opts.FileSystem != nil && opts.FileSystem.Logger != nil {
		logger = opts.FileSystem.Logger
	}

	entries, err := hostFiles(source)
	if err != nil {
		return nil, fmt.Errorf("packing `%s`: %w", source, err)
	}

	tmp := tempName(target)
	device, err := io.OpenFileDevice(
		tmp,
		Block(opts.OffsetBlocks)+Block(opts.TotalBlocks),
	)
	if err != nil {
		return nil, fmt.Errorf("packing `%s`: %w", source, err)
	}
	cleanup := func() {
		device.Close()
		os.Remove(tmp)
	}

	var dev io.BlockDevice = device
	if opts.OffsetBlocks > 0 {
		dev = io.NewOffsetDevice(device, Block(opts.OffsetBlocks))
	}
	fs, err := efs.Create(
		dev,
		opts.TotalBlocks,
		opts.InodeBitmapBlocks,
		opts.FileSystem,
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("packing `%s`: %w", source, err)
	}
	if err := copyFiles(ctx, vfs.Root(fs), entries, opts.Concurrency); err != nil {
		cleanup()
		return nil, fmt.Errorf("packing `%s`: %w", source, err)
	}
	if err := fs.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("packing `%s`: %w", source, err)
	}
	if err := device.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("packing `%s`: syncing image: %w", source, err)
	}
	if err := device.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("packing `%s`: closing image: %w", source, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("packing `%s`: %w", source, err)
	}

	logger.WithFields(logrus.Fields{
		"source": source,
		"image":  target,
		"files":  len(entries),
		"offset": opts.OffsetBlocks,
	}).Info("packed image")
	return entries, nil
}

func hostFiles(source string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(source)
	if err != nil {
		return nil, fmt.Errorf("listing host files: %w", err)
	}
	var entries []Entry
	for _, dirEntry := range dirEntries {
		if !dirEntry.Type().IsRegular() ||
			strings.HasPrefix(dirEntry.Name(), ".") {
			continue
		}
		path := filepath.Join(source, dirEntry.Name())
		name, err := VolumeName(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Source: path, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Source < entries[j].Source
	})
	return entries, nil
}

// copyFiles reads up to `concurrency` host files at a time and writes them
// into the volume in order.
func copyFiles(
	ctx context.Context,
	root *vfs.Inode,
	entries []Entry,
	concurrency int,
) error {
	for start := 0; start < len(entries); start += concurrency {
		batch := entries[start:min(start+concurrency, len(entries))]
		contents := make([][]byte, len(batch))

		g, ctx := errgroup.WithContext(ctx)
		for i := range batch {
			i := i
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(batch[i].Source)
				if err != nil {
					return fmt.Errorf("reading host file: %w", err)
				}
				contents[i] = data
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i := range batch {
			inode, err := root.Create(batch[i].Name)
			if err != nil {
				return fmt.Errorf("copying `%s`: %w", batch[i].Source, err)
			}
			if _, err := inode.WriteAt(0, contents[i]); err != nil {
				return fmt.Errorf("copying `%s`: %w", batch[i].Source, err)
			}
			batch[i].Size = len(contents[i])
		}
	}
	return nil
}
