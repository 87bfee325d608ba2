package pack

import (
	"context"
	"fmt"
	stdio "io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/weberc2/easyfs/pkg/efs"
	"github.com/weberc2/easyfs/pkg/io"
	"github.com/weberc2/easyfs/pkg/objectstore"
	. "github.com/weberc2/easyfs/pkg/types"
)

// tempName is a unique sibling of `target`, so a rename onto `target`
// stays on one filesystem.
func tempName(target string) string {
	return filepath.Join(
		filepath.Dir(target),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), uuid.NewString()),
	)
}

// Verify opens the image at `path`, whose volume starts `offset` blocks
// in, and returns the volume's size in blocks.
func Verify(path string, offset uint32) (uint32, error) {
	device, err := io.OpenFileDevice(path, 0)
	if err != nil {
		return 0, fmt.Errorf("verifying image: %w", err)
	}
	defer device.Close()

	var dev io.BlockDevice = device
	if offset > 0 {
		dev = io.NewOffsetDevice(device, Block(offset))
	}
	fs, err := efs.Open(dev, nil)
	if err != nil {
		return 0, fmt.Errorf("verifying image `%s`: %w", path, err)
	}
	blocks := fs.SuperBlock().TotalBlocks
	if err := fs.Close(); err != nil {
		return 0, fmt.Errorf("verifying image `%s`: %w", path, err)
	}
	return blocks, nil
}

// Push uploads the image at `path` to `bucket` under `key`, recording the
// volume geometry alongside it.
func Push(
	ctx context.Context,
	store objectstore.ImageStore,
	path string,
	offset uint32,
	bucket string,
	key string,
) (objectstore.Image, error) {
	image := objectstore.Image{Key: key, Offset: offset}
	blocks, err := Verify(path, offset)
	if err != nil {
		return image, fmt.Errorf("pushing image: %w", err)
	}
	image.Blocks = blocks

	file, err := os.Open(path)
	if err != nil {
		return image, fmt.Errorf("pushing image: %w", err)
	}
	defer file.Close()
	if err := store.PutImage(ctx, bucket, image, file); err != nil {
		return image, fmt.Errorf("pushing image `%s`: %w", path, err)
	}
	return image, nil
}

// Pull downloads the image at `key` in `bucket` to `path`. The download
// lands under a temporary name and replaces `path` only once it is
// complete and holds a volume at the recorded offset.
func Pull(
	ctx context.Context,
	store objectstore.ImageStore,
	bucket string,
	key string,
	path string,
) (objectstore.Image, error) {
	image, body, err := store.GetImage(ctx, bucket, key)
	if err != nil {
		return image, fmt.Errorf("pulling image: %w", err)
	}
	defer body.Close()

	tmp := tempName(path)
	file, err := os.Create(tmp)
	if err != nil {
		return image, fmt.Errorf("pulling image: %w", err)
	}
	if _, err := stdio.Copy(file, body); err != nil {
		file.Close()
		os.Remove(tmp)
		return image, fmt.Errorf("pulling image `%s`: %w", key, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return image, fmt.Errorf("pulling image `%s`: %w", key, err)
	}
	blocks, err := Verify(tmp, image.Offset)
	if err != nil {
		os.Remove(tmp)
		return image, fmt.Errorf("pulling image `%s`: %w", key, err)
	}
	if blocks != image.Blocks {
		os.Remove(tmp)
		return image, fmt.Errorf(
			"pulling image `%s`: volume has `%d` blocks; recorded `%d`: %w",
			key,
			blocks,
			image.Blocks,
			objectstore.ErrNotImage,
		)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return image, fmt.Errorf("pulling image `%s`: %w", key, err)
	}
	return image, nil
}
